package repos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

type SpacedRepo interface {
	Create(ctx context.Context, tx *gorm.DB, items []*types.SpacedItem) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*types.SpacedItem, error)
	Update(ctx context.Context, tx *gorm.DB, item *types.SpacedItem) error
	// Due returns items whose next review is at or before now, most overdue
	// first.
	Due(ctx context.Context, tx *gorm.DB, studentID uint, now time.Time, limit int) ([]*types.SpacedItem, error)
	// ExistsContent reports whether the student already has an item with
	// this content, to keep repeated extraction idempotent.
	ExistsContent(ctx context.Context, tx *gorm.DB, studentID uint, content string) (bool, error)
}

type spacedRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSpacedRepo(db *gorm.DB, baseLog *logger.Logger) SpacedRepo {
	return &spacedRepo{db: db, log: baseLog.With("repo", "SpacedRepo")}
}

func (r *spacedRepo) Create(ctx context.Context, tx *gorm.DB, items []*types.SpacedItem) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(items) == 0 {
		return nil
	}
	return translateErr(transaction.WithContext(ctx).Create(&items).Error)
}

func (r *spacedRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*types.SpacedItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var item types.SpacedItem
	if err := transaction.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &item, nil
}

func (r *spacedRepo) Update(ctx context.Context, tx *gorm.DB, item *types.SpacedItem) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return translateErr(transaction.WithContext(ctx).Save(item).Error)
}

func (r *spacedRepo) Due(ctx context.Context, tx *gorm.DB, studentID uint, now time.Time, limit int) ([]*types.SpacedItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var items []*types.SpacedItem
	q := transaction.WithContext(ctx).
		Where("student_id = ? AND next_review <= ?", studentID, now).
		Order("next_review ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, translateErr(err)
	}
	return items, nil
}

func (r *spacedRepo) ExistsContent(ctx context.Context, tx *gorm.DB, studentID uint, content string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.SpacedItem{}).
		Where("student_id = ? AND content = ?", studentID, content).
		Count(&n).Error
	if err != nil {
		return false, translateErr(err)
	}
	return n > 0, nil
}
