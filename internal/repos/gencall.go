package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

type GenCallRepo interface {
	Record(ctx context.Context, tx *gorm.DB, entry *types.GenerationCallLog) error
	RecentByStudent(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.GenerationCallLog, error)
}

type genCallRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenCallRepo(db *gorm.DB, baseLog *logger.Logger) GenCallRepo {
	return &genCallRepo{db: db, log: baseLog.With("repo", "GenCallRepo")}
}

func (r *genCallRepo) Record(ctx context.Context, tx *gorm.DB, entry *types.GenerationCallLog) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return translateErr(transaction.WithContext(ctx).Create(entry).Error)
}

func (r *genCallRepo) RecentByStudent(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.GenerationCallLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var entries []*types.GenerationCallLog
	q := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, translateErr(err)
	}
	return entries, nil
}
