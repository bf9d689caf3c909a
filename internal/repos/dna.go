package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

type DNARepo interface {
	// AppendVersion writes the next profile snapshot. Snapshots are never
	// updated in place.
	AppendVersion(ctx context.Context, tx *gorm.DB, dna *types.LearningDNA) (*types.LearningDNA, error)
	Latest(ctx context.Context, tx *gorm.DB, studentID uint) (*types.LearningDNA, error)
	History(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.LearningDNA, error)
	RecordLevel(ctx context.Context, tx *gorm.DB, h *types.CEFRHistory) error
	LevelHistory(ctx context.Context, tx *gorm.DB, studentID uint) ([]*types.CEFRHistory, error)
	LatestLevel(ctx context.Context, tx *gorm.DB, studentID uint) (*types.CEFRHistory, error)
}

type dnaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDNARepo(db *gorm.DB, baseLog *logger.Logger) DNARepo {
	return &dnaRepo{db: db, log: baseLog.With("repo", "DNARepo")}
}

func (r *dnaRepo) AppendVersion(ctx context.Context, tx *gorm.DB, dna *types.LearningDNA) (*types.LearningDNA, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		var maxVersion int
		row := transaction.WithContext(ctx).
			Model(&types.LearningDNA{}).
			Where("student_id = ?", dna.StudentID).
			Select("COALESCE(MAX(version), 0)").
			Row()
		if err := row.Scan(&maxVersion); err != nil {
			return nil, translateErr(err)
		}
		dna.ID = 0
		dna.Version = maxVersion + 1
		if err := transaction.WithContext(ctx).Create(dna).Error; err != nil {
			lastErr = translateErr(err)
			if errors.Is(lastErr, apperr.ErrStoreConflict) {
				continue
			}
			return nil, lastErr
		}
		return dna, nil
	}
	return nil, lastErr
}

func (r *dnaRepo) Latest(ctx context.Context, tx *gorm.DB, studentID uint) (*types.LearningDNA, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var dna types.LearningDNA
	if err := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("version DESC").
		First(&dna).Error; err != nil {
		return nil, translateErr(err)
	}
	return &dna, nil
}

func (r *dnaRepo) History(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.LearningDNA, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var versions []*types.LearningDNA
	q := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("version DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&versions).Error; err != nil {
		return nil, translateErr(err)
	}
	return versions, nil
}

func (r *dnaRepo) RecordLevel(ctx context.Context, tx *gorm.DB, h *types.CEFRHistory) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return translateErr(transaction.WithContext(ctx).Create(h).Error)
}

func (r *dnaRepo) LevelHistory(ctx context.Context, tx *gorm.DB, studentID uint) ([]*types.CEFRHistory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var history []*types.CEFRHistory
	if err := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("recorded_at ASC").
		Find(&history).Error; err != nil {
		return nil, translateErr(err)
	}
	return history, nil
}

func (r *dnaRepo) LatestLevel(ctx context.Context, tx *gorm.DB, studentID uint) (*types.CEFRHistory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var h types.CEFRHistory
	if err := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("recorded_at DESC").
		First(&h).Error; err != nil {
		return nil, translateErr(err)
	}
	return &h, nil
}
