package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

type InterferenceRepo interface {
	// Observe records one occurrence of an interference pattern. A repeat
	// observation increments the counter; a pattern previously marked
	// overcome reverts to exhibited.
	Observe(ctx context.Context, tx *gorm.DB, studentID uint, category, detail string, at time.Time) (*types.L1InterferencePattern, error)
	MarkOvercome(ctx context.Context, tx *gorm.DB, studentID uint, category, detail string, at time.Time) error
	ListByStudent(ctx context.Context, tx *gorm.DB, studentID uint) ([]*types.L1InterferencePattern, error)
	ActiveByStudent(ctx context.Context, tx *gorm.DB, studentID uint) ([]*types.L1InterferencePattern, error)
}

type interferenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInterferenceRepo(db *gorm.DB, baseLog *logger.Logger) InterferenceRepo {
	return &interferenceRepo{db: db, log: baseLog.With("repo", "InterferenceRepo")}
}

func (r *interferenceRepo) Observe(ctx context.Context, tx *gorm.DB, studentID uint, category, detail string, at time.Time) (*types.L1InterferencePattern, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var p types.L1InterferencePattern
	err := transaction.WithContext(ctx).
		Where("student_id = ? AND pattern_category = ? AND pattern_detail = ?", studentID, category, detail).
		First(&p).Error
	if err != nil {
		if !errors.Is(translateErr(err), apperr.ErrNotFound) {
			return nil, translateErr(err)
		}
		p = types.L1InterferencePattern{
			StudentID:       studentID,
			PatternCategory: category,
			PatternDetail:   detail,
			Status:          types.PatternExhibited,
			Occurrences:     1,
			FirstSeenAt:     at,
			LastSeenAt:      at,
		}
		if err := transaction.WithContext(ctx).Create(&p).Error; err != nil {
			return nil, translateErr(err)
		}
		return &p, nil
	}

	p.Occurrences++
	p.LastSeenAt = at
	p.Status = types.PatternExhibited
	p.OvercomeAt = nil
	if err := transaction.WithContext(ctx).Save(&p).Error; err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}

func (r *interferenceRepo) MarkOvercome(ctx context.Context, tx *gorm.DB, studentID uint, category, detail string, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.L1InterferencePattern{}).
		Where("student_id = ? AND pattern_category = ? AND pattern_detail = ?", studentID, category, detail).
		Updates(map[string]any{
			"status":      types.PatternOvercome,
			"overcome_at": at,
		})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *interferenceRepo) ListByStudent(ctx context.Context, tx *gorm.DB, studentID uint) ([]*types.L1InterferencePattern, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var patterns []*types.L1InterferencePattern
	if err := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("occurrences DESC").
		Find(&patterns).Error; err != nil {
		return nil, translateErr(err)
	}
	return patterns, nil
}

func (r *interferenceRepo) ActiveByStudent(ctx context.Context, tx *gorm.DB, studentID uint) ([]*types.L1InterferencePattern, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var patterns []*types.L1InterferencePattern
	if err := transaction.WithContext(ctx).
		Where("student_id = ? AND status = ?", studentID, types.PatternExhibited).
		Order("occurrences DESC").
		Find(&patterns).Error; err != nil {
		return nil, translateErr(err)
	}
	return patterns, nil
}
