package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

type PlanRepo interface {
	// CreateNextVersion allocates the next dense version for the student and
	// inserts the plan. Concurrent writers race on the unique index; the
	// loser gets one in-place retry with a freshly read version before the
	// conflict surfaces.
	CreateNextVersion(ctx context.Context, tx *gorm.DB, plan *types.LearningPlan) (*types.LearningPlan, error)
	Latest(ctx context.Context, tx *gorm.DB, studentID uint) (*types.LearningPlan, error)
	History(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.LearningPlan, error)
	GetVersion(ctx context.Context, tx *gorm.DB, studentID uint, version int) (*types.LearningPlan, error)
	CreatePath(ctx context.Context, tx *gorm.DB, path *types.LearningPath) (*types.LearningPath, error)
	ActivePath(ctx context.Context, tx *gorm.DB, studentID uint) (*types.LearningPath, error)
}

type planRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanRepo(db *gorm.DB, baseLog *logger.Logger) PlanRepo {
	return &planRepo{db: db, log: baseLog.With("repo", "PlanRepo")}
}

func (r *planRepo) CreateNextVersion(ctx context.Context, tx *gorm.DB, plan *types.LearningPlan) (*types.LearningPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		var maxVersion int
		row := transaction.WithContext(ctx).
			Model(&types.LearningPlan{}).
			Where("student_id = ?", plan.StudentID).
			Select("COALESCE(MAX(version), 0)").
			Row()
		if err := row.Scan(&maxVersion); err != nil {
			return nil, translateErr(err)
		}
		plan.ID = 0
		plan.Version = maxVersion + 1
		if err := transaction.WithContext(ctx).Create(plan).Error; err != nil {
			lastErr = translateErr(err)
			if errors.Is(lastErr, apperr.ErrStoreConflict) {
				r.log.Warn("Plan version conflict, retrying", "student_id", plan.StudentID, "version", plan.Version)
				continue
			}
			return nil, lastErr
		}
		return plan, nil
	}
	return nil, lastErr
}

func (r *planRepo) Latest(ctx context.Context, tx *gorm.DB, studentID uint) (*types.LearningPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var plan types.LearningPlan
	if err := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("version DESC").
		First(&plan).Error; err != nil {
		return nil, translateErr(err)
	}
	return &plan, nil
}

func (r *planRepo) History(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.LearningPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var plans []*types.LearningPlan
	q := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("version DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&plans).Error; err != nil {
		return nil, translateErr(err)
	}
	return plans, nil
}

func (r *planRepo) GetVersion(ctx context.Context, tx *gorm.DB, studentID uint, version int) (*types.LearningPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var plan types.LearningPlan
	if err := transaction.WithContext(ctx).
		Where("student_id = ? AND version = ?", studentID, version).
		First(&plan).Error; err != nil {
		return nil, translateErr(err)
	}
	return &plan, nil
}

func (r *planRepo) CreatePath(ctx context.Context, tx *gorm.DB, path *types.LearningPath) (*types.LearningPath, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.Model(&types.LearningPath{}).
			Where("student_id = ? AND status = ?", path.StudentID, "active").
			Update("status", "superseded").Error; err != nil {
			return err
		}
		return inner.Create(path).Error
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return path, nil
}

func (r *planRepo) ActivePath(ctx context.Context, tx *gorm.DB, studentID uint) (*types.LearningPath, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var path types.LearningPath
	if err := transaction.WithContext(ctx).
		Where("student_id = ? AND status = ?", studentID, "active").
		Order("id DESC").
		First(&path).Error; err != nil {
		return nil, translateErr(err)
	}
	return &path, nil
}
