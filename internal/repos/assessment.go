package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

type AssessmentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, a *types.Assessment) (*types.Assessment, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*types.Assessment, error)
	LatestByStudent(ctx context.Context, tx *gorm.DB, studentID uint) (*types.Assessment, error)
	Update(ctx context.Context, tx *gorm.DB, a *types.Assessment) error
	UpsertProfile(ctx context.Context, tx *gorm.DB, p *types.LearnerProfile) error
	GetProfile(ctx context.Context, tx *gorm.DB, studentID uint) (*types.LearnerProfile, error)
}

type assessmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssessmentRepo(db *gorm.DB, baseLog *logger.Logger) AssessmentRepo {
	return &assessmentRepo{db: db, log: baseLog.With("repo", "AssessmentRepo")}
}

func (r *assessmentRepo) Create(ctx context.Context, tx *gorm.DB, a *types.Assessment) (*types.Assessment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(a).Error; err != nil {
		return nil, translateErr(err)
	}
	return a, nil
}

func (r *assessmentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*types.Assessment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var a types.Assessment
	if err := transaction.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func (r *assessmentRepo) LatestByStudent(ctx context.Context, tx *gorm.DB, studentID uint) (*types.Assessment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var a types.Assessment
	if err := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("id DESC").
		First(&a).Error; err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func (r *assessmentRepo) Update(ctx context.Context, tx *gorm.DB, a *types.Assessment) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return translateErr(transaction.WithContext(ctx).Save(a).Error)
}

func (r *assessmentRepo) UpsertProfile(ctx context.Context, tx *gorm.DB, p *types.LearnerProfile) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"gaps", "priorities", "profile_summary", "recommended_start_level", "updated_at",
			}),
		}).
		Create(p).Error
	return translateErr(err)
}

func (r *assessmentRepo) GetProfile(ctx context.Context, tx *gorm.DB, studentID uint) (*types.LearnerProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var p types.LearnerProfile
	if err := transaction.WithContext(ctx).Where("student_id = ?", studentID).First(&p).Error; err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}
