package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

type LessonRepo interface {
	// CreateWithTags persists the artifact and its denormalized skill tags
	// in one transaction so a crash never leaves an untagged lesson.
	CreateWithTags(ctx context.Context, tx *gorm.DB, artifact *types.LessonArtifact, tags []*types.LessonSkillTag) (*types.LessonArtifact, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*types.LessonArtifact, error)
	GetBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (*types.LessonArtifact, error)
	RecentByStudent(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.LessonArtifact, error)
	TagsByArtifact(ctx context.Context, tx *gorm.DB, artifactID uint) ([]*types.LessonSkillTag, error)
	RecentTagValues(ctx context.Context, tx *gorm.DB, studentID uint, lessonLimit int) ([]string, error)
}

type lessonRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return &lessonRepo{db: db, log: baseLog.With("repo", "LessonRepo")}
}

func (r *lessonRepo) CreateWithTags(ctx context.Context, tx *gorm.DB, artifact *types.LessonArtifact, tags []*types.LessonSkillTag) (*types.LessonArtifact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.Create(artifact).Error; err != nil {
			return err
		}
		for _, tag := range tags {
			tag.LessonArtifactID = artifact.ID
		}
		if len(tags) > 0 {
			if err := inner.Create(&tags).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return artifact, nil
}

func (r *lessonRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*types.LessonArtifact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var a types.LessonArtifact
	if err := transaction.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func (r *lessonRepo) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (*types.LessonArtifact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var a types.LessonArtifact
	if err := transaction.WithContext(ctx).Where("session_id = ?", sessionID).First(&a).Error; err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func (r *lessonRepo) RecentByStudent(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.LessonArtifact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var artifacts []*types.LessonArtifact
	q := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&artifacts).Error; err != nil {
		return nil, translateErr(err)
	}
	return artifacts, nil
}

func (r *lessonRepo) TagsByArtifact(ctx context.Context, tx *gorm.DB, artifactID uint) ([]*types.LessonSkillTag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var tags []*types.LessonSkillTag
	if err := transaction.WithContext(ctx).
		Where("lesson_artifact_id = ?", artifactID).
		Find(&tags).Error; err != nil {
		return nil, translateErr(err)
	}
	return tags, nil
}

func (r *lessonRepo) RecentTagValues(ctx context.Context, tx *gorm.DB, studentID uint, lessonLimit int) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	artifacts, err := r.RecentByStudent(ctx, transaction, studentID, lessonLimit)
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		return nil, nil
	}
	ids := make([]uint, 0, len(artifacts))
	for _, a := range artifacts {
		ids = append(ids, a.ID)
	}
	var values []string
	if err := transaction.WithContext(ctx).
		Model(&types.LessonSkillTag{}).
		Where("lesson_artifact_id IN ?", ids).
		Distinct().
		Pluck("tag_value", &values).Error; err != nil {
		return nil, translateErr(err)
	}
	return values, nil
}
