package repos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

type QuizRepo interface {
	CreateQuiz(ctx context.Context, tx *gorm.DB, q *types.NextQuiz) (*types.NextQuiz, error)
	GetQuiz(ctx context.Context, tx *gorm.DB, id uint) (*types.NextQuiz, error)
	GetQuizBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (*types.NextQuiz, error)
	GetQuizByArtifact(ctx context.Context, tx *gorm.DB, artifactID uint) (*types.NextQuiz, error)
	// PendingByStudent returns quizzes the student has not yet attempted,
	// oldest first.
	PendingByStudent(ctx context.Context, tx *gorm.DB, studentID uint) ([]*types.NextQuiz, error)
	CreateAttempt(ctx context.Context, tx *gorm.DB, a *types.QuizAttempt) (*types.QuizAttempt, error)
	GetAttempt(ctx context.Context, tx *gorm.DB, id uint) (*types.QuizAttempt, error)
	GetAttemptByQuizAndStudent(ctx context.Context, tx *gorm.DB, quizID, studentID uint) (*types.QuizAttempt, error)
	FinalizeAttempt(ctx context.Context, tx *gorm.DB, a *types.QuizAttempt, items []*types.QuizAttemptItem) error
	// ScoredAttempts returns submitted attempts newest first.
	ScoredAttempts(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.QuizAttempt, error)
	CountScoredSince(ctx context.Context, tx *gorm.DB, studentID uint, since time.Time) (int64, error)
	ItemsByAttempts(ctx context.Context, tx *gorm.DB, attemptIDs []uint) ([]*types.QuizAttemptItem, error)
}

type quizRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuizRepo(db *gorm.DB, baseLog *logger.Logger) QuizRepo {
	return &quizRepo{db: db, log: baseLog.With("repo", "QuizRepo")}
}

func (r *quizRepo) CreateQuiz(ctx context.Context, tx *gorm.DB, q *types.NextQuiz) (*types.NextQuiz, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(q).Error; err != nil {
		return nil, translateErr(err)
	}
	return q, nil
}

func (r *quizRepo) GetQuiz(ctx context.Context, tx *gorm.DB, id uint) (*types.NextQuiz, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var q types.NextQuiz
	if err := transaction.WithContext(ctx).First(&q, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &q, nil
}

func (r *quizRepo) GetQuizBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (*types.NextQuiz, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var q types.NextQuiz
	if err := transaction.WithContext(ctx).Where("session_id = ?", sessionID).First(&q).Error; err != nil {
		return nil, translateErr(err)
	}
	return &q, nil
}

func (r *quizRepo) GetQuizByArtifact(ctx context.Context, tx *gorm.DB, artifactID uint) (*types.NextQuiz, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var q types.NextQuiz
	if err := transaction.WithContext(ctx).Where("derived_from_lesson_artifact_id = ?", artifactID).First(&q).Error; err != nil {
		return nil, translateErr(err)
	}
	return &q, nil
}

func (r *quizRepo) PendingByStudent(ctx context.Context, tx *gorm.DB, studentID uint) ([]*types.NextQuiz, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var quizzes []*types.NextQuiz
	err := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Where("id NOT IN (?)", transaction.
			Model(&types.QuizAttempt{}).
			Select("quiz_id").
			Where("student_id = ? AND submitted_at IS NOT NULL", studentID)).
		Order("id ASC").
		Find(&quizzes).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return quizzes, nil
}

func (r *quizRepo) CreateAttempt(ctx context.Context, tx *gorm.DB, a *types.QuizAttempt) (*types.QuizAttempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(a).Error; err != nil {
		return nil, translateErr(err)
	}
	return a, nil
}

func (r *quizRepo) GetAttempt(ctx context.Context, tx *gorm.DB, id uint) (*types.QuizAttempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var a types.QuizAttempt
	if err := transaction.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func (r *quizRepo) GetAttemptByQuizAndStudent(ctx context.Context, tx *gorm.DB, quizID, studentID uint) (*types.QuizAttempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var a types.QuizAttempt
	if err := transaction.WithContext(ctx).
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		First(&a).Error; err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func (r *quizRepo) FinalizeAttempt(ctx context.Context, tx *gorm.DB, a *types.QuizAttempt, items []*types.QuizAttemptItem) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.Save(a).Error; err != nil {
			return err
		}
		for _, item := range items {
			item.AttemptID = a.ID
		}
		if len(items) > 0 {
			if err := inner.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translateErr(err)
}

func (r *quizRepo) ScoredAttempts(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.QuizAttempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var attempts []*types.QuizAttempt
	q := transaction.WithContext(ctx).
		Where("student_id = ? AND submitted_at IS NOT NULL", studentID).
		Order("submitted_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&attempts).Error; err != nil {
		return nil, translateErr(err)
	}
	return attempts, nil
}

func (r *quizRepo) CountScoredSince(ctx context.Context, tx *gorm.DB, studentID uint, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.QuizAttempt{}).
		Where("student_id = ? AND submitted_at IS NOT NULL AND submitted_at > ?", studentID, since).
		Count(&n).Error
	if err != nil {
		return 0, translateErr(err)
	}
	return n, nil
}

func (r *quizRepo) ItemsByAttempts(ctx context.Context, tx *gorm.DB, attemptIDs []uint) ([]*types.QuizAttemptItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var items []*types.QuizAttemptItem
	if len(attemptIDs) == 0 {
		return items, nil
	}
	if err := transaction.WithContext(ctx).
		Where("attempt_id IN ?", attemptIDs).
		Find(&items).Error; err != nil {
		return nil, translateErr(err)
	}
	return items, nil
}
