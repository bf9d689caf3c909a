package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

type SessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, s *types.Session) (*types.Session, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*types.Session, error)
	Update(ctx context.Context, tx *gorm.DB, s *types.Session) error
	// UpdateStatusIf flips the status only when the current value matches
	// from, reporting whether a row changed. This is the compare-and-swap
	// that keeps concurrent lifecycle events from double-firing.
	UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uint, from, to types.SessionStatus) (bool, error)
	ListByStudent(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.Session, error)
	CreateObservations(ctx context.Context, tx *gorm.DB, obs []*types.SessionSkillObservation) error
	RecentObservations(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.SessionSkillObservation, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(ctx context.Context, tx *gorm.DB, s *types.Session) (*types.Session, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(s).Error; err != nil {
		return nil, translateErr(err)
	}
	return s, nil
}

func (r *sessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*types.Session, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var s types.Session
	if err := transaction.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &s, nil
}

func (r *sessionRepo) Update(ctx context.Context, tx *gorm.DB, s *types.Session) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return translateErr(transaction.WithContext(ctx).Save(s).Error)
}

func (r *sessionRepo) UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uint, from, to types.SessionStatus) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.Session{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, translateErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepo) ListByStudent(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.Session, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var sessions []*types.Session
	q := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("scheduled_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, translateErr(err)
	}
	return sessions, nil
}

func (r *sessionRepo) CreateObservations(ctx context.Context, tx *gorm.DB, obs []*types.SessionSkillObservation) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(obs) == 0 {
		return nil
	}
	return translateErr(transaction.WithContext(ctx).Create(&obs).Error)
}

func (r *sessionRepo) RecentObservations(ctx context.Context, tx *gorm.DB, studentID uint, limit int) ([]*types.SessionSkillObservation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var obs []*types.SessionSkillObservation
	q := transaction.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&obs).Error; err != nil {
		return nil, translateErr(err)
	}
	return obs, nil
}
