package types

import "time"

// Session is a scheduled tutoring appointment. Status moves
// requested -> confirmed -> completed, with cancel legal from any
// non-terminal state. Completion triggers the post-session pipeline.
type Session struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	StudentID      uint          `gorm:"index;not null" json:"student_id"`
	TeacherID      *uint         `gorm:"index" json:"teacher_id,omitempty"`
	ScheduledAt    time.Time     `gorm:"not null" json:"scheduled_at"`
	DurationMin    int           `gorm:"not null;default:60" json:"duration_min"`
	Status         SessionStatus `gorm:"type:text;not null;default:requested" json:"status"`
	Topic          string        `gorm:"type:text" json:"topic,omitempty"`
	TeacherNotes   string        `gorm:"type:text" json:"teacher_notes,omitempty"`
	Homework       string        `gorm:"type:text" json:"homework,omitempty"`
	SessionSummary string        `gorm:"type:text" json:"session_summary,omitempty"`
	CancelReason   string        `gorm:"type:text" json:"cancel_reason,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }

// Terminal reports whether no further status transitions are legal.
func (s *Session) Terminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionCancelled
}

// SessionSkillObservation is a teacher-entered per-skill score captured
// during or after a session. Scores are 0-100.
type SessionSkillObservation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"index;not null" json:"session_id"`
	StudentID uint      `gorm:"index;not null" json:"student_id"`
	Skill     string    `gorm:"type:text;not null" json:"skill"`
	Score     float64   `gorm:"not null" json:"score"`
	Level     CEFRLevel `gorm:"type:text" json:"level,omitempty"`
	Notes     string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (SessionSkillObservation) TableName() string { return "session_skill_observations" }
