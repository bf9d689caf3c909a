package types

import (
	"time"

	"gorm.io/datatypes"
)

// NextQuiz is the quiz derived from a lesson artifact, waiting for the
// student. One per session.
type NextQuiz struct {
	ID                          uint            `gorm:"primaryKey" json:"id"`
	SessionID                   *uint           `gorm:"uniqueIndex" json:"session_id,omitempty"`
	StudentID                   uint            `gorm:"index;not null" json:"student_id"`
	DerivedFromLessonArtifactID *uint           `gorm:"index" json:"derived_from_lesson_artifact_id,omitempty"`
	LessonArtifact              *LessonArtifact `gorm:"constraint:OnDelete:SET NULL;foreignKey:DerivedFromLessonArtifactID;references:ID" json:"-"`
	QuizJSON                    datatypes.JSON  `gorm:"type:jsonb;not null" json:"quiz"`
	CreatedAt                   time.Time       `json:"created_at"`
}

func (NextQuiz) TableName() string { return "next_quizzes" }

// QuizAttempt is a student's single scored attempt at a quiz. The
// (quiz_id, student_id) unique index makes submission idempotent.
type QuizAttempt struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	QuizID      uint           `gorm:"not null;uniqueIndex:idx_attempt_quiz_student" json:"quiz_id"`
	StudentID   uint           `gorm:"not null;uniqueIndex:idx_attempt_quiz_student" json:"student_id"`
	SessionID   *uint          `gorm:"index" json:"session_id,omitempty"`
	Score       *float64       `json:"score,omitempty"`
	ResultsJSON datatypes.JSON `gorm:"type:jsonb" json:"results,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	SubmittedAt *time.Time     `json:"submitted_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (QuizAttempt) TableName() string { return "quiz_attempts" }

// Scored reports whether the attempt has been submitted and graded.
func (a *QuizAttempt) Scored() bool { return a.SubmittedAt != nil && a.Score != nil }

// QuizAttemptItem is one graded answer within an attempt.
type QuizAttemptItem struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	AttemptID      uint         `gorm:"index;not null" json:"attempt_id"`
	Attempt        *QuizAttempt `gorm:"constraint:OnDelete:CASCADE;foreignKey:AttemptID;references:ID" json:"-"`
	QuestionID     string       `gorm:"type:text;not null" json:"question_id"`
	QuestionType   string       `gorm:"type:text;not null" json:"question_type"`
	SkillTag       string       `gorm:"type:text" json:"skill_tag,omitempty"`
	StudentAnswer  string       `gorm:"type:text" json:"student_answer"`
	ExpectedAnswer string       `gorm:"type:text" json:"expected_answer"`
	IsCorrect      bool         `json:"is_correct"`
	NeedsAIGrading bool         `json:"needs_ai_grading"`
	PartialCredit  *float64     `json:"partial_credit,omitempty"`
	Feedback       string       `gorm:"type:text" json:"feedback,omitempty"`
	TimeSpentSec   *int         `json:"time_spent_sec,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

func (QuizAttemptItem) TableName() string { return "quiz_attempt_items" }
