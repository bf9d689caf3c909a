package types

import (
	"time"

	"gorm.io/datatypes"
)

// Plan update triggers recorded on each version.
const (
	PlanTriggerInitial     = "initial"
	PlanTriggerQuizScored  = "quiz_scored"
	PlanTriggerReassess    = "reassessment"
	PlanTriggerManual      = "manual"
	PlanTriggerSessionDone = "session_completed"
)

// LearningPlan is one immutable version of a student's plan. Versions are
// dense per student starting at 1; the current plan is the max version.
type LearningPlan struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	StudentID          uint           `gorm:"not null;uniqueIndex:idx_plan_student_version" json:"student_id"`
	Version            int            `gorm:"not null;uniqueIndex:idx_plan_student_version" json:"version"`
	PlanJSON           datatypes.JSON `gorm:"type:jsonb;not null" json:"plan"`
	Summary            string         `gorm:"type:text" json:"summary,omitempty"`
	Trigger            string         `gorm:"type:text;not null" json:"trigger"`
	SourceAssessmentID *uint          `json:"source_assessment_id,omitempty"`
	SourceAttemptID    *uint          `json:"source_attempt_id,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

func (LearningPlan) TableName() string { return "learning_plans" }

// LearningPath is the coarse long-horizon roadmap laid down at intake,
// distinct from the per-update LearningPlan versions.
type LearningPath struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	StudentID    uint           `gorm:"index;not null" json:"student_id"`
	CurrentLevel CEFRLevel      `gorm:"type:text;not null" json:"current_level"`
	TargetLevel  CEFRLevel      `gorm:"type:text;not null" json:"target_level"`
	WeeklyPlan   datatypes.JSON `gorm:"type:jsonb" json:"weekly_plan,omitempty"`
	Status       string         `gorm:"type:text;not null;default:active" json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (LearningPath) TableName() string { return "learning_paths" }
