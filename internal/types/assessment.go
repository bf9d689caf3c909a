package types

import (
	"time"

	"gorm.io/datatypes"
)

// Assessment stages.
const (
	AssessmentStagePlacement  = "placement"
	AssessmentStageDiagnostic = "diagnostic"
	AssessmentStageCompleted  = "completed"
)

// Assessment records one intake run: self-reported placement answers, the
// generated diagnostic question set, the student's responses and the
// determined level with confidence.
type Assessment struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	StudentID       uint           `gorm:"index;not null" json:"student_id"`
	Stage           string         `gorm:"type:text;not null;default:placement" json:"stage"`
	PlacementJSON   datatypes.JSON `gorm:"type:jsonb" json:"placement,omitempty"`
	DiagnosticJSON  datatypes.JSON `gorm:"type:jsonb" json:"diagnostic,omitempty"`
	ResponsesJSON   datatypes.JSON `gorm:"type:jsonb" json:"responses,omitempty"`
	DeterminedLevel CEFRLevel      `gorm:"type:text" json:"determined_level,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	WeakAreas       datatypes.JSON `gorm:"type:jsonb" json:"weak_areas,omitempty"`
	Justification   string         `gorm:"type:text" json:"justification,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (Assessment) TableName() string { return "assessments" }

// LearnerProfile is the synthesized output of a completed assessment, one
// row per student, overwritten on reassessment.
type LearnerProfile struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	StudentID             uint           `gorm:"uniqueIndex;not null" json:"student_id"`
	Gaps                  datatypes.JSON `gorm:"type:jsonb" json:"gaps,omitempty"`
	Priorities            datatypes.JSON `gorm:"type:jsonb" json:"priorities,omitempty"`
	ProfileSummary        string         `gorm:"type:text" json:"profile_summary,omitempty"`
	RecommendedStartLevel CEFRLevel      `gorm:"type:text" json:"recommended_start_level,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

func (LearnerProfile) TableName() string { return "learner_profiles" }
