package types

import (
	"time"

	"gorm.io/datatypes"
)

// LearningDNA is one append-only snapshot of a student's performance
// profile. Versions are dense per student; the current profile is the max
// version.
type LearningDNA struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	StudentID    uint           `gorm:"not null;uniqueIndex:idx_dna_student_version" json:"student_id"`
	Version      int            `gorm:"not null;uniqueIndex:idx_dna_student_version" json:"version"`
	ProfileJSON  datatypes.JSON `gorm:"type:jsonb;not null" json:"profile"`
	TriggerEvent string         `gorm:"type:text" json:"trigger_event,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (LearningDNA) TableName() string { return "learning_dna" }

// CEFRHistory records every level determination for a student, whether from
// intake, reassessment or manual override.
type CEFRHistory struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	StudentID  uint      `gorm:"index;not null" json:"student_id"`
	Level      CEFRLevel `gorm:"type:text;not null" json:"level"`
	Confidence *float64  `json:"confidence,omitempty"`
	Source     string    `gorm:"type:text;not null" json:"source"`
	Rationale  string    `gorm:"type:text" json:"rationale,omitempty"`
	RecordedAt time.Time `gorm:"index" json:"recorded_at"`
}

func (CEFRHistory) TableName() string { return "cefr_history" }
