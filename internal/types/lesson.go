package types

import (
	"time"

	"gorm.io/datatypes"
)

// LessonArtifact is one generated lesson. At most one artifact per session;
// re-running the pipeline for the same session returns the existing row.
type LessonArtifact struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	SessionID     *uint          `gorm:"uniqueIndex" json:"session_id,omitempty"`
	StudentID     uint           `gorm:"index;not null" json:"student_id"`
	TeacherID     *uint          `json:"teacher_id,omitempty"`
	LessonJSON    datatypes.JSON `gorm:"type:jsonb;not null" json:"lesson"`
	Topics        datatypes.JSON `gorm:"type:jsonb" json:"topics,omitempty"`
	Difficulty    CEFRLevel      `gorm:"type:text;not null" json:"difficulty"`
	PromptVersion string         `gorm:"type:text" json:"prompt_version,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (LessonArtifact) TableName() string { return "lesson_artifacts" }

// LessonSkillTag is one canonical skill exercised by a lesson artifact,
// denormalized for cross-lesson queries.
type LessonSkillTag struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	LessonArtifactID uint      `gorm:"index;not null" json:"lesson_artifact_id"`
	TagType          TagType   `gorm:"type:text;not null" json:"tag_type"`
	TagValue         string    `gorm:"type:text;not null" json:"tag_value"`
	Level            CEFRLevel `gorm:"type:text" json:"level,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func (LessonSkillTag) TableName() string { return "lesson_skill_tags" }
