package types

import (
	"time"

	"gorm.io/datatypes"
)

// User is a student or teacher account. Students carry the evolving CEFR
// level; teachers only need identity.
type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"type:text;not null" json:"name"`
	Email          string         `gorm:"type:text;uniqueIndex;not null" json:"email"`
	Role           string         `gorm:"type:text;not null;default:student" json:"role"`
	NativeLanguage string         `gorm:"type:text;not null;default:pl" json:"native_language"`
	CurrentLevel   CEFRLevel      `gorm:"type:text;not null;default:pending" json:"current_level"`
	Goals          datatypes.JSON `gorm:"type:jsonb" json:"goals,omitempty"`
	ProblemAreas   datatypes.JSON `gorm:"type:jsonb" json:"problem_areas,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (User) TableName() string { return "users" }
