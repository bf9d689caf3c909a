package types

import (
	"time"

	"github.com/google/uuid"
)

// Generation call statuses.
const (
	GenerationCallOK       = "ok"
	GenerationCallTimeout  = "timeout"
	GenerationCallInvalid  = "invalid_output"
	GenerationCallFailed   = "failed"
	GenerationCallRejected = "rejected"
)

// GenerationCallLog records one call to the content generator for
// provenance and debugging. CallID ties retries of the same logical request
// together.
type GenerationCallLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CallID     uuid.UUID `gorm:"type:uuid;index;not null" json:"call_id"`
	UseCase    string    `gorm:"type:text;not null" json:"use_case"`
	Model      string    `gorm:"type:text;not null" json:"model"`
	StudentID  *uint     `gorm:"index" json:"student_id,omitempty"`
	Attempt    int       `gorm:"not null;default:1" json:"attempt"`
	Status     string    `gorm:"type:text;not null" json:"status"`
	LatencyMS  int64     `json:"latency_ms"`
	ErrorText  string    `gorm:"type:text" json:"error_text,omitempty"`
	PromptName string    `gorm:"type:text" json:"prompt_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (GenerationCallLog) TableName() string { return "generation_call_logs" }
