package types

import "time"

// Spaced repetition item kinds.
const (
	SpacedItemLearningPoint = "learning_point"
	SpacedItemVocabulary    = "vocabulary"
)

// SpacedItem is one unit in the spaced-repetition queue, scheduled with
// SM-2. NextReview is indexed for the due-items query.
type SpacedItem struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	StudentID       uint      `gorm:"index;not null" json:"student_id"`
	ItemType        string    `gorm:"type:text;not null" json:"item_type"`
	Content         string    `gorm:"type:text;not null" json:"content"`
	Translation     string    `gorm:"type:text" json:"translation,omitempty"`
	SkillTag        string    `gorm:"type:text" json:"skill_tag,omitempty"`
	EaseFactor      float64   `gorm:"not null;default:2.5" json:"ease_factor"`
	IntervalDays    int       `gorm:"not null;default:0" json:"interval_days"`
	Repetitions     int       `gorm:"not null;default:0" json:"repetitions"`
	TimesReviewed   int       `gorm:"not null;default:0" json:"times_reviewed"`
	LastRecallScore *float64  `json:"last_recall_score,omitempty"`
	NextReview      time.Time `gorm:"index" json:"next_review"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (SpacedItem) TableName() string { return "spaced_items" }
