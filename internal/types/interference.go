package types

import "time"

// L1InterferencePattern tracks one native-language interference error
// observed for a student. The (student, category, detail) unique index makes
// repeat observations increment rather than duplicate.
type L1InterferencePattern struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	StudentID       uint          `gorm:"not null;uniqueIndex:idx_l1_student_pattern" json:"student_id"`
	PatternCategory string        `gorm:"type:text;not null;uniqueIndex:idx_l1_student_pattern" json:"pattern_category"`
	PatternDetail   string        `gorm:"type:text;not null;uniqueIndex:idx_l1_student_pattern" json:"pattern_detail"`
	Status          PatternStatus `gorm:"type:text;not null;default:exhibited" json:"status"`
	Occurrences     int           `gorm:"not null;default:1" json:"occurrences"`
	FirstSeenAt     time.Time     `json:"first_seen_at"`
	LastSeenAt      time.Time     `json:"last_seen_at"`
	OvercomeAt      *time.Time    `json:"overcome_at,omitempty"`
}

func (L1InterferencePattern) TableName() string { return "l1_interference_patterns" }
