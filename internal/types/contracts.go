package types

import "time"

// Generator output contracts. These are validated with struct tags before
// anything is persisted; malformed output is rejected, not repaired.

// SkillTagRef names one canonical skill a lesson or question exercises.
type SkillTagRef struct {
	Type  string `json:"type" validate:"required,oneof=grammar vocabulary pronunciation conversation"`
	Value string `json:"value" validate:"required"`
	Level string `json:"level,omitempty" validate:"omitempty,oneof=A1 A2 B1 B2 C1 C2"`
}

// LessonPhase is one of the five ordered segments of a lesson.
type LessonPhase struct {
	Title       string   `json:"title" validate:"required"`
	DurationMin int      `json:"duration_min" validate:"required,gt=0"`
	Activities  []string `json:"activities" validate:"required,min=1,dive,required"`
	Materials   []string `json:"materials,omitempty"`
	TeacherTips string   `json:"teacher_tips,omitempty"`
}

// LessonContent is the full generated lesson body.
type LessonContent struct {
	Objective          string        `json:"objective" validate:"required"`
	Difficulty         string        `json:"difficulty" validate:"required,oneof=A1 A2 B1 B2 C1 C2"`
	PolishExplanation  string        `json:"polish_explanation,omitempty"`
	WarmUp             LessonPhase   `json:"warm_up" validate:"required"`
	Presentation       LessonPhase   `json:"presentation" validate:"required"`
	ControlledPractice LessonPhase   `json:"controlled_practice" validate:"required"`
	FreePractice       LessonPhase   `json:"free_practice" validate:"required"`
	WrapUp             LessonPhase   `json:"wrap_up" validate:"required"`
	SkillTags          []SkillTagRef `json:"skill_tags" validate:"required,min=1,dive"`
	Homework           string        `json:"homework,omitempty"`
}

// QuizQuestion is one generated question. CorrectAnswer is stored
// server-side only and stripped before the quiz is served.
type QuizQuestion struct {
	ID            string   `json:"id" validate:"required"`
	Type          string   `json:"type" validate:"required,oneof=multiple_choice true_false fill_blank translate reorder"`
	Text          string   `json:"text" validate:"required"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer" validate:"required"`
	Explanation   string   `json:"explanation,omitempty"`
	SkillTag      string   `json:"skill_tag" validate:"required"`
}

// QuizContent is the full generated quiz body.
type QuizContent struct {
	Title     string         `json:"title" validate:"required"`
	Questions []QuizQuestion `json:"questions" validate:"required,min=1,dive"`
}

// PlanWeakness ranks one skill area inside a plan.
type PlanWeakness struct {
	SkillArea        string  `json:"skill_area" validate:"required"`
	AccuracyObserved float64 `json:"accuracy_observed" validate:"gte=0,lte=100"`
	Priority         string  `json:"priority" validate:"required,oneof=high medium low maintenance"`
}

// PlanAdjustment is the difficulty directive carried inside a plan.
type PlanAdjustment struct {
	CurrentLevel   string `json:"current_level" validate:"required,oneof=A1 A2 B1 B2 C1 C2"`
	Recommendation string `json:"recommendation" validate:"required,oneof=maintain increase_difficulty decrease_difficulty"`
	Rationale      string `json:"rationale,omitempty"`
}

// PlanContent is the structured body of one learning plan version.
type PlanContent struct {
	Summary          string            `json:"summary" validate:"required"`
	GoalsNextTwoWeeks []string         `json:"goals_next_two_weeks,omitempty"`
	TopWeaknesses    []PlanWeakness    `json:"top_weaknesses" validate:"dive"`
	Adjustment       PlanAdjustment    `json:"difficulty_adjustment" validate:"required"`
	GrammarFocus     []string          `json:"grammar_focus,omitempty"`
	VocabularyFocus  []string          `json:"vocabulary_focus,omitempty"`
	RecommendedDrills []string         `json:"recommended_drills,omitempty"`
	TeacherGuidance  map[string]string `json:"teacher_guidance,omitempty"`
}

// GradingResult is the generator's verdict on one free-form answer.
type GradingResult struct {
	IsCorrect     bool    `json:"is_correct"`
	PartialCredit float64 `json:"partial_credit" validate:"gte=0,lte=1"`
	Feedback      string  `json:"feedback,omitempty"`
}

// DiagnosticQuestionSet is the generated intake question set.
type DiagnosticQuestionSet struct {
	Questions []QuizQuestion `json:"questions" validate:"required,min=1,dive"`
}

// DiagnosticResult is the generator's evaluation of intake responses.
type DiagnosticResult struct {
	DeterminedLevel   string             `json:"determined_level" validate:"required,oneof=A1 A2 B1 B2 C1 C2"`
	ConfidenceScore   float64            `json:"confidence_score" validate:"gte=0,lte=1"`
	SubSkillBreakdown map[string]string  `json:"sub_skill_breakdown,omitempty"`
	WeakAreas         []string           `json:"weak_areas,omitempty"`
	Justification     string             `json:"justification,omitempty"`
	Recommendations   []string           `json:"recommendations,omitempty"`
}

// LearningPoint is one extractable unit from teacher notes, bound for the
// spaced-repetition queue.
type LearningPoint struct {
	Content     string `json:"content" validate:"required"`
	PointType   string `json:"point_type" validate:"required,oneof=learning_point vocabulary"`
	SkillTag    string `json:"skill_tag,omitempty"`
	Translation string `json:"translation,omitempty"`
}

// LearningPointsResult is the generator's extraction output.
type LearningPointsResult struct {
	LearningPoints []LearningPoint `json:"learning_points" validate:"dive"`
}

// SkillStat aggregates graded items for one canonical skill.
type SkillStat struct {
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

// DNAProfile is the computed performance snapshot stored on each
// LearningDNA version.
type DNAProfile struct {
	RecentAverage        float64                    `json:"recent_average"`
	LifetimeAverage      float64                    `json:"lifetime_average"`
	AttemptCount         int                        `json:"attempt_count"`
	ColdStart            bool                       `json:"cold_start"`
	Trajectory           Trajectory                 `json:"trajectory"`
	GlobalRecommendation Recommendation             `json:"global_recommendation"`
	SkillStats           map[string]SkillStat       `json:"skill_stats,omitempty"`
	SkillAdjustments     map[string]SkillAdjustment `json:"skill_adjustments,omitempty"`
	StrongSkills         []string                   `json:"strong_skills,omitempty"`
	WeakSkills           []string                   `json:"weak_skills,omitempty"`
	ComputedAt           time.Time                  `json:"computed_at"`
}

// AttemptItemResult is one graded answer inside QuizAttempt.ResultsJSON.
type AttemptItemResult struct {
	QuestionID    string   `json:"question_id"`
	Type          string   `json:"type"`
	SkillTag      string   `json:"skill_tag,omitempty"`
	StudentAnswer string   `json:"student_answer"`
	IsCorrect     bool     `json:"is_correct"`
	PartialCredit *float64 `json:"partial_credit,omitempty"`
	Feedback      string   `json:"feedback,omitempty"`
	AIGraded      bool     `json:"ai_graded,omitempty"`
}

// AttemptResult is the full grading breakdown stored on an attempt.
type AttemptResult struct {
	Score         float64             `json:"score"`
	CorrectCount  int                 `json:"correct_count"`
	TotalCount    int                 `json:"total_count"`
	Items         []AttemptItemResult `json:"items"`
	SkillBreakdown map[string]SkillStat `json:"skill_breakdown,omitempty"`
}
