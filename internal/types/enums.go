package types

// CEFRLevel is a standardized language proficiency band. "pending" is only
// legal on User.CurrentLevel before intake completes.
type CEFRLevel string

const (
	LevelA1      CEFRLevel = "A1"
	LevelA2      CEFRLevel = "A2"
	LevelB1      CEFRLevel = "B1"
	LevelB2      CEFRLevel = "B2"
	LevelC1      CEFRLevel = "C1"
	LevelC2      CEFRLevel = "C2"
	LevelPending CEFRLevel = "pending"
)

var cefrOrder = []CEFRLevel{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

// Index returns the position of the level in the CEFR ladder, or -1 for
// pending/unknown levels.
func (l CEFRLevel) Index() int {
	for i, lv := range cefrOrder {
		if lv == l {
			return i
		}
	}
	return -1
}

func (l CEFRLevel) Valid() bool { return l.Index() >= 0 }

// Next returns the level one band up, or the same level at the top.
func (l CEFRLevel) Next() CEFRLevel {
	i := l.Index()
	if i < 0 || i >= len(cefrOrder)-1 {
		return l
	}
	return cefrOrder[i+1]
}

// Prev returns the level one band down, or the same level at the bottom.
func (l CEFRLevel) Prev() CEFRLevel {
	i := l.Index()
	if i <= 0 {
		return l
	}
	return cefrOrder[i-1]
}

type SessionStatus string

const (
	SessionRequested SessionStatus = "requested"
	SessionConfirmed SessionStatus = "confirmed"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Recommendation is the global difficulty directive.
type Recommendation string

const (
	RecommendMaintain Recommendation = "maintain"
	RecommendIncrease Recommendation = "increase_difficulty"
	RecommendDecrease Recommendation = "decrease_difficulty"
)

// SkillAdjustment is the per-skill difficulty directive. SkillInsufficient
// marks skills with fewer than two scored items (cold start), which is
// distinct from an informed "maintain".
type SkillAdjustment string

const (
	SkillSimplify     SkillAdjustment = "simplify"
	SkillMaintain     SkillAdjustment = "maintain"
	SkillChallenge    SkillAdjustment = "challenge"
	SkillInsufficient SkillAdjustment = "<2pts"
)

type Trajectory string

const (
	TrajectoryImproving Trajectory = "improving"
	TrajectoryStable    Trajectory = "stable"
	TrajectoryDeclining Trajectory = "declining"
)

type TagType string

const (
	TagGrammar       TagType = "grammar"
	TagVocabulary    TagType = "vocabulary"
	TagPronunciation TagType = "pronunciation"
	TagConversation  TagType = "conversation"
)

func (t TagType) Valid() bool {
	switch t {
	case TagGrammar, TagVocabulary, TagPronunciation, TagConversation:
		return true
	}
	return false
}

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFillBlank      QuestionType = "fill_blank"
	QuestionTranslate      QuestionType = "translate"
	QuestionReorder        QuestionType = "reorder"
)

func (q QuestionType) Valid() bool {
	switch q {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionFillBlank, QuestionTranslate, QuestionReorder:
		return true
	}
	return false
}

type PatternStatus string

const (
	PatternExhibited PatternStatus = "exhibited"
	PatternOvercome  PatternStatus = "overcome"
)

// StepStatus reports the outcome of one post-confirmation pipeline step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)
