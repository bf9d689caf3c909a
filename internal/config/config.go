package config

import (
	"time"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/utils"
)

// Settings carries every tunable the learning loop engine reads. All values
// come from the environment (with .env loaded at startup); components receive
// Settings explicitly, never read env themselves.
type Settings struct {
	// Generator client
	GeneratorBaseURL        string
	GeneratorAPIKey         string
	GeneratorModel          string
	GeneratorLessonModel    string
	GeneratorAssessModel    string
	GeneratorCheapModel     string
	GeneratorTimeoutInitial time.Duration
	GeneratorTimeoutRetry   time.Duration
	GeneratorRetries        int

	// Difficulty / DNA engine
	DNAWindow int

	// Reassessment
	ReassessMinAttempts   int
	ReassessConfidenceMin float64

	// Plan updater
	PlanDropMaxPerUpdate int

	// Lesson builder
	LessonLookback      int
	ObservationLookback int

	// Session orchestration
	TeacherNotesSubstantiveChars int

	// Dispatcher
	WorkerPoolSize  int
	PipelineTimeout time.Duration

	// Scorer
	ArticleForgivenessMaxLevel string // highest CEFR level where leading-article slips are forgiven
}

func Load(log *logger.Logger) Settings {
	return Settings{
		GeneratorBaseURL:        utils.GetEnv("GENERATOR_BASE_URL", "https://api.openai.com/v1", log),
		GeneratorAPIKey:         utils.GetEnv("GENERATOR_API_KEY", "", log),
		GeneratorModel:          utils.GetEnv("GENERATOR_MODEL", "gpt-4o-mini", log),
		GeneratorLessonModel:    utils.GetEnv("GENERATOR_LESSON_MODEL", "", log),
		GeneratorAssessModel:    utils.GetEnv("GENERATOR_ASSESSMENT_MODEL", "", log),
		GeneratorCheapModel:     utils.GetEnv("GENERATOR_CHEAP_MODEL", "", log),
		GeneratorTimeoutInitial: utils.GetEnvAsDuration("GENERATOR_TIMEOUT_INITIAL", 60*time.Second, log),
		GeneratorTimeoutRetry:   utils.GetEnvAsDuration("GENERATOR_TIMEOUT_RETRY", 45*time.Second, log),
		GeneratorRetries:        utils.GetEnvAsInt("GENERATOR_RETRIES", 1, log),

		DNAWindow: utils.GetEnvAsInt("DNA_WINDOW", 8, log),

		ReassessMinAttempts:   utils.GetEnvAsInt("REASSESS_MIN_ATTEMPTS", 10, log),
		ReassessConfidenceMin: utils.GetEnvAsFloat("REASSESS_CONFIDENCE_MIN", 0.6, log),

		PlanDropMaxPerUpdate: utils.GetEnvAsInt("PLAN_DROP_MAX_PER_UPDATE", 1, log),

		LessonLookback:      utils.GetEnvAsInt("LESSON_LOOKBACK", 3, log),
		ObservationLookback: utils.GetEnvAsInt("OBSERVATION_LOOKBACK", 10, log),

		TeacherNotesSubstantiveChars: utils.GetEnvAsInt("TEACHER_NOTES_SUBSTANTIVE_CHARS", 50, log),

		WorkerPoolSize:  utils.GetEnvAsInt("WORKER_POOL_SIZE", 8, log),
		PipelineTimeout: utils.GetEnvAsDuration("PIPELINE_TIMEOUT", 150*time.Second, log),

		ArticleForgivenessMaxLevel: utils.GetEnv("ARTICLE_FORGIVENESS_MAX_LEVEL", "A2", log),
	}
}
