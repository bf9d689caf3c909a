package services

import (
	"encoding/json"
	"fmt"
	"testing"

	"gorm.io/gorm"

	"github.com/derasmus-hub/intake-eval-school/internal/config"
	"github.com/derasmus-hub/intake-eval-school/internal/db"
	"github.com/derasmus-hub/intake-eval-school/internal/genclient"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/prompts"
	"github.com/derasmus-hub/intake-eval-school/internal/repos"
	"github.com/derasmus-hub/intake-eval-school/internal/taxonomy"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

// testEnv wires the full service graph against an in-memory store and a
// scripted generator, the way cmd/main does against postgres.
type testEnv struct {
	gdb     *gorm.DB
	fake    *genclient.Fake
	student *types.User
	cfg     config.Settings

	users        repos.UserRepo
	sessions     repos.SessionRepo
	lessonsRepo  repos.LessonRepo
	quizzesRepo  repos.QuizRepo
	plansRepo    repos.PlanRepo
	dnaRepo      repos.DNARepo
	assessRepo   repos.AssessmentRepo
	interfRepo   repos.InterferenceRepo
	spacedRepo   repos.SpacedRepo

	scorer       *ScorerService
	difficulty   *DifficultyService
	planSvc      *PlanService
	interference *InterferenceService
	spaced       *SpacedService
	reassess     *ReassessmentService
	lessonSvc    *LessonService
	quizSvc      *QuizService
	orchestrator *OrchestratorService
	assessment   *AssessmentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb, err := db.NewSQLiteMemory()
	if err != nil {
		t.Fatal(err)
	}
	log := logger.NewNop()
	tax, err := taxonomy.New(log)
	if err != nil {
		t.Fatal(err)
	}
	lib, err := prompts.Load()
	if err != nil {
		t.Fatal(err)
	}

	e := &testEnv{
		gdb:  gdb,
		fake: genclient.NewFake(),
		cfg: config.Settings{
			DNAWindow:                    8,
			ReassessMinAttempts:          10,
			ReassessConfidenceMin:        0.6,
			PlanDropMaxPerUpdate:         1,
			LessonLookback:               3,
			ObservationLookback:          10,
			TeacherNotesSubstantiveChars: 50,
			ArticleForgivenessMaxLevel:   "A2",
		},
	}

	e.users = repos.NewUserRepo(gdb, log)
	e.sessions = repos.NewSessionRepo(gdb, log)
	e.lessonsRepo = repos.NewLessonRepo(gdb, log)
	e.quizzesRepo = repos.NewQuizRepo(gdb, log)
	e.plansRepo = repos.NewPlanRepo(gdb, log)
	e.dnaRepo = repos.NewDNARepo(gdb, log)
	e.assessRepo = repos.NewAssessmentRepo(gdb, log)
	e.interfRepo = repos.NewInterferenceRepo(gdb, log)
	e.spacedRepo = repos.NewSpacedRepo(gdb, log)

	e.scorer = NewScorerService(e.fake, tax, lib, e.cfg, log)
	e.difficulty = NewDifficultyService(e.quizzesRepo, e.dnaRepo, e.cfg, log)
	e.planSvc = NewPlanService(e.plansRepo, e.dnaRepo, e.users, e.interfRepo, e.fake, lib, tax, e.cfg, log)
	e.interference, err = NewInterferenceService(e.interfRepo, log)
	if err != nil {
		t.Fatal(err)
	}
	e.spaced = NewSpacedService(e.spacedRepo, e.fake, lib, tax, log)
	e.reassess = NewReassessmentService(e.quizzesRepo, e.dnaRepo, e.users, e.difficulty, e.cfg, log)
	e.lessonSvc = NewLessonService(e.lessonsRepo, e.plansRepo, e.sessions, e.quizzesRepo, e.dnaRepo,
		e.assessRepo, e.interfRepo, e.spacedRepo, e.users, e.fake, lib, tax, e.cfg, log)
	e.quizSvc = NewQuizService(e.quizzesRepo, e.lessonsRepo, e.users, e.scorer, e.difficulty,
		e.planSvc, e.interference, e.reassess, e.fake, lib, tax, e.cfg, log)
	e.orchestrator = NewOrchestratorService(e.sessions, e.lessonSvc, e.quizSvc, e.planSvc,
		e.spaced, e.difficulty, e.cfg, log)
	e.assessment = NewAssessmentService(e.assessRepo, e.users, e.dnaRepo, e.plansRepo,
		e.planSvc, e.fake, lib, tax, e.cfg, log)

	e.student = &types.User{Name: "Kasia", Email: "kasia@example.com", CurrentLevel: types.LevelA1}
	if err := gdb.Create(e.student).Error; err != nil {
		t.Fatal(err)
	}
	return e
}

func validLessonJSON() string {
	phase := func(title string) types.LessonPhase {
		return types.LessonPhase{Title: title, DurationMin: 10, Activities: []string{title + " activity"}}
	}
	lesson := types.LessonContent{
		Objective:          "Use a and an with singular nouns",
		Difficulty:         "A1",
		WarmUp:             phase("Warm up"),
		Presentation:       phase("Presentation"),
		ControlledPractice: phase("Controlled practice"),
		FreePractice:       phase("Free practice"),
		WrapUp:             phase("Wrap up"),
		SkillTags: []types.SkillTagRef{
			{Type: "grammar", Value: "articles_indefinite", Level: "A1"},
		},
	}
	raw, _ := json.Marshal(lesson)
	return string(raw)
}

func validQuizJSON(n int) string {
	quiz := types.QuizContent{Title: "Articles check"}
	for i := 0; i < n; i++ {
		quiz.Questions = append(quiz.Questions, types.QuizQuestion{
			ID:            fmt.Sprintf("q%d", i+1),
			Type:          "multiple_choice",
			Text:          "___ apple",
			Options:       []string{"a", "an"},
			CorrectAnswer: "an",
			SkillTag:      "articles_indefinite",
		})
	}
	raw, _ := json.Marshal(quiz)
	return string(raw)
}
