package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/derasmus-hub/intake-eval-school/internal/genclient"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

func confirmedSessionWithLesson(t *testing.T, e *testEnv) (*types.Session, *types.LessonArtifact) {
	t.Helper()
	ctx := context.Background()
	session, err := e.sessions.Create(ctx, nil, &types.Session{
		StudentID:   e.student.ID,
		ScheduledAt: time.Now().Add(time.Hour),
		DurationMin: 60,
		Status:      types.SessionConfirmed,
	})
	if err != nil {
		t.Fatal(err)
	}
	e.fake.Respond(genclient.UseLesson, validLessonJSON())
	artifact, err := e.lessonSvc.BuildForSession(ctx, session)
	if err != nil {
		t.Fatal(err)
	}
	return session, artifact
}

func TestDeriveForSessionCanonicalizesAndIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	session, artifact := confirmedSessionWithLesson(t, e)

	quizContent := types.QuizContent{
		Title: "Articles check",
		Questions: []types.QuizQuestion{
			{ID: "q1", Type: "multiple_choice", Text: "___ apple", Options: []string{"a", "an"},
				CorrectAnswer: "an", SkillTag: "grammar_articles_indefinite"},
			{ID: "q2", Type: "true_false", Text: "'An' precedes vowel sounds.",
				CorrectAnswer: "true", SkillTag: "articles_a_an_usage"},
		},
	}
	raw, _ := json.Marshal(quizContent)
	e.fake.Respond(genclient.UseQuiz, string(raw))

	quiz, err := e.quizSvc.DeriveForSession(ctx, session, artifact)
	if err != nil {
		t.Fatalf("DeriveForSession: %v", err)
	}
	var stored types.QuizContent
	if err := json.Unmarshal(quiz.QuizJSON, &stored); err != nil {
		t.Fatal(err)
	}
	for _, q := range stored.Questions {
		if q.SkillTag != "articles_indefinite" {
			t.Fatalf("question %s tag = %q, want articles_indefinite", q.ID, q.SkillTag)
		}
	}

	again, err := e.quizSvc.DeriveForSession(ctx, session, artifact)
	if err != nil || again.ID != quiz.ID {
		t.Fatalf("repeat derive: id %d vs %d, err = %v", again.ID, quiz.ID, err)
	}
	if e.fake.CallCount(genclient.UseQuiz) != 1 {
		t.Fatalf("quiz generated %d times", e.fake.CallCount(genclient.UseQuiz))
	}
}

func TestDeriveForSessionRejectsForeignArtifact(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, artifact := confirmedSessionWithLesson(t, e)

	other := &types.User{Name: "Tomek", Email: "tomek@example.com", CurrentLevel: types.LevelA1}
	if err := e.gdb.Create(other).Error; err != nil {
		t.Fatal(err)
	}
	foreign, err := e.sessions.Create(ctx, nil, &types.Session{
		StudentID:   other.ID,
		ScheduledAt: time.Now().Add(time.Hour),
		DurationMin: 60,
		Status:      types.SessionConfirmed,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.quizSvc.DeriveForSession(ctx, foreign, artifact); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func seedQuiz(t *testing.T, e *testEnv, n int) *types.NextQuiz {
	t.Helper()
	quiz, err := e.quizzesRepo.CreateQuiz(context.Background(), nil, &types.NextQuiz{
		StudentID: e.student.ID,
		QuizJSON:  datatypes.JSON([]byte(validQuizJSON(n))),
	})
	if err != nil {
		t.Fatal(err)
	}
	return quiz
}

func TestSubmitScoresAndUpdatesDownstream(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	quiz := seedQuiz(t, e, 4)
	e.fake.Respond(genclient.UsePlan, validPlanJSON("decrease_difficulty"))

	answers := map[string]string{"q1": "an", "q2": "an", "q3": "a", "q4": "an"}
	result, err := e.quizSvc.Submit(ctx, quiz.ID, e.student.ID, answers)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.AlreadyDone {
		t.Fatal("first submission flagged as replay")
	}
	if result.Score != 0.75 {
		t.Fatalf("score = %v, want 0.75", result.Score)
	}
	if result.PlanVersion != 1 {
		t.Fatalf("plan version = %d, want 1", result.PlanVersion)
	}

	// One snapshot per scored attempt.
	dna, err := e.dnaRepo.Latest(ctx, nil, e.student.ID)
	if err != nil || dna.Version != 1 {
		t.Fatalf("dna = %+v, err = %v", dna, err)
	}
	var profile types.DNAProfile
	if err := json.Unmarshal(dna.ProfileJSON, &profile); err != nil {
		t.Fatal(err)
	}
	if profile.AttemptCount != 1 || !profile.ColdStart {
		t.Fatalf("profile = %+v", profile)
	}

	attempt, err := e.quizzesRepo.GetAttemptByQuizAndStudent(ctx, nil, quiz.ID, e.student.ID)
	if err != nil || !attempt.Scored() || *attempt.Score != 0.75 {
		t.Fatalf("attempt = %+v, err = %v", attempt, err)
	}
	items, err := e.quizzesRepo.ItemsByAttempts(ctx, nil, []uint{attempt.ID})
	if err != nil || len(items) != 4 {
		t.Fatalf("items = %d, err = %v", len(items), err)
	}
}

func TestSubmitReplaysExistingAttempt(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	quiz := seedQuiz(t, e, 2)
	e.fake.Respond(genclient.UsePlan, validPlanJSON("decrease_difficulty"))

	first, err := e.quizSvc.Submit(ctx, quiz.ID, e.student.ID, map[string]string{"q1": "an", "q2": "an"})
	if err != nil {
		t.Fatal(err)
	}

	// Different answers on resubmission change nothing.
	second, err := e.quizSvc.Submit(ctx, quiz.ID, e.student.ID, map[string]string{"q1": "a", "q2": "a"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !second.AlreadyDone {
		t.Fatal("resubmission not flagged as replay")
	}
	if second.Score != first.Score || second.AttemptID != first.AttemptID {
		t.Fatalf("replay = %+v, first = %+v", second, first)
	}

	// No second DNA snapshot either.
	dna, err := e.dnaRepo.Latest(ctx, nil, e.student.ID)
	if err != nil || dna.Version != 1 {
		t.Fatalf("dna version = %d, err = %v", dna.Version, err)
	}
}

func TestSubmitAfterPromotionEasesDifficulty(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	seedScoredAttempts(t, e.gdb, e.student.ID, nearMissScores)

	outcome, err := e.reassess.Evaluate(ctx, e.student.ID, floatPtr(0.85))
	if err != nil || !outcome.Changed || outcome.To != types.LevelA2 {
		t.Fatalf("promotion outcome = %+v, err = %v", outcome, err)
	}

	// A 50% attempt right after the promotion: the new plan must carry the
	// eased directive, and the level must hold.
	quiz := seedQuiz(t, e, 2)
	e.fake.Respond(genclient.UsePlan, validPlanJSON("decrease_difficulty"))
	result, err := e.quizSvc.Submit(ctx, quiz.ID, e.student.ID, map[string]string{"q1": "an", "q2": "a"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Score != 0.5 {
		t.Fatalf("score = %v, want 0.5", result.Score)
	}
	if result.PlanVersion != 1 {
		t.Fatalf("plan version = %d, want 1", result.PlanVersion)
	}

	dna, err := e.dnaRepo.Latest(ctx, nil, e.student.ID)
	if err != nil {
		t.Fatal(err)
	}
	var profile types.DNAProfile
	if err := json.Unmarshal(dna.ProfileJSON, &profile); err != nil {
		t.Fatal(err)
	}
	if profile.GlobalRecommendation != types.RecommendDecrease {
		t.Fatalf("recommendation = %s (recent %v, traj %s), want decrease_difficulty",
			profile.GlobalRecommendation, profile.RecentAverage, profile.Trajectory)
	}

	stored, err := e.plansRepo.Latest(ctx, nil, e.student.ID)
	if err != nil {
		t.Fatal(err)
	}
	var content types.PlanContent
	if err := json.Unmarshal(stored.PlanJSON, &content); err != nil {
		t.Fatal(err)
	}
	if content.Adjustment.Recommendation != "decrease_difficulty" {
		t.Fatalf("plan directive = %q", content.Adjustment.Recommendation)
	}

	user, err := e.users.GetByID(ctx, nil, e.student.ID)
	if err != nil || user.CurrentLevel != types.LevelA2 {
		t.Fatalf("level = %s, err = %v, want A2", user.CurrentLevel, err)
	}
}

func TestSubmitChecksOwnership(t *testing.T) {
	e := newTestEnv(t)
	quiz := seedQuiz(t, e, 2)

	other := &types.User{Name: "Tomek", Email: "tomek@example.com", CurrentLevel: types.LevelA1}
	if err := e.gdb.Create(other).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := e.quizSvc.Submit(context.Background(), quiz.ID, other.ID, nil); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSubmitPlanFailureKeepsAttempt(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	quiz := seedQuiz(t, e, 2)
	e.fake.Fail(genclient.UsePlan, apperr.ErrTimeout)

	result, err := e.quizSvc.Submit(ctx, quiz.ID, e.student.ID, map[string]string{"q1": "an", "q2": "an"})
	if err != nil {
		t.Fatalf("plan failure must not fail the submission: %v", err)
	}
	if result.Score != 1 {
		t.Fatalf("score = %v", result.Score)
	}
	if result.PlanVersion != 0 {
		t.Fatalf("plan version = %d, want none", result.PlanVersion)
	}
	// Previous plan state: none at all.
	if _, err := e.plansRepo.Latest(ctx, nil, e.student.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("plan err = %v, want ErrNotFound", err)
	}
}
