package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/derasmus-hub/intake-eval-school/internal/genclient"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

func requestSession(t *testing.T, e *testEnv) *types.Session {
	t.Helper()
	session, err := e.orchestrator.Request(context.Background(), e.student.ID, nil, time.Now().Add(24*time.Hour), 60)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	return session
}

func TestRequestValidation(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.orchestrator.Request(context.Background(), e.student.ID, nil, time.Now(), 0); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("zero duration: err = %v, want ErrValidation", err)
	}
	if _, err := e.orchestrator.Request(context.Background(), e.student.ID, nil, time.Time{}, 60); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("zero time: err = %v, want ErrValidation", err)
	}
}

func TestConfirmRunsLessonAndQuizPipeline(t *testing.T) {
	e := newTestEnv(t)
	e.fake.Respond(genclient.UseLesson, validLessonJSON())
	e.fake.Respond(genclient.UseQuiz, validQuizJSON(4))
	session := requestSession(t, e)

	result, err := e.orchestrator.Confirm(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.Session.Status != types.SessionConfirmed {
		t.Fatalf("status = %s", result.Session.Status)
	}
	if result.LessonStatus != types.StepCompleted || result.QuizStatus != types.StepCompleted {
		t.Fatalf("steps = %s/%s", result.LessonStatus, result.QuizStatus)
	}
	if result.LessonID == nil || result.QuizID == nil {
		t.Fatal("expected persisted lesson and quiz ids")
	}

	// Repeat confirm reuses both artifacts instead of regenerating.
	again, err := e.orchestrator.Confirm(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("second Confirm: %v", err)
	}
	if *again.LessonID != *result.LessonID || *again.QuizID != *result.QuizID {
		t.Fatal("repeat confirm created new artifacts")
	}
	if e.fake.CallCount(genclient.UseLesson) != 1 || e.fake.CallCount(genclient.UseQuiz) != 1 {
		t.Fatalf("generator calls = %d lesson, %d quiz, want 1 each",
			e.fake.CallCount(genclient.UseLesson), e.fake.CallCount(genclient.UseQuiz))
	}
}

func TestConfirmSurvivesLessonFailure(t *testing.T) {
	e := newTestEnv(t)
	e.fake.Fail(genclient.UseLesson, apperr.ErrTimeout)
	session := requestSession(t, e)

	result, err := e.orchestrator.Confirm(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Confirm must not fail on pipeline errors: %v", err)
	}
	if result.Session.Status != types.SessionConfirmed {
		t.Fatalf("status = %s, want confirmed", result.Session.Status)
	}
	if result.LessonStatus != types.StepFailed || result.QuizStatus != types.StepFailed {
		t.Fatalf("steps = %s/%s, want failed/failed", result.LessonStatus, result.QuizStatus)
	}

	// Nothing half-written.
	if _, err := e.lessonsRepo.GetBySession(context.Background(), nil, session.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("lesson lookup err = %v, want ErrNotFound", err)
	}
	if _, err := e.quizzesRepo.GetQuizBySession(context.Background(), nil, session.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("quiz lookup err = %v, want ErrNotFound", err)
	}

	stored, err := e.sessions.GetByID(context.Background(), nil, session.ID)
	if err != nil || stored.Status != types.SessionConfirmed {
		t.Fatalf("stored status = %v, err = %v", stored.Status, err)
	}
}

func TestConfirmSurvivesQuizFailure(t *testing.T) {
	e := newTestEnv(t)
	e.fake.Respond(genclient.UseLesson, validLessonJSON())
	e.fake.Fail(genclient.UseQuiz, apperr.ErrGenerationInvalid)
	session := requestSession(t, e)

	result, err := e.orchestrator.Confirm(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.LessonStatus != types.StepCompleted || result.QuizStatus != types.StepFailed {
		t.Fatalf("steps = %s/%s, want completed/failed", result.LessonStatus, result.QuizStatus)
	}
	if _, err := e.lessonsRepo.GetBySession(context.Background(), nil, session.ID); err != nil {
		t.Fatalf("lesson should be persisted: %v", err)
	}
}

func TestCancelFromNonTerminalStates(t *testing.T) {
	e := newTestEnv(t)

	requested := requestSession(t, e)
	cancelled, err := e.orchestrator.Cancel(context.Background(), requested.ID, "student sick")
	if err != nil {
		t.Fatalf("cancel requested: %v", err)
	}
	if cancelled.Status != types.SessionCancelled || cancelled.CancelReason != "student sick" {
		t.Fatalf("cancelled = %+v", cancelled)
	}

	// Cancelled is terminal: no second cancel, no confirm.
	if _, err := e.orchestrator.Cancel(context.Background(), requested.ID, ""); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("double cancel err = %v", err)
	}
	if _, err := e.orchestrator.Confirm(context.Background(), requested.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("confirm after cancel err = %v", err)
	}

	e.fake.Respond(genclient.UseLesson, validLessonJSON())
	e.fake.Respond(genclient.UseQuiz, validQuizJSON(2))
	confirmed := requestSession(t, e)
	if _, err := e.orchestrator.Confirm(context.Background(), confirmed.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.orchestrator.Cancel(context.Background(), confirmed.ID, "teacher unavailable"); err != nil {
		t.Fatalf("cancel confirmed: %v", err)
	}
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	e := newTestEnv(t)
	session := requestSession(t, e)
	if _, err := e.orchestrator.Complete(context.Background(), session.ID, "notes", "", "", nil); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("complete from requested err = %v", err)
	}
}

func TestCompleteRunsPostClassPipeline(t *testing.T) {
	e := newTestEnv(t)
	e.fake.Respond(genclient.UseLesson, validLessonJSON())
	e.fake.Respond(genclient.UseQuiz, validQuizJSON(2))
	e.fake.Respond(genclient.UseExtraction, `{"learning_points":[
		{"content":"struggled with 'an' before vowel sounds","point_type":"learning_point","skill_tag":"articles_indefinite"},
		{"content":"however","point_type":"vocabulary","translation":"jednak"}
	]}`)
	e.fake.Respond(genclient.UsePlan, validPlanJSON("decrease_difficulty"))

	session := requestSession(t, e)
	if _, err := e.orchestrator.Confirm(context.Background(), session.ID); err != nil {
		t.Fatal(err)
	}

	notes := "Worked on articles for most of the hour; still mixes a and an before vowels."
	result, err := e.orchestrator.Complete(context.Background(), session.ID, notes, "workbook p. 12", "good energy",
		[]ObservationInput{{Skill: "articles_indefinite", Score: 55, Notes: "improving slowly"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result.Session.Status != types.SessionCompleted || result.Session.CompletedAt == nil {
		t.Fatalf("session = %+v", result.Session)
	}
	if result.LearningPointsExtracted != 2 {
		t.Fatalf("extracted = %d, want 2", result.LearningPointsExtracted)
	}
	if !result.PlanUpdated {
		t.Fatal("substantive notes must refresh the plan")
	}

	obs, err := e.sessions.RecentObservations(context.Background(), nil, e.student.ID, 10)
	if err != nil || len(obs) != 1 || obs[0].Skill != "articles_indefinite" {
		t.Fatalf("observations = %+v, err = %v", obs, err)
	}
	due, err := e.spacedRepo.Due(context.Background(), nil, e.student.ID, time.Now().UTC().Add(time.Minute), 10)
	if err != nil || len(due) != 2 {
		t.Fatalf("due items = %d, err = %v", len(due), err)
	}

	// Completed is terminal.
	if _, err := e.orchestrator.Complete(context.Background(), session.ID, notes, "", "", nil); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("double complete err = %v", err)
	}
}

func TestCompleteShortNotesSkipPlanRefresh(t *testing.T) {
	e := newTestEnv(t)
	e.fake.Respond(genclient.UseLesson, validLessonJSON())
	e.fake.Respond(genclient.UseQuiz, validQuizJSON(2))
	e.fake.Respond(genclient.UseExtraction, `{"learning_points":[]}`)

	session := requestSession(t, e)
	if _, err := e.orchestrator.Confirm(context.Background(), session.ID); err != nil {
		t.Fatal(err)
	}

	result, err := e.orchestrator.Complete(context.Background(), session.ID, "went fine", "", "", nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result.PlanUpdated {
		t.Fatal("short notes must not trigger a plan update")
	}
	if e.fake.CallCount(genclient.UsePlan) != 0 {
		t.Fatalf("plan generator called %d times", e.fake.CallCount(genclient.UsePlan))
	}
}
