package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/derasmus-hub/intake-eval-school/internal/genclient"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

const diagnosticQuestionsJSON = `{"questions":[
	{"id":"d1","type":"multiple_choice","text":"___ umbrella","options":["a","an"],"correct_answer":"an","skill_tag":"articles_indefinite"},
	{"id":"d2","type":"fill_blank","text":"Yesterday I ___ (go) home.","correct_answer":"went","skill_tag":"past_tense"}
]}`

const diagnosticEvalJSON = `{
	"determined_level":"A2",
	"confidence_score":0.7,
	"weak_areas":["articles_a_an_usage","past_tense"],
	"justification":"Basic structures are in place but articles and past forms are shaky."
}`

func TestIntakeFlow(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fake.Respond(genclient.UseAssessment, diagnosticQuestionsJSON)
	e.fake.Respond(genclient.UseAssessment, diagnosticEvalJSON)
	e.fake.Respond(genclient.UsePlan, validPlanJSON("decrease_difficulty"))

	start, err := e.assessment.Start(ctx, e.student.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(start.PlacementQuestions) == 0 {
		t.Fatal("no placement questions")
	}

	placement, err := e.assessment.SubmitPlacement(ctx, start.AssessmentID, map[string]string{
		"self_level": "some basics",
		"goals":      "pass a job interview",
	})
	if err != nil {
		t.Fatalf("SubmitPlacement: %v", err)
	}
	if placement.Bracket != types.LevelA2 {
		t.Fatalf("bracket = %s, want A2", placement.Bracket)
	}
	if len(placement.DiagnosticQuestions) != 2 {
		t.Fatalf("diagnostic questions = %d", len(placement.DiagnosticQuestions))
	}
	for _, q := range placement.DiagnosticQuestions {
		if q.CorrectAnswer != "" || q.Explanation != "" {
			t.Fatalf("answers leaked to the student: %+v", q)
		}
	}

	outcome, err := e.assessment.SubmitDiagnostic(ctx, start.AssessmentID, map[string]string{
		"d1": "an", "d2": "goed",
	})
	if err != nil {
		t.Fatalf("SubmitDiagnostic: %v", err)
	}
	if outcome.Level != types.LevelA2 || outcome.Confidence != 0.7 {
		t.Fatalf("outcome = %+v", outcome)
	}
	// Weak areas come back canonical.
	if len(outcome.WeakAreas) != 2 || outcome.WeakAreas[0] != "articles_indefinite" || outcome.WeakAreas[1] != "past_simple" {
		t.Fatalf("weak areas = %v", outcome.WeakAreas)
	}

	user, err := e.users.GetByID(ctx, nil, e.student.ID)
	if err != nil || user.CurrentLevel != types.LevelA2 {
		t.Fatalf("level = %s, err = %v", user.CurrentLevel, err)
	}
	history, err := e.dnaRepo.LatestLevel(ctx, nil, e.student.ID)
	if err != nil || history.Source != "assessment" || history.Level != types.LevelA2 {
		t.Fatalf("history = %+v, err = %v", history, err)
	}
	profile, err := e.assessRepo.GetProfile(ctx, nil, e.student.ID)
	if err != nil || profile.RecommendedStartLevel != types.LevelA2 {
		t.Fatalf("profile = %+v, err = %v", profile, err)
	}
	plan, err := e.plansRepo.Latest(ctx, nil, e.student.ID)
	if err != nil || plan.Version != 1 || plan.Trigger != types.PlanTriggerInitial {
		t.Fatalf("plan = %+v, err = %v", plan, err)
	}
	path, err := e.plansRepo.ActivePath(ctx, nil, e.student.ID)
	if err != nil || path.CurrentLevel != types.LevelA2 || path.TargetLevel != types.LevelB2 {
		t.Fatalf("path = %+v, err = %v", path, err)
	}

	stored, err := e.assessRepo.GetByID(ctx, nil, start.AssessmentID)
	if err != nil || stored.Stage != types.AssessmentStageCompleted {
		t.Fatalf("assessment = %+v, err = %v", stored, err)
	}
	var responses map[string]string
	if err := json.Unmarshal(stored.ResponsesJSON, &responses); err != nil || responses["d2"] != "goed" {
		t.Fatalf("responses = %v, err = %v", responses, err)
	}
}

func TestSubmitPlacementStageGuard(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fake.Respond(genclient.UseAssessment, diagnosticQuestionsJSON)

	start, err := e.assessment.Start(ctx, e.student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.assessment.SubmitPlacement(ctx, start.AssessmentID, map[string]string{"self_level": "fluent"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.assessment.SubmitPlacement(ctx, start.AssessmentID, nil); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestSubmitDiagnosticStageGuard(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	start, err := e.assessment.Start(ctx, e.student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.assessment.SubmitDiagnostic(ctx, start.AssessmentID, nil); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestStartUnknownStudent(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.assessment.Start(context.Background(), 9999); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
