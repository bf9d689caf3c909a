package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/derasmus-hub/intake-eval-school/internal/config"
	"github.com/derasmus-hub/intake-eval-school/internal/genclient"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
	"github.com/derasmus-hub/intake-eval-school/internal/prompts"
	"github.com/derasmus-hub/intake-eval-school/internal/repos"
	"github.com/derasmus-hub/intake-eval-school/internal/taxonomy"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

const diagnosticQuestionCount = 15

// PlacementQuestion is one self-report intake question. The set is fixed;
// answers only pick the diagnostic bracket, the generator-built diagnostic
// determines the level.
type PlacementQuestion struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

var placementQuestions = []PlacementQuestion{
	{ID: "self_level", Text: "How would you describe your English?", Options: []string{"complete beginner", "some basics", "can hold simple conversations", "comfortable in most situations", "fluent"}},
	{ID: "years_learning", Text: "How many years have you studied English?", Options: []string{"less than 1", "1-3", "3-7", "more than 7"}},
	{ID: "usage", Text: "Where do you currently use English?", Options: []string{"nowhere", "online only", "at work sometimes", "at work daily", "I live partly in English"}},
	{ID: "goals", Text: "What is your main goal?"},
	{ID: "problem_areas", Text: "What gives you the most trouble? (e.g. tenses, articles, speaking)"},
}

var selfLevelBrackets = map[string]types.CEFRLevel{
	"complete beginner":             types.LevelA1,
	"some basics":                   types.LevelA2,
	"can hold simple conversations": types.LevelB1,
	"comfortable in most situations": types.LevelB2,
	"fluent":                        types.LevelC1,
}

// AssessmentService runs intake: a fixed placement questionnaire, a
// generated diagnostic, and the evaluation that produces the student's
// starting level, profile and first plan.
type AssessmentService struct {
	assessments repos.AssessmentRepo
	users       repos.UserRepo
	dna         repos.DNARepo
	paths       repos.PlanRepo
	plans       *PlanService
	gen         genclient.Generator
	prompts     *prompts.Library
	tax         *taxonomy.Taxonomy
	cfg         config.Settings
	log         *logger.Logger
}

func NewAssessmentService(
	assessments repos.AssessmentRepo,
	users repos.UserRepo,
	dna repos.DNARepo,
	paths repos.PlanRepo,
	plans *PlanService,
	gen genclient.Generator,
	lib *prompts.Library,
	tax *taxonomy.Taxonomy,
	cfg config.Settings,
	log *logger.Logger,
) *AssessmentService {
	return &AssessmentService{
		assessments: assessments,
		users:       users,
		dna:         dna,
		paths:       paths,
		plans:       plans,
		gen:         gen,
		prompts:     lib,
		tax:         tax,
		cfg:         cfg,
		log:         log.With("service", "AssessmentService"),
	}
}

// StartResult opens an intake run.
type StartResult struct {
	AssessmentID       uint                `json:"assessment_id"`
	PlacementQuestions []PlacementQuestion `json:"placement_questions"`
}

func (s *AssessmentService) Start(ctx context.Context, studentID uint) (*StartResult, error) {
	if _, err := s.users.GetByID(ctx, nil, studentID); err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	a, err := s.assessments.Create(ctx, nil, &types.Assessment{
		StudentID: studentID,
		Stage:     types.AssessmentStagePlacement,
	})
	if err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}
	s.log.Info("Assessment started", "assessment_id", a.ID, "student_id", studentID)
	return &StartResult{AssessmentID: a.ID, PlacementQuestions: placementQuestions}, nil
}

// PlacementResult carries the bracket and the generated diagnostic.
type PlacementResult struct {
	Bracket             types.CEFRLevel      `json:"bracket"`
	DiagnosticQuestions []types.QuizQuestion `json:"diagnostic_questions"`
}

// SubmitPlacement stores the self-report answers, picks the bracket and
// generates the diagnostic question set.
func (s *AssessmentService) SubmitPlacement(ctx context.Context, assessmentID uint, answers map[string]string) (*PlacementResult, error) {
	a, err := s.assessments.GetByID(ctx, nil, assessmentID)
	if err != nil {
		return nil, err
	}
	if a.Stage != types.AssessmentStagePlacement {
		return nil, fmt.Errorf("%w: assessment is in stage %s", apperr.ErrInvalidTransition, a.Stage)
	}

	bracket := types.LevelA2
	if lvl, ok := selfLevelBrackets[strings.ToLower(strings.TrimSpace(answers["self_level"]))]; ok {
		bracket = lvl
	}

	prompt, err := s.prompts.Get("diagnostic_questions")
	if err != nil {
		return nil, err
	}
	userPrompt, err := prompt.Render(map[string]any{
		"QuestionCount": diagnosticQuestionCount,
		"SelfReported":  string(bracket),
		"Goals":         answers["goals"],
	})
	if err != nil {
		return nil, err
	}
	var questions types.DiagnosticQuestionSet
	err = s.gen.Generate(ctx, genclient.Request{
		UseCase:    genclient.UseAssessment,
		PromptName: prompt.Name,
		System:     prompt.System,
		User:       userPrompt,
		StudentID:  &a.StudentID,
	}, &questions)
	if err != nil {
		return nil, fmt.Errorf("generate diagnostic: %w", err)
	}
	for i := range questions.Questions {
		tag, _ := s.tax.Normalize(questions.Questions[i].SkillTag)
		questions.Questions[i].SkillTag = tag
	}

	placementJSON, _ := json.Marshal(answers)
	diagnosticJSON, _ := json.Marshal(questions)
	a.PlacementJSON = datatypes.JSON(placementJSON)
	a.DiagnosticJSON = datatypes.JSON(diagnosticJSON)
	a.Stage = types.AssessmentStageDiagnostic
	if err := s.assessments.Update(ctx, nil, a); err != nil {
		return nil, fmt.Errorf("store placement: %w", err)
	}

	sanitized := Sanitized(&types.QuizContent{Title: "diagnostic", Questions: questions.Questions})
	return &PlacementResult{Bracket: bracket, DiagnosticQuestions: sanitized.Questions}, nil
}

// DiagnosticOutcome is the completed intake result.
type DiagnosticOutcome struct {
	Level      types.CEFRLevel `json:"level"`
	Confidence float64         `json:"confidence"`
	WeakAreas  []string        `json:"weak_areas"`
}

// SubmitDiagnostic evaluates the answers, fixes the starting level and lays
// down the learner profile and first plan.
func (s *AssessmentService) SubmitDiagnostic(ctx context.Context, assessmentID uint, answers map[string]string) (*DiagnosticOutcome, error) {
	a, err := s.assessments.GetByID(ctx, nil, assessmentID)
	if err != nil {
		return nil, err
	}
	if a.Stage != types.AssessmentStageDiagnostic {
		return nil, fmt.Errorf("%w: assessment is in stage %s", apperr.ErrInvalidTransition, a.Stage)
	}

	var questions types.DiagnosticQuestionSet
	if err := json.Unmarshal(a.DiagnosticJSON, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal diagnostic: %w", err)
	}

	var placement map[string]string
	_ = json.Unmarshal(a.PlacementJSON, &placement)

	prompt, err := s.prompts.Get("diagnostic_eval")
	if err != nil {
		return nil, err
	}
	userPrompt, err := prompt.Render(map[string]any{
		"SelfReported": placement["self_level"],
		"Transcript":   renderTranscript(questions.Questions, answers),
	})
	if err != nil {
		return nil, err
	}
	var eval types.DiagnosticResult
	err = s.gen.Generate(ctx, genclient.Request{
		UseCase:    genclient.UseAssessment,
		PromptName: prompt.Name,
		System:     prompt.System,
		User:       userPrompt,
		StudentID:  &a.StudentID,
	}, &eval)
	if err != nil {
		return nil, fmt.Errorf("evaluate diagnostic: %w", err)
	}

	level := types.CEFRLevel(eval.DeterminedLevel)
	weakAreas := s.tax.NormalizeAll(eval.WeakAreas)

	responsesJSON, _ := json.Marshal(answers)
	weakJSON, _ := json.Marshal(weakAreas)
	a.ResponsesJSON = datatypes.JSON(responsesJSON)
	a.Stage = types.AssessmentStageCompleted
	a.DeterminedLevel = level
	a.Confidence = &eval.ConfidenceScore
	a.WeakAreas = datatypes.JSON(weakJSON)
	a.Justification = eval.Justification
	if err := s.assessments.Update(ctx, nil, a); err != nil {
		return nil, fmt.Errorf("store diagnostic result: %w", err)
	}

	gaps, _ := json.Marshal(eval.SubSkillBreakdown)
	priorities, _ := json.Marshal(weakAreas)
	if err := s.assessments.UpsertProfile(ctx, nil, &types.LearnerProfile{
		StudentID:             a.StudentID,
		Gaps:                  datatypes.JSON(gaps),
		Priorities:            datatypes.JSON(priorities),
		ProfileSummary:        eval.Justification,
		RecommendedStartLevel: level,
	}); err != nil {
		return nil, fmt.Errorf("store learner profile: %w", err)
	}

	if err := s.dna.RecordLevel(ctx, nil, &types.CEFRHistory{
		StudentID:  a.StudentID,
		Level:      level,
		Confidence: &eval.ConfidenceScore,
		Source:     "assessment",
		Rationale:  eval.Justification,
		RecordedAt: time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("record level: %w", err)
	}
	if err := s.users.UpdateLevel(ctx, nil, a.StudentID, level); err != nil {
		return nil, fmt.Errorf("update student level: %w", err)
	}

	target := level.Next()
	if next := target.Next(); next != target {
		target = next
	}
	if _, err := s.paths.CreatePath(ctx, nil, &types.LearningPath{
		StudentID:    a.StudentID,
		CurrentLevel: level,
		TargetLevel:  target,
		Status:       "active",
	}); err != nil {
		s.log.Error("Learning path creation failed", "student_id", a.StudentID, "error", err)
	}

	// First plan. A failure here is logged, not fatal: the student has a
	// level and the next quiz submission will produce a plan.
	if s.plans != nil {
		if _, err := s.plans.Update(ctx, a.StudentID, types.PlanTriggerInitial, nil); err != nil {
			s.log.Error("Initial plan creation failed", "student_id", a.StudentID, "error", err)
		}
	}

	s.log.Info("Assessment completed",
		"assessment_id", a.ID,
		"student_id", a.StudentID,
		"level", string(level),
		"confidence", eval.ConfidenceScore)
	return &DiagnosticOutcome{Level: level, Confidence: eval.ConfidenceScore, WeakAreas: weakAreas}, nil
}

func renderTranscript(questions []types.QuizQuestion, answers map[string]string) string {
	var b strings.Builder
	for i, q := range questions {
		answer := answers[q.ID]
		if answer == "" {
			answer = "(no answer)"
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n   expected: %s\n   student: %s\n", i+1, q.SkillTag, q.Text, q.CorrectAnswer, answer)
	}
	return b.String()
}
