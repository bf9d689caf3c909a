package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

const defaultQuizQuestionCount = 8

// QuizService derives the review quiz from a lesson artifact and handles
// attempt submission: scoring, persistence and the downstream DNA, plan and
// interference updates that every scored attempt triggers.
type QuizService struct {
	quizzes      repos.QuizRepo
	lessons      repos.LessonRepo
	users        repos.UserRepo
	scorer       *ScorerService
	difficulty   *DifficultyService
	plans        *PlanService
	interference *InterferenceService
	reassess     *ReassessmentService
	gen          genclient.Generator
	prompts      *prompts.Library
	tax          *taxonomy.Taxonomy
	cfg          config.Settings
	log          *logger.Logger
}

func NewQuizService(
	quizzes repos.QuizRepo,
	lessons repos.LessonRepo,
	users repos.UserRepo,
	scorer *ScorerService,
	difficulty *DifficultyService,
	plans *PlanService,
	interference *InterferenceService,
	reassess *ReassessmentService,
	gen genclient.Generator,
	lib *prompts.Library,
	tax *taxonomy.Taxonomy,
	cfg config.Settings,
	log *logger.Logger,
) *QuizService {
	return &QuizService{
		quizzes:      quizzes,
		lessons:      lessons,
		users:        users,
		scorer:       scorer,
		difficulty:   difficulty,
		plans:        plans,
		interference: interference,
		reassess:     reassess,
		gen:          gen,
		prompts:      lib,
		tax:          tax,
		cfg:          cfg,
		log:          log.With("service", "QuizService"),
	}
}

// DeriveForSession generates the quiz for a session's lesson artifact,
// returning the existing quiz if one was already derived.
func (s *QuizService) DeriveForSession(ctx context.Context, session *types.Session, artifact *types.LessonArtifact) (*types.NextQuiz, error) {
	if existing, err := s.quizzes.GetQuizBySession(ctx, nil, session.ID); err == nil {
		s.log.Info("Quiz already derived for session", "session_id", session.ID, "quiz_id", existing.ID)
		return existing, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("check existing quiz: %w", err)
	}

	if artifact.StudentID != session.StudentID {
		return nil, fmt.Errorf("%w: artifact belongs to student %d, session to %d",
			apperr.ErrValidation, artifact.StudentID, session.StudentID)
	}

	var lesson types.LessonContent
	if err := json.Unmarshal(artifact.LessonJSON, &lesson); err != nil {
		return nil, fmt.Errorf("unmarshal lesson: %w", err)
	}

	tags, err := s.lessons.TagsByArtifact(ctx, nil, artifact.ID)
	if err != nil {
		return nil, fmt.Errorf("load lesson tags: %w", err)
	}
	lessonSkills := make([]string, 0, len(tags))
	for _, tag := range tags {
		lessonSkills = append(lessonSkills, tag.TagValue)
	}

	prompt, err := s.prompts.Get("quiz")
	if err != nil {
		return nil, err
	}
	userPrompt, err := prompt.Render(map[string]any{
		"QuestionCount": defaultQuizQuestionCount,
		"Level":         string(artifact.Difficulty),
		"LessonSkills":  lessonSkills,
		"Objective":     lesson.Objective,
		"LessonSummary": summarizeLesson(&lesson),
	})
	if err != nil {
		return nil, err
	}

	var content types.QuizContent
	err = s.gen.Generate(ctx, genclient.Request{
		UseCase:    genclient.UseQuiz,
		PromptName: prompt.Name,
		System:     prompt.System,
		User:       userPrompt,
		StudentID:  &session.StudentID,
	}, &content)
	if err != nil {
		return nil, fmt.Errorf("generate quiz: %w", err)
	}

	for i := range content.Questions {
		canonical, _ := s.tax.Normalize(content.Questions[i].SkillTag)
		content.Questions[i].SkillTag = canonical
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal quiz: %w", err)
	}
	quiz, err := s.quizzes.CreateQuiz(ctx, nil, &types.NextQuiz{
		SessionID:                   &session.ID,
		StudentID:                   session.StudentID,
		DerivedFromLessonArtifactID: &artifact.ID,
		QuizJSON:                    datatypes.JSON(raw),
	})
	if err != nil {
		return nil, fmt.Errorf("persist quiz: %w", err)
	}
	s.log.Info("Quiz derived", "session_id", session.ID, "quiz_id", quiz.ID, "questions", len(content.Questions))
	return quiz, nil
}

// SubmitResult is the response envelope for a quiz submission.
type SubmitResult struct {
	AttemptID   uint                 `json:"attempt_id"`
	Score       float64              `json:"score"`
	Result      *types.AttemptResult `json:"result"`
	AlreadyDone bool                 `json:"already_done"`
	PlanVersion int                  `json:"plan_version,omitempty"`
}

// Submit grades the student's answers. A repeat submission returns the
// first attempt's result unchanged. On a fresh attempt the DNA snapshot,
// interference patterns and plan version are all updated; plan failures are
// logged but do not fail the submission.
func (s *QuizService) Submit(ctx context.Context, quizID, studentID uint, answers map[string]string) (*SubmitResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, nil, quizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if quiz.StudentID != studentID {
		return nil, fmt.Errorf("%w: quiz %d does not belong to student %d", apperr.ErrValidation, quizID, studentID)
	}

	if existing, err := s.quizzes.GetAttemptByQuizAndStudent(ctx, nil, quizID, studentID); err == nil && existing.Scored() {
		return s.replay(existing)
	}

	attempt := &types.QuizAttempt{QuizID: quizID, StudentID: studentID, SessionID: quiz.SessionID, StartedAt: time.Now().UTC()}
	if _, err := s.quizzes.CreateAttempt(ctx, nil, attempt); err != nil {
		if errors.Is(err, apperr.ErrStoreConflict) {
			// Raced with a concurrent submission of the same quiz.
			if existing, gerr := s.quizzes.GetAttemptByQuizAndStudent(ctx, nil, quizID, studentID); gerr == nil && existing.Scored() {
				return s.replay(existing)
			}
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	var content types.QuizContent
	if err := json.Unmarshal(quiz.QuizJSON, &content); err != nil {
		return nil, fmt.Errorf("unmarshal quiz: %w", err)
	}

	user, err := s.users.GetByID(ctx, nil, studentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}

	result, err := s.scorer.Score(ctx, &studentID, &content, answers, user.CurrentLevel)
	if err != nil {
		return nil, fmt.Errorf("score attempt: %w", err)
	}

	now := time.Now().UTC()
	attempt.Score = &result.Score
	attempt.SubmittedAt = &now
	rawResult, _ := json.Marshal(result)
	attempt.ResultsJSON = datatypes.JSON(rawResult)

	items := make([]*types.QuizAttemptItem, 0, len(result.Items))
	for _, item := range result.Items {
		expected := ""
		for _, q := range content.Questions {
			if q.ID == item.QuestionID {
				expected = q.CorrectAnswer
				break
			}
		}
		items = append(items, &types.QuizAttemptItem{
			QuestionID:     item.QuestionID,
			QuestionType:   item.Type,
			SkillTag:       item.SkillTag,
			StudentAnswer:  item.StudentAnswer,
			ExpectedAnswer: expected,
			IsCorrect:      item.IsCorrect,
			NeedsAIGrading: item.AIGraded,
			PartialCredit:  item.PartialCredit,
			Feedback:       item.Feedback,
		})
	}
	if err := s.quizzes.FinalizeAttempt(ctx, nil, attempt, items); err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	s.log.Info("Quiz attempt scored", "quiz_id", quizID, "student_id", studentID, "score", result.Score)

	out := &SubmitResult{AttemptID: attempt.ID, Score: result.Score, Result: result}

	// Downstream updates. DNA failure is fatal because the plan depends on
	// it; plan and interference failures leave the previous state in force.
	if _, err := s.difficulty.Recompute(ctx, studentID, types.PlanTriggerQuizScored); err != nil {
		return nil, fmt.Errorf("recompute dna: %w", err)
	}
	if s.interference != nil {
		if err := s.interference.IngestAttempt(ctx, studentID, result); err != nil {
			s.log.Warn("Interference ingestion failed", "error", err)
		}
	}
	if s.plans != nil {
		plan, err := s.plans.Update(ctx, studentID, types.PlanTriggerQuizScored, &attempt.ID)
		if err != nil {
			s.log.Error("Plan update failed, previous plan remains current", "student_id", studentID, "error", err)
		} else {
			out.PlanVersion = plan.Version
		}
	}
	if s.reassess != nil {
		if _, err := s.reassess.Evaluate(ctx, studentID, nil); err != nil {
			s.log.Warn("Reassessment failed, level unchanged", "student_id", studentID, "error", err)
		}
	}
	return out, nil
}

// PendingQuiz is one unsubmitted quiz, answers stripped.
type PendingQuiz struct {
	QuizID    uint               `json:"quiz_id"`
	SessionID *uint              `json:"session_id,omitempty"`
	Content   *types.QuizContent `json:"content"`
	CreatedAt time.Time          `json:"created_at"`
}

// PendingForStudent lists the quizzes the student has not submitted yet.
func (s *QuizService) PendingForStudent(ctx context.Context, studentID uint) ([]PendingQuiz, error) {
	rows, err := s.quizzes.PendingByStudent(ctx, nil, studentID)
	if err != nil {
		return nil, fmt.Errorf("load pending quizzes: %w", err)
	}
	out := make([]PendingQuiz, 0, len(rows))
	for _, row := range rows {
		var content types.QuizContent
		if err := json.Unmarshal(row.QuizJSON, &content); err != nil {
			s.log.Warn("Skipping unreadable quiz", "quiz_id", row.ID, "error", err)
			continue
		}
		out = append(out, PendingQuiz{
			QuizID:    row.ID,
			SessionID: row.SessionID,
			Content:   Sanitized(&content),
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

func (s *QuizService) replay(attempt *types.QuizAttempt) (*SubmitResult, error) {
	var result types.AttemptResult
	if len(attempt.ResultsJSON) > 0 {
		if err := json.Unmarshal(attempt.ResultsJSON, &result); err != nil {
			return nil, fmt.Errorf("unmarshal stored result: %w", err)
		}
	}
	return &SubmitResult{
		AttemptID:   attempt.ID,
		Score:       *attempt.Score,
		Result:      &result,
		AlreadyDone: true,
	}, nil
}

// Sanitized strips answers and explanations so a quiz can be served to the
// student.
func Sanitized(content *types.QuizContent) *types.QuizContent {
	out := &types.QuizContent{Title: content.Title, Questions: make([]types.QuizQuestion, len(content.Questions))}
	for i, q := range content.Questions {
		q.CorrectAnswer = ""
		q.Explanation = ""
		out.Questions[i] = q
	}
	return out
}

func summarizeLesson(lesson *types.LessonContent) string {
	phases := []types.LessonPhase{
		lesson.WarmUp, lesson.Presentation, lesson.ControlledPractice, lesson.FreePractice, lesson.WrapUp,
	}
	summary := ""
	for _, p := range phases {
		if len(p.Activities) == 0 {
			continue
		}
		if summary != "" {
			summary += "; "
		}
		summary += p.Title + ": " + p.Activities[0]
	}
	return summary
}
