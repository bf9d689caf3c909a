package services

import (
	"context"
	"fmt"
	"time"

	"github.com/derasmus-hub/intake-eval-school/internal/config"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
	"github.com/derasmus-hub/intake-eval-school/internal/repos"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

// OrchestratorService drives the session state machine
// (requested -> confirmed -> completed, cancel from any non-terminal state)
// and the pipelines hanging off its transitions. Generation failures never
// block a transition; they surface as per-step statuses in the response.
type OrchestratorService struct {
	sessions   repos.SessionRepo
	lessons    *LessonService
	quizzes    *QuizService
	plans      *PlanService
	spaced     *SpacedService
	difficulty *DifficultyService
	cfg        config.Settings
	log        *logger.Logger
}

func NewOrchestratorService(
	sessions repos.SessionRepo,
	lessons *LessonService,
	quizzes *QuizService,
	plans *PlanService,
	spaced *SpacedService,
	difficulty *DifficultyService,
	cfg config.Settings,
	log *logger.Logger,
) *OrchestratorService {
	return &OrchestratorService{
		sessions:   sessions,
		lessons:    lessons,
		quizzes:    quizzes,
		plans:      plans,
		spaced:     spaced,
		difficulty: difficulty,
		cfg:        cfg,
		log:        log.With("service", "OrchestratorService"),
	}
}

// Request creates a session in the requested state.
func (s *OrchestratorService) Request(ctx context.Context, studentID uint, teacherID *uint, scheduledAt time.Time, durationMin int) (*types.Session, error) {
	if durationMin <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", apperr.ErrValidation)
	}
	if scheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduled time required", apperr.ErrValidation)
	}
	session, err := s.sessions.Create(ctx, nil, &types.Session{
		StudentID:   studentID,
		TeacherID:   teacherID,
		ScheduledAt: scheduledAt.UTC(),
		DurationMin: durationMin,
		Status:      types.SessionRequested,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info("Session requested", "session_id", session.ID, "student_id", studentID)
	return session, nil
}

// ConfirmResult is the fail-soft envelope for the confirm transition.
type ConfirmResult struct {
	Session      *types.Session   `json:"session"`
	LessonStatus types.StepStatus `json:"lesson_status"`
	LessonID     *uint            `json:"lesson_artifact_id,omitempty"`
	QuizStatus   types.StepStatus `json:"quiz_status"`
	QuizID       *uint            `json:"quiz_id,omitempty"`
}

// Confirm moves the session to confirmed and runs the post-confirmation
// pipeline. A repeat confirm reruns the pipeline, whose idempotency checks
// return the existing rows instead of creating new ones.
func (s *OrchestratorService) Confirm(ctx context.Context, sessionID uint) (*ConfirmResult, error) {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case types.SessionRequested:
		swapped, err := s.sessions.UpdateStatusIf(ctx, nil, sessionID, types.SessionRequested, types.SessionConfirmed)
		if err != nil {
			return nil, fmt.Errorf("confirm session: %w", err)
		}
		if !swapped {
			// Raced with another transition; reload and re-dispatch.
			return s.Confirm(ctx, sessionID)
		}
		session.Status = types.SessionConfirmed
		s.log.Info("Session confirmed", "session_id", sessionID)
	case types.SessionConfirmed:
		// Already confirmed: fall through to the idempotent pipeline.
	default:
		return nil, fmt.Errorf("%w: cannot confirm session in state %s", apperr.ErrInvalidTransition, session.Status)
	}

	return s.runPostConfirmation(ctx, session), nil
}

// runPostConfirmation executes the lesson and quiz steps fail-soft: the
// session stays confirmed no matter what happens here.
func (s *OrchestratorService) runPostConfirmation(ctx context.Context, session *types.Session) *ConfirmResult {
	result := &ConfirmResult{
		Session:      session,
		LessonStatus: types.StepPending,
		QuizStatus:   types.StepPending,
	}

	artifact, err := s.lessons.BuildForSession(ctx, session)
	if err != nil {
		s.log.Error("Lesson step failed", "session_id", session.ID, "error", err)
		result.LessonStatus = types.StepFailed
		result.QuizStatus = types.StepFailed
		return result
	}
	result.LessonStatus = types.StepCompleted
	result.LessonID = &artifact.ID

	quiz, err := s.quizzes.DeriveForSession(ctx, session, artifact)
	if err != nil {
		s.log.Error("Quiz step failed", "session_id", session.ID, "error", err)
		result.QuizStatus = types.StepFailed
		return result
	}
	result.QuizStatus = types.StepCompleted
	result.QuizID = &quiz.ID
	return result
}

// Session loads one session by id.
func (s *OrchestratorService) Session(ctx context.Context, sessionID uint) (*types.Session, error) {
	return s.sessions.GetByID(ctx, nil, sessionID)
}

// ListByStudent returns the student's sessions, newest first.
func (s *OrchestratorService) ListByStudent(ctx context.Context, studentID uint, limit int) ([]*types.Session, error) {
	return s.sessions.ListByStudent(ctx, nil, studentID, limit)
}

// Cancel moves any non-terminal session to cancelled.
func (s *OrchestratorService) Cancel(ctx context.Context, sessionID uint, reason string) (*types.Session, error) {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Terminal() {
		return nil, fmt.Errorf("%w: cannot cancel session in state %s", apperr.ErrInvalidTransition, session.Status)
	}
	swapped, err := s.sessions.UpdateStatusIf(ctx, nil, sessionID, session.Status, types.SessionCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel session: %w", err)
	}
	if !swapped {
		return nil, fmt.Errorf("%w: session %d changed state concurrently", apperr.ErrInvalidTransition, sessionID)
	}
	session.Status = types.SessionCancelled
	session.CancelReason = reason
	if reason != "" {
		if err := s.sessions.Update(ctx, nil, session); err != nil {
			s.log.Warn("Failed to store cancel reason", "session_id", sessionID, "error", err)
		}
	}
	s.log.Info("Session cancelled", "session_id", sessionID)
	return session, nil
}

// ObservationInput is one teacher-entered per-skill score at completion.
type ObservationInput struct {
	Skill string  `json:"skill"`
	Score float64 `json:"score"`
	Level string  `json:"level,omitempty"`
	Notes string  `json:"notes,omitempty"`
}

// CompleteResult is the envelope for the complete transition.
type CompleteResult struct {
	Session                 *types.Session `json:"session"`
	LearningPointsExtracted int            `json:"learning_points_extracted"`
	PlanUpdated             bool           `json:"plan_updated"`
}

// Complete closes a confirmed session with the teacher's notes and runs the
// post-class pipeline: learning-point extraction (best effort) and, for
// substantive notes, a DNA refresh plus a plan update.
func (s *OrchestratorService) Complete(ctx context.Context, sessionID uint, notes, homework, summary string, observations []ObservationInput) (*CompleteResult, error) {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != types.SessionConfirmed {
		return nil, fmt.Errorf("%w: cannot complete session in state %s", apperr.ErrInvalidTransition, session.Status)
	}
	swapped, err := s.sessions.UpdateStatusIf(ctx, nil, sessionID, types.SessionConfirmed, types.SessionCompleted)
	if err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	if !swapped {
		return nil, fmt.Errorf("%w: session %d changed state concurrently", apperr.ErrInvalidTransition, sessionID)
	}

	now := time.Now().UTC()
	session.Status = types.SessionCompleted
	session.TeacherNotes = notes
	session.Homework = homework
	session.SessionSummary = summary
	session.CompletedAt = &now
	if err := s.sessions.Update(ctx, nil, session); err != nil {
		return nil, fmt.Errorf("store completion fields: %w", err)
	}

	if len(observations) > 0 {
		rows := make([]*types.SessionSkillObservation, 0, len(observations))
		for _, o := range observations {
			rows = append(rows, &types.SessionSkillObservation{
				SessionID: sessionID,
				StudentID: session.StudentID,
				Skill:     o.Skill,
				Score:     o.Score,
				Level:     types.CEFRLevel(o.Level),
				Notes:     o.Notes,
			})
		}
		if err := s.sessions.CreateObservations(ctx, nil, rows); err != nil {
			s.log.Error("Failed to store observations", "session_id", sessionID, "error", err)
		}
	}
	s.log.Info("Session completed", "session_id", sessionID)

	result := &CompleteResult{Session: session}

	if s.spaced != nil && notes != "" {
		added, err := s.spaced.ExtractFromNotes(ctx, session.StudentID, notes, homework)
		if err != nil {
			s.log.Warn("Learning point extraction failed", "session_id", sessionID, "error", err)
		} else {
			result.LearningPointsExtracted = added
		}
	}

	if len(notes) >= s.cfg.TeacherNotesSubstantiveChars {
		if s.difficulty != nil {
			if _, err := s.difficulty.Recompute(ctx, session.StudentID, "teacher_notes"); err != nil {
				s.log.Warn("DNA refresh from teacher notes failed", "error", err)
			}
		}
		if s.plans != nil {
			if _, err := s.plans.Update(ctx, session.StudentID, types.PlanTriggerSessionDone, nil); err != nil {
				s.log.Error("Plan update from teacher notes failed, previous plan remains current", "error", err)
			} else {
				result.PlanUpdated = true
			}
		}
	}
	return result, nil
}
