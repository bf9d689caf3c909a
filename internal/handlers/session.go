package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/derasmus-hub/intake-eval-school/internal/dispatcher"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/services"
)

type SessionHandler struct {
	log      *logger.Logger
	svc      *services.OrchestratorService
	dispatch *dispatcher.Dispatcher
}

func NewSessionHandler(log *logger.Logger, svc *services.OrchestratorService, dispatch *dispatcher.Dispatcher) *SessionHandler {
	return &SessionHandler{
		log:      log.With("handler", "SessionHandler"),
		svc:      svc,
		dispatch: dispatch,
	}
}

type requestSessionRequest struct {
	StudentID   uint      `json:"student_id" binding:"required"`
	TeacherID   *uint     `json:"teacher_id,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	DurationMin int       `json:"duration_min" binding:"required"`
}

// POST /api/sessions
func (h *SessionHandler) Request(c *gin.Context) {
	var req requestSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	session, err := h.svc.Request(c.Request.Context(), req.StudentID, req.TeacherID, req.ScheduledAt, req.DurationMin)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, session)
}

// POST /api/sessions/:id/confirm
// Confirm the session and run lesson and quiz generation. The pipeline is
// serialized per student and bounded by the worker pool.
func (h *SessionHandler) Confirm(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	session, err := h.svc.Session(c.Request.Context(), id)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	var result *services.ConfirmResult
	err = h.dispatch.Do(c.Request.Context(), session.StudentID, "session.confirm", func(ctx context.Context) error {
		var derr error
		result, derr = h.svc.Confirm(ctx, id)
		return derr
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}

type cancelSessionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// POST /api/sessions/:id/cancel
func (h *SessionHandler) Cancel(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	var req cancelSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		RespondError(c, 400, "bad_request", err)
		return
	}
	session, err := h.svc.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, session)
}

type completeSessionRequest struct {
	TeacherNotes string                      `json:"teacher_notes,omitempty"`
	Homework     string                      `json:"homework,omitempty"`
	Summary      string                      `json:"summary,omitempty"`
	Observations []services.ObservationInput `json:"observations,omitempty"`
}

// POST /api/sessions/:id/complete
func (h *SessionHandler) Complete(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	var req completeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		RespondError(c, 400, "bad_request", err)
		return
	}
	session, err := h.svc.Session(c.Request.Context(), id)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	var result *services.CompleteResult
	err = h.dispatch.Do(c.Request.Context(), session.StudentID, "session.complete", func(ctx context.Context) error {
		var derr error
		result, derr = h.svc.Complete(ctx, id, req.TeacherNotes, req.Homework, req.Summary, req.Observations)
		return derr
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}

// GET /api/students/:id/sessions
func (h *SessionHandler) ListByStudent(c *gin.Context) {
	studentID, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	sessions, err := h.svc.ListByStudent(c.Request.Context(), studentID, 50)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"sessions": sessions})
}
