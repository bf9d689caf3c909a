package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/derasmus-hub/intake-eval-school/internal/dispatcher"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/services"
)

type AssessmentHandler struct {
	log      *logger.Logger
	svc      *services.AssessmentService
	dispatch *dispatcher.Dispatcher
}

func NewAssessmentHandler(log *logger.Logger, svc *services.AssessmentService, dispatch *dispatcher.Dispatcher) *AssessmentHandler {
	return &AssessmentHandler{
		log:      log.With("handler", "AssessmentHandler"),
		svc:      svc,
		dispatch: dispatch,
	}
}

type startAssessmentRequest struct {
	StudentID uint `json:"student_id" binding:"required"`
}

// POST /api/assessments
// Open an intake run and return the placement questionnaire.
func (h *AssessmentHandler) Start(c *gin.Context) {
	var req startAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	result, err := h.svc.Start(c.Request.Context(), req.StudentID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}

type submitAnswersRequest struct {
	StudentID uint              `json:"student_id" binding:"required"`
	Answers   map[string]string `json:"answers" binding:"required"`
}

// POST /api/assessments/:id/placement
// Store placement answers and return the generated diagnostic.
func (h *AssessmentHandler) SubmitPlacement(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	var req submitAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	var result *services.PlacementResult
	err = h.dispatch.Do(c.Request.Context(), req.StudentID, "assessment.placement", func(ctx context.Context) error {
		var derr error
		result, derr = h.svc.SubmitPlacement(ctx, id, req.Answers)
		return derr
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}

// POST /api/assessments/:id/diagnostic
// Evaluate the diagnostic and fix the starting level.
func (h *AssessmentHandler) SubmitDiagnostic(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	var req submitAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	var result *services.DiagnosticOutcome
	err = h.dispatch.Do(c.Request.Context(), req.StudentID, "assessment.diagnostic", func(ctx context.Context) error {
		var derr error
		result, derr = h.svc.SubmitDiagnostic(ctx, id, req.Answers)
		return derr
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}

func parseID(raw string) (uint, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
