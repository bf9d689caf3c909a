package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/derasmus-hub/intake-eval-school/internal/dispatcher"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/services"
)

type QuizHandler struct {
	log      *logger.Logger
	svc      *services.QuizService
	dispatch *dispatcher.Dispatcher
}

func NewQuizHandler(log *logger.Logger, svc *services.QuizService, dispatch *dispatcher.Dispatcher) *QuizHandler {
	return &QuizHandler{
		log:      log.With("handler", "QuizHandler"),
		svc:      svc,
		dispatch: dispatch,
	}
}

type submitQuizRequest struct {
	StudentID uint              `json:"student_id" binding:"required"`
	Answers   map[string]string `json:"answers" binding:"required"`
}

// POST /api/quizzes/:id/submit
// Grade the answers and run the downstream DNA, plan and interference
// updates. Resubmission returns the first result unchanged.
func (h *QuizHandler) Submit(c *gin.Context) {
	quizID, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	var req submitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	var result *services.SubmitResult
	err = h.dispatch.Do(c.Request.Context(), req.StudentID, "quiz.submit", func(ctx context.Context) error {
		var derr error
		result, derr = h.svc.Submit(ctx, quizID, req.StudentID, req.Answers)
		return derr
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}

// GET /api/students/:id/quizzes/pending
func (h *QuizHandler) Pending(c *gin.Context) {
	studentID, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	pending, err := h.svc.PendingForStudent(c.Request.Context(), studentID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"pending": pending})
}
