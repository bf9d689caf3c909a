package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/services"
)

// StudentHandler serves the read side of a learner's state: plan versions,
// the DNA profile, the CEFR record and the review queue.
type StudentHandler struct {
	log        *logger.Logger
	users      *services.UserService
	plans      *services.PlanService
	difficulty *services.DifficultyService
	spaced     *services.SpacedService
}

func NewStudentHandler(log *logger.Logger, users *services.UserService, plans *services.PlanService, difficulty *services.DifficultyService, spaced *services.SpacedService) *StudentHandler {
	return &StudentHandler{
		log:        log.With("handler", "StudentHandler"),
		users:      users,
		plans:      plans,
		difficulty: difficulty,
		spaced:     spaced,
	}
}

type registerStudentRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Role           string `json:"role"`
	NativeLanguage string `json:"native_language"`
}

// POST /api/students
func (h *StudentHandler) Register(c *gin.Context) {
	var req registerStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	user, err := h.users.Register(c.Request.Context(), req.Name, req.Email, req.Role, req.NativeLanguage)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, user)
}

// GET /api/students/:id
func (h *StudentHandler) Get(c *gin.Context) {
	studentID, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	user, err := h.users.Get(c.Request.Context(), studentID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, user)
}

// GET /api/students/:id/plan
func (h *StudentHandler) CurrentPlan(c *gin.Context) {
	studentID, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	plan, err := h.plans.Current(c.Request.Context(), studentID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, plan)
}

// GET /api/students/:id/plan/history
func (h *StudentHandler) PlanHistory(c *gin.Context) {
	studentID, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	history, err := h.plans.History(c.Request.Context(), studentID, queryLimit(c, 20))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"plans": history})
}

// GET /api/students/:id/dna
func (h *StudentHandler) DNAProfile(c *gin.Context) {
	studentID, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	profile, err := h.difficulty.LatestProfile(c.Request.Context(), studentID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, profile)
}

// GET /api/students/:id/levels
func (h *StudentHandler) LevelHistory(c *gin.Context) {
	studentID, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	history, err := h.difficulty.LevelHistory(c.Request.Context(), studentID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"levels": history})
}

// GET /api/students/:id/review/due
func (h *StudentHandler) DueReviewItems(c *gin.Context) {
	studentID, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	items, err := h.spaced.Due(c.Request.Context(), studentID, queryLimit(c, 20))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"items": items})
}

type reviewItemRequest struct {
	Quality int `json:"quality" binding:"min=0,max=5"`
}

// POST /api/review/:id
// Record one recall and reschedule the item.
func (h *StudentHandler) ReviewItem(c *gin.Context) {
	itemID, err := parseID(c.Param("id"))
	if err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	var req reviewItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "bad_request", err)
		return
	}
	item, err := h.spaced.Review(c.Request.Context(), itemID, req.Quality)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, item)
}

func queryLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
