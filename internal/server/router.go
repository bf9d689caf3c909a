package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/derasmus-hub/intake-eval-school/internal/handlers"
)

type RouterConfig struct {
	StudentHandler    *handlers.StudentHandler
	AssessmentHandler *handlers.AssessmentHandler
	SessionHandler    *handlers.SessionHandler
	QuizHandler       *handlers.QuizHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Students
		api.POST("/students", cfg.StudentHandler.Register)
		api.GET("/students/:id", cfg.StudentHandler.Get)
		api.GET("/students/:id/plan", cfg.StudentHandler.CurrentPlan)
		api.GET("/students/:id/plan/history", cfg.StudentHandler.PlanHistory)
		api.GET("/students/:id/dna", cfg.StudentHandler.DNAProfile)
		api.GET("/students/:id/levels", cfg.StudentHandler.LevelHistory)
		api.GET("/students/:id/review/due", cfg.StudentHandler.DueReviewItems)
		api.GET("/students/:id/sessions", cfg.SessionHandler.ListByStudent)
		api.GET("/students/:id/quizzes/pending", cfg.QuizHandler.Pending)
		// Intake
		api.POST("/assessments", cfg.AssessmentHandler.Start)
		api.POST("/assessments/:id/placement", cfg.AssessmentHandler.SubmitPlacement)
		api.POST("/assessments/:id/diagnostic", cfg.AssessmentHandler.SubmitDiagnostic)
		// Sessions
		api.POST("/sessions", cfg.SessionHandler.Request)
		api.POST("/sessions/:id/confirm", cfg.SessionHandler.Confirm)
		api.POST("/sessions/:id/cancel", cfg.SessionHandler.Cancel)
		api.POST("/sessions/:id/complete", cfg.SessionHandler.Complete)
		// Quizzes
		api.POST("/quizzes/:id/submit", cfg.QuizHandler.Submit)
		// Spaced review
		api.POST("/review/:id", cfg.StudentHandler.ReviewItem)
	}

	return router
}
