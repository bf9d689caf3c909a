package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/derasmus-hub/intake-eval-school/internal/config"
	"github.com/derasmus-hub/intake-eval-school/internal/db"
	"github.com/derasmus-hub/intake-eval-school/internal/dispatcher"
	"github.com/derasmus-hub/intake-eval-school/internal/genclient"
	"github.com/derasmus-hub/intake-eval-school/internal/handlers"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/prompts"
	"github.com/derasmus-hub/intake-eval-school/internal/repos"
	"github.com/derasmus-hub/intake-eval-school/internal/server"
	"github.com/derasmus-hub/intake-eval-school/internal/services"
	"github.com/derasmus-hub/intake-eval-school/internal/taxonomy"
	"github.com/derasmus-hub/intake-eval-school/internal/utils"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading settings from main...")
	cfg := config.Load(log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB

	// Repos
	log.Info("Setting up repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	sessionRepo := repos.NewSessionRepo(thePG, log)
	lessonRepo := repos.NewLessonRepo(thePG, log)
	quizRepo := repos.NewQuizRepo(thePG, log)
	planRepo := repos.NewPlanRepo(thePG, log)
	dnaRepo := repos.NewDNARepo(thePG, log)
	assessmentRepo := repos.NewAssessmentRepo(thePG, log)
	interferenceRepo := repos.NewInterferenceRepo(thePG, log)
	spacedRepo := repos.NewSpacedRepo(thePG, log)
	genCallRepo := repos.NewGenCallRepo(thePG, log)

	// Shared assets
	tax, err := taxonomy.New(log)
	if err != nil {
		log.Error("Could not load skill taxonomy", "error", err)
		os.Exit(1)
	}
	promptLib, err := prompts.Load()
	if err != nil {
		log.Error("Could not load prompt library", "error", err)
		os.Exit(1)
	}
	gen := genclient.New(cfg, genCallRepo, log)

	// Services
	log.Info("Setting up services from main...")
	userService := services.NewUserService(userRepo, log)
	scorerService := services.NewScorerService(gen, tax, promptLib, cfg, log)
	difficultyService := services.NewDifficultyService(quizRepo, dnaRepo, cfg, log)
	interferenceService, err := services.NewInterferenceService(interferenceRepo, log)
	if err != nil {
		log.Error("Could not init InterferenceService", "error", err)
		os.Exit(1)
	}
	spacedService := services.NewSpacedService(spacedRepo, gen, promptLib, tax, log)
	reassessService := services.NewReassessmentService(quizRepo, dnaRepo, userRepo, difficultyService, cfg, log)
	planService := services.NewPlanService(planRepo, dnaRepo, userRepo, interferenceRepo, gen, promptLib, tax, cfg, log)
	lessonService := services.NewLessonService(
		lessonRepo,
		planRepo,
		sessionRepo,
		quizRepo,
		dnaRepo,
		assessmentRepo,
		interferenceRepo,
		spacedRepo,
		userRepo,
		gen,
		promptLib,
		tax,
		cfg,
		log,
	)
	quizService := services.NewQuizService(
		quizRepo,
		lessonRepo,
		userRepo,
		scorerService,
		difficultyService,
		planService,
		interferenceService,
		reassessService,
		gen,
		promptLib,
		tax,
		cfg,
		log,
	)
	orchestratorService := services.NewOrchestratorService(
		sessionRepo,
		lessonService,
		quizService,
		planService,
		spacedService,
		difficultyService,
		cfg,
		log,
	)
	assessmentService := services.NewAssessmentService(
		assessmentRepo,
		userRepo,
		dnaRepo,
		planRepo,
		planService,
		gen,
		promptLib,
		tax,
		cfg,
		log,
	)

	// Dispatcher
	dispatch := dispatcher.New(cfg, log)
	defer dispatch.Close()

	// Handlers
	log.Info("Setting up handlers from main...")
	studentHandler := handlers.NewStudentHandler(log, userService, planService, difficultyService, spacedService)
	assessmentHandler := handlers.NewAssessmentHandler(log, assessmentService, dispatch)
	sessionHandler := handlers.NewSessionHandler(log, orchestratorService, dispatch)
	quizHandler := handlers.NewQuizHandler(log, quizService, dispatch)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		StudentHandler:    studentHandler,
		AssessmentHandler: assessmentHandler,
		SessionHandler:    sessionHandler,
		QuizHandler:       quizHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
