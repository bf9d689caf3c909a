package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
	"github.com/derasmus-hub/intake-eval-school/internal/utils"
)

type PostgresService struct {
	DB  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	log = log.With("service", "PostgresService")

	host := utils.GetEnv("DB_HOST", "localhost", log)
	port := utils.GetEnv("DB_PORT", "5432", log)
	user := utils.GetEnv("DB_USER", "postgres", log)
	pass := utils.GetEnv("DB_PASSWORD", "", log)
	name := utils.GetEnv("DB_NAME", "intake_eval", log)
	ssl := utils.GetEnv("DB_SSLMODE", "disable", log)

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, pass, name, ssl)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Error("Failed to connect to postgres", "error", err)
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(utils.GetEnvAsInt("DB_MAX_OPEN_CONNS", 25, log))
	sqlDB.SetMaxIdleConns(utils.GetEnvAsInt("DB_MAX_IDLE_CONNS", 5, log))
	sqlDB.SetConnMaxLifetime(utils.GetEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute, log))

	log.Info("Connected to postgres", "host", host, "db", name)
	return &PostgresService{DB: gdb, log: log}, nil
}

// AutoMigrateAll creates or updates every table the engine owns.
func (s *PostgresService) AutoMigrateAll() error {
	return AutoMigrate(s.DB)
}

func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&types.User{},
		&types.Assessment{},
		&types.LearnerProfile{},
		&types.LearningPath{},
		&types.LearningPlan{},
		&types.Session{},
		&types.SessionSkillObservation{},
		&types.LessonArtifact{},
		&types.LessonSkillTag{},
		&types.NextQuiz{},
		&types.QuizAttempt{},
		&types.QuizAttemptItem{},
		&types.LearningDNA{},
		&types.CEFRHistory{},
		&types.L1InterferencePattern{},
		&types.SpacedItem{},
		&types.GenerationCallLog{},
	)
}

func (s *PostgresService) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
