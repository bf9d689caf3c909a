package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/derasmus-hub/intake-eval-school/internal/config"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/repos"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

// Promotion gates. The standard arm needs a solid recent average; the
// high-confidence arm lets a strongly assessed student through slightly
// earlier so an improving learner does not stall a fraction of a point
// under the bar.
const (
	promoteRecentAvgMin     = 70.0
	promoteRecentAvgRelaxed = 65.0
	promoteConfidenceHigh   = 0.8
	reassessRecentCount     = 5
)

// demotionFloors is the recent-5 average below which a declining student
// drops a level. Floors rise with the band: the higher the level, the more
// a sustained collapse signals misplacement.
var demotionFloors = map[types.CEFRLevel]float64{
	types.LevelA1: 20,
	types.LevelA2: 30,
	types.LevelB1: 35,
	types.LevelB2: 40,
	types.LevelC1: 45,
	types.LevelC2: 50,
}

// ReassessmentService decides CEFR promotions and demotions from attempt
// trajectory. It runs after scored attempts once enough history exists; a
// decision error always leaves the current level unchanged.
type ReassessmentService struct {
	quizzes    repos.QuizRepo
	dna        repos.DNARepo
	users      repos.UserRepo
	difficulty *DifficultyService
	cfg        config.Settings
	log        *logger.Logger
}

func NewReassessmentService(quizzes repos.QuizRepo, dna repos.DNARepo, users repos.UserRepo, difficulty *DifficultyService, cfg config.Settings, log *logger.Logger) *ReassessmentService {
	return &ReassessmentService{
		quizzes:    quizzes,
		dna:        dna,
		users:      users,
		difficulty: difficulty,
		cfg:        cfg,
		log:        log.With("service", "ReassessmentService"),
	}
}

// Outcome reports one reassessment decision.
type Outcome struct {
	Changed    bool             `json:"changed"`
	From       types.CEFRLevel  `json:"from"`
	To         types.CEFRLevel  `json:"to"`
	Reason     string           `json:"reason"`
	RecentAvg  float64          `json:"recent_avg"`
	Trajectory types.Trajectory `json:"trajectory"`
	Confidence float64          `json:"confidence"`
}

// Evaluate runs one reassessment. confidence, when non-nil, is the
// assessor's value; otherwise a deterministic substitute is derived from
// trajectory strength and sample size.
func (s *ReassessmentService) Evaluate(ctx context.Context, studentID uint, confidence *float64) (*Outcome, error) {
	user, err := s.users.GetByID(ctx, nil, studentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}

	sinceChange := time.Time{}
	if latest, err := s.dna.LatestLevel(ctx, nil, studentID); err == nil {
		sinceChange = latest.RecordedAt
	}

	attempts, err := s.quizzes.ScoredAttempts(ctx, nil, studentID, 0)
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].SubmittedAt.Before(*attempts[j].SubmittedAt)
	})
	var scores []float64
	sinceCount := 0
	for _, a := range attempts {
		if !a.Scored() {
			continue
		}
		scores = append(scores, *a.Score*100)
		if a.SubmittedAt.After(sinceChange) {
			sinceCount++
		}
	}

	declinedTwice, err := s.declinedTwoWindows(ctx, studentID)
	if err != nil {
		s.log.Warn("Could not read DNA history for demotion check", "error", err)
	}

	outcome := Decide(scores, user.CurrentLevel, sinceCount, declinedTwice, confidence, s.cfg)
	if !outcome.Changed {
		s.log.Debug("Reassessment made no change", "student_id", studentID, "reason", outcome.Reason)
		return outcome, nil
	}

	if err := s.applyChange(ctx, studentID, outcome); err != nil {
		return nil, err
	}
	s.log.Info("CEFR level changed",
		"student_id", studentID,
		"from", string(outcome.From),
		"to", string(outcome.To),
		"recent_avg", outcome.RecentAvg,
		"confidence", outcome.Confidence)
	return outcome, nil
}

func (s *ReassessmentService) applyChange(ctx context.Context, studentID uint, outcome *Outcome) error {
	conf := outcome.Confidence
	if err := s.dna.RecordLevel(ctx, nil, &types.CEFRHistory{
		StudentID:  studentID,
		Level:      outcome.To,
		Confidence: &conf,
		Source:     "reassessment",
		Rationale:  outcome.Reason,
		RecordedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("record level history: %w", err)
	}
	if err := s.users.UpdateLevel(ctx, nil, studentID, outcome.To); err != nil {
		return fmt.Errorf("update student level: %w", err)
	}
	if _, err := s.difficulty.Recompute(ctx, studentID, "reassessment"); err != nil {
		return fmt.Errorf("snapshot dna after level change: %w", err)
	}
	return nil
}

// declinedTwoWindows reports whether the last two DNA snapshots both
// carried a declining trajectory.
func (s *ReassessmentService) declinedTwoWindows(ctx context.Context, studentID uint) (bool, error) {
	history, err := s.dna.History(ctx, nil, studentID, 2)
	if err != nil {
		return false, err
	}
	if len(history) < 2 {
		return false, nil
	}
	for _, snap := range history {
		var profile types.DNAProfile
		if err := json.Unmarshal(snap.ProfileJSON, &profile); err != nil {
			return false, err
		}
		if profile.Trajectory != types.TrajectoryDeclining {
			return false, nil
		}
	}
	return true, nil
}

// Decide is the pure decision core. scores are chronological, 0-100.
func Decide(scores []float64, level types.CEFRLevel, attemptsSinceChange int, declinedTwoWindows bool, confidence *float64, cfg config.Settings) *Outcome {
	outcome := &Outcome{From: level, To: level, Trajectory: ComputeTrajectory(scores)}
	recent := tail(scores, reassessRecentCount)
	outcome.RecentAvg = round2(mean(recent))

	if confidence != nil {
		outcome.Confidence = *confidence
	} else {
		outcome.Confidence = substituteConfidence(scores, outcome.Trajectory)
	}

	if attemptsSinceChange < cfg.ReassessMinAttempts {
		outcome.Reason = fmt.Sprintf("only %d attempts since last level change, need %d", attemptsSinceChange, cfg.ReassessMinAttempts)
		return outcome
	}

	if outcome.Trajectory == types.TrajectoryImproving && level != types.LevelC2 {
		standard := outcome.RecentAvg >= promoteRecentAvgMin && outcome.Confidence >= cfg.ReassessConfidenceMin
		relaxed := outcome.RecentAvg >= promoteRecentAvgRelaxed && outcome.Confidence >= promoteConfidenceHigh
		if standard || relaxed {
			outcome.Changed = true
			outcome.To = level.Next()
			outcome.Reason = fmt.Sprintf("improving trajectory, recent-%d average %.1f, confidence %.2f",
				reassessRecentCount, outcome.RecentAvg, outcome.Confidence)
			return outcome
		}
		outcome.Reason = "improving but below promotion gates"
		return outcome
	}

	if outcome.Trajectory == types.TrajectoryDeclining && declinedTwoWindows && level != types.LevelA1 {
		if floor, ok := demotionFloors[level]; ok && outcome.RecentAvg < floor {
			outcome.Changed = true
			outcome.To = level.Prev()
			outcome.Reason = fmt.Sprintf("declining for two windows, recent-%d average %.1f under the %s floor %.0f",
				reassessRecentCount, outcome.RecentAvg, level, floor)
			return outcome
		}
	}

	outcome.Reason = "no gate met"
	return outcome
}

// substituteConfidence is the deterministic stand-in for an assessor score:
// it grows with trajectory strength and sample size, capped below certainty.
func substituteConfidence(scores []float64, trend types.Trajectory) float64 {
	window := tail(scores, trajectoryWindow)
	if len(window) < trajectoryMinPoints {
		return 0.3
	}
	half := len(window) / 2
	delta := mean(window[len(window)-half:]) - mean(window[:len(window)-half])
	if trend == types.TrajectoryDeclining {
		delta = -delta
	}
	conf := 0.4 + delta/100 + float64(min(len(scores), 20))/100
	if conf < 0 {
		conf = 0
	}
	if conf > 0.95 {
		conf = 0.95
	}
	return round2(conf)
}
