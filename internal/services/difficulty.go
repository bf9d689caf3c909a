package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"

	"github.com/derasmus-hub/intake-eval-school/internal/config"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/repos"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

// Trajectory and threshold constants. Scores are 0-100 here; attempt rows
// store fractions and are scaled on load.
const (
	trajectoryWindow    = 10
	trajectoryMinPoints = 4
	trajectoryDelta     = 10.0
	thresholdChallenge  = 70.0
	thresholdSimplify   = 40.0
	skillItemWindow     = 8
	skillMinItems       = 2
)

// DifficultyService maintains the learning DNA: windowed performance
// averages, per-skill adjustments and the global difficulty directive. A new
// snapshot is appended on every scored attempt and on teacher-note
// ingestion; snapshots are never rewritten.
type DifficultyService struct {
	quizzes repos.QuizRepo
	dna     repos.DNARepo
	cfg     config.Settings
	log     *logger.Logger
}

func NewDifficultyService(quizzes repos.QuizRepo, dna repos.DNARepo, cfg config.Settings, log *logger.Logger) *DifficultyService {
	return &DifficultyService{
		quizzes: quizzes,
		dna:     dna,
		cfg:     cfg,
		log:     log.With("service", "DifficultyService"),
	}
}

// AttemptPoint is one scored attempt, oldest first, score in 0-100.
type AttemptPoint struct {
	Score float64
	At    time.Time
}

// SkillPoint is one graded item with its canonical tag, oldest first.
type SkillPoint struct {
	SkillTag string
	Correct  bool
}

// Recompute loads the student's scored history, computes a fresh profile
// and appends it as the next DNA version.
func (s *DifficultyService) Recompute(ctx context.Context, studentID uint, trigger string) (*types.DNAProfile, error) {
	points, skills, err := s.loadHistory(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("load attempt history: %w", err)
	}

	profile := s.ComputeProfile(points, skills)

	raw, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.dna.AppendVersion(ctx, nil, &types.LearningDNA{
		StudentID:    studentID,
		ProfileJSON:  datatypes.JSON(raw),
		TriggerEvent: trigger,
	})
	if err != nil {
		return nil, fmt.Errorf("append dna version: %w", err)
	}
	s.log.Info("DNA snapshot written",
		"student_id", studentID,
		"trigger", trigger,
		"recent_avg", profile.RecentAverage,
		"recommendation", string(profile.GlobalRecommendation))
	return profile, nil
}

// LatestProfile returns the newest stored snapshot.
func (s *DifficultyService) LatestProfile(ctx context.Context, studentID uint) (*types.DNAProfile, error) {
	snap, err := s.dna.Latest(ctx, nil, studentID)
	if err != nil {
		return nil, err
	}
	var profile types.DNAProfile
	if err := json.Unmarshal(snap.ProfileJSON, &profile); err != nil {
		return nil, fmt.Errorf("unmarshal dna profile: %w", err)
	}
	return &profile, nil
}

// LevelHistory returns the student's CEFR record, oldest first.
func (s *DifficultyService) LevelHistory(ctx context.Context, studentID uint) ([]*types.CEFRHistory, error) {
	return s.dna.LevelHistory(ctx, nil, studentID)
}

// ComputeProfile is the pure core of the engine.
func (s *DifficultyService) ComputeProfile(points []AttemptPoint, skills []SkillPoint) *types.DNAProfile {
	window := s.cfg.DNAWindow
	if window <= 0 {
		window = 8
	}

	profile := &types.DNAProfile{
		AttemptCount:     len(points),
		SkillStats:       make(map[string]types.SkillStat),
		SkillAdjustments: make(map[string]types.SkillAdjustment),
		ComputedAt:       time.Now().UTC(),
	}

	scores := make([]float64, len(points))
	for i, p := range points {
		scores[i] = p.Score
	}
	profile.LifetimeAverage = round2(mean(scores))
	profile.RecentAverage = round2(mean(tail(scores, window)))
	profile.Trajectory = ComputeTrajectory(scores)

	// Fewer than two attempts is a cold start: the safe default applies
	// regardless of the single score.
	if len(points) < skillMinItems {
		profile.ColdStart = true
		profile.GlobalRecommendation = types.RecommendDecrease
	} else {
		profile.GlobalRecommendation = globalRecommendation(profile.RecentAverage, profile.Trajectory)
	}

	s.fillSkillProfile(profile, skills)
	return profile
}

func (s *DifficultyService) fillSkillProfile(profile *types.DNAProfile, skills []SkillPoint) {
	recent := make(map[string][]bool)
	for _, p := range skills {
		if p.SkillTag == "" {
			continue
		}
		recent[p.SkillTag] = append(recent[p.SkillTag], p.Correct)
	}
	for tag, outcomes := range recent {
		outcomes = tailBool(outcomes, skillItemWindow)
		correct := 0
		for _, ok := range outcomes {
			if ok {
				correct++
			}
		}
		stat := types.SkillStat{
			Correct:  correct,
			Total:    len(outcomes),
			Accuracy: round2(float64(correct) / float64(len(outcomes)) * 100),
		}
		profile.SkillStats[tag] = stat

		if stat.Total < skillMinItems {
			profile.SkillAdjustments[tag] = types.SkillInsufficient
			continue
		}
		switch {
		case stat.Accuracy >= thresholdChallenge:
			profile.SkillAdjustments[tag] = types.SkillChallenge
			profile.StrongSkills = append(profile.StrongSkills, tag)
		case stat.Accuracy < thresholdSimplify:
			profile.SkillAdjustments[tag] = types.SkillSimplify
			profile.WeakSkills = append(profile.WeakSkills, tag)
		default:
			profile.SkillAdjustments[tag] = types.SkillMaintain
		}
	}
	sort.Strings(profile.StrongSkills)
	sort.Strings(profile.WeakSkills)
}

// ComputeTrajectory compares the recent half of the last 10 scores against
// the earlier half. A gap of at least 10 points decides the direction.
func ComputeTrajectory(scores []float64) types.Trajectory {
	window := tail(scores, trajectoryWindow)
	if len(window) < trajectoryMinPoints {
		return types.TrajectoryStable
	}
	half := len(window) / 2
	earlier := mean(window[:len(window)-half])
	recent := mean(window[len(window)-half:])
	switch {
	case recent-earlier >= trajectoryDelta:
		return types.TrajectoryImproving
	case earlier-recent >= trajectoryDelta:
		return types.TrajectoryDeclining
	default:
		return types.TrajectoryStable
	}
}

func globalRecommendation(recentAvg float64, trend types.Trajectory) types.Recommendation {
	switch {
	case recentAvg >= thresholdChallenge:
		if trend == types.TrajectoryImproving {
			return types.RecommendIncrease
		}
		return types.RecommendMaintain
	case recentAvg >= thresholdSimplify:
		// A sub-70 average holds difficulty only while performance is flat.
		// Any movement, a dip or an unconsolidated climb, eases off until
		// the average itself clears the challenge bar.
		if trend == types.TrajectoryStable {
			return types.RecommendMaintain
		}
		return types.RecommendDecrease
	default:
		return types.RecommendDecrease
	}
}

func (s *DifficultyService) loadHistory(ctx context.Context, studentID uint) ([]AttemptPoint, []SkillPoint, error) {
	attempts, err := s.quizzes.ScoredAttempts(ctx, nil, studentID, 0)
	if err != nil {
		return nil, nil, err
	}
	// Repo returns newest first; the engine wants chronological order.
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].SubmittedAt.Before(*attempts[j].SubmittedAt)
	})

	points := make([]AttemptPoint, 0, len(attempts))
	ids := make([]uint, 0, len(attempts))
	for _, a := range attempts {
		if !a.Scored() {
			continue
		}
		points = append(points, AttemptPoint{Score: *a.Score * 100, At: *a.SubmittedAt})
		ids = append(ids, a.ID)
	}

	items, err := s.quizzes.ItemsByAttempts(ctx, nil, ids)
	if err != nil {
		return nil, nil, err
	}
	order := make(map[uint]int, len(ids))
	for i, id := range ids {
		order[id] = i
	}
	sort.SliceStable(items, func(i, j int) bool {
		return order[items[i].AttemptID] < order[items[j].AttemptID]
	})
	skills := make([]SkillPoint, 0, len(items))
	for _, item := range items {
		skills = append(skills, SkillPoint{SkillTag: item.SkillTag, Correct: item.IsCorrect})
	}
	return points, skills, nil
}

func tail(vals []float64, n int) []float64 {
	if len(vals) <= n {
		return vals
	}
	return vals[len(vals)-n:]
}

func tailBool(vals []bool, n int) []bool {
	if len(vals) <= n {
		return vals
	}
	return vals[len(vals)-n:]
}
