package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/derasmus-hub/intake-eval-school/internal/config"
	"github.com/derasmus-hub/intake-eval-school/internal/genclient"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
	"github.com/derasmus-hub/intake-eval-school/internal/prompts"
	"github.com/derasmus-hub/intake-eval-school/internal/repos"
	"github.com/derasmus-hub/intake-eval-school/internal/taxonomy"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

// Weakness priority levels inside a plan.
const (
	priorityHigh        = "high"
	priorityMaintenance = "maintenance"

	weaknessKeepBelow  = 60.0
	weaknessRetireFrom = 70.0
)

// PlanService produces the next versioned learning plan. The generator
// drafts the content; the service enforces the continuity rules and the
// difficulty directive before anything is persisted. A rejected draft
// leaves the previous plan in force.
type PlanService struct {
	plans        repos.PlanRepo
	dna          repos.DNARepo
	users        repos.UserRepo
	interference repos.InterferenceRepo
	gen          genclient.Generator
	prompts      *prompts.Library
	tax          *taxonomy.Taxonomy
	cfg          config.Settings
	log          *logger.Logger
}

func NewPlanService(
	plans repos.PlanRepo,
	dna repos.DNARepo,
	users repos.UserRepo,
	interference repos.InterferenceRepo,
	gen genclient.Generator,
	lib *prompts.Library,
	tax *taxonomy.Taxonomy,
	cfg config.Settings,
	log *logger.Logger,
) *PlanService {
	return &PlanService{
		plans:        plans,
		dna:          dna,
		users:        users,
		interference: interference,
		gen:          gen,
		prompts:      lib,
		tax:          tax,
		cfg:          cfg,
		log:          log.With("service", "PlanService"),
	}
}

// Update drafts, validates and persists the next plan version.
func (s *PlanService) Update(ctx context.Context, studentID uint, trigger string, sourceAttemptID *uint) (*types.LearningPlan, error) {
	user, err := s.users.GetByID(ctx, nil, studentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}

	var prev *types.PlanContent
	var prevSummary string
	if plan, err := s.plans.Latest(ctx, nil, studentID); err == nil {
		prev = &types.PlanContent{}
		if uerr := json.Unmarshal(plan.PlanJSON, prev); uerr != nil {
			s.log.Warn("Previous plan blob unreadable, treating as first plan", "student_id", studentID, "error", uerr)
			prev = nil
		} else {
			prevSummary = prev.Summary
		}
	}

	profile, err := s.latestProfile(ctx, studentID)
	if err != nil {
		return nil, err
	}

	draft, err := s.draft(ctx, studentID, user, prev, prevSummary, profile)
	if err != nil {
		return nil, err
	}

	s.canonicalizeFocus(draft)
	if err := ValidatePlanContinuity(prev, draft, profile, s.cfg.PlanDropMaxPerUpdate); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrGenerationInvalid, err)
	}

	raw, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}
	plan, err := s.plans.CreateNextVersion(ctx, nil, &types.LearningPlan{
		StudentID:       studentID,
		PlanJSON:        datatypes.JSON(raw),
		Summary:         draft.Summary,
		Trigger:         trigger,
		SourceAttemptID: sourceAttemptID,
	})
	if err != nil {
		return nil, fmt.Errorf("persist plan: %w", err)
	}
	s.log.Info("Plan version created",
		"student_id", studentID,
		"version", plan.Version,
		"trigger", trigger,
		"recommendation", draft.Adjustment.Recommendation)
	return plan, nil
}

// Current returns the latest plan version.
func (s *PlanService) Current(ctx context.Context, studentID uint) (*types.LearningPlan, error) {
	return s.plans.Latest(ctx, nil, studentID)
}

// History returns plan versions, newest first.
func (s *PlanService) History(ctx context.Context, studentID uint, limit int) ([]*types.LearningPlan, error) {
	return s.plans.History(ctx, nil, studentID, limit)
}

func (s *PlanService) latestProfile(ctx context.Context, studentID uint) (*types.DNAProfile, error) {
	snap, err := s.dna.Latest(ctx, nil, studentID)
	if err != nil {
		// No attempts yet: an empty cold-start profile drives the first plan.
		profile := &types.DNAProfile{
			ColdStart:            true,
			GlobalRecommendation: types.RecommendDecrease,
			Trajectory:           types.TrajectoryStable,
		}
		return profile, nil
	}
	var profile types.DNAProfile
	if err := json.Unmarshal(snap.ProfileJSON, &profile); err != nil {
		return nil, fmt.Errorf("unmarshal dna profile: %w", err)
	}
	return &profile, nil
}

func (s *PlanService) draft(ctx context.Context, studentID uint, user *types.User, prev *types.PlanContent, prevSummary string, profile *types.DNAProfile) (*types.PlanContent, error) {
	prompt, err := s.prompts.Get("plan")
	if err != nil {
		return nil, err
	}

	var prevFocus []string
	if prev != nil {
		for _, w := range prev.TopWeaknesses {
			prevFocus = append(prevFocus, w.SkillArea)
		}
	}

	patterns, err := s.interference.ActiveByStudent(ctx, nil, studentID)
	if err != nil {
		s.log.Warn("Failed to load interference patterns", "error", err)
	}
	snapshot := renderSnapshot(profile, patterns)

	userPrompt, err := prompt.Render(map[string]any{
		"Level":           string(user.CurrentLevel),
		"PreviousSummary": prevSummary,
		"PreviousFocus":   prevFocus,
		"Snapshot":        snapshot,
		"Directive":       string(profile.GlobalRecommendation),
		"MaxDrops":        s.cfg.PlanDropMaxPerUpdate,
	})
	if err != nil {
		return nil, err
	}

	var draft types.PlanContent
	err = s.gen.Generate(ctx, genclient.Request{
		UseCase:    genclient.UsePlan,
		PromptName: prompt.Name,
		System:     prompt.System,
		User:       userPrompt,
		StudentID:  &studentID,
	}, &draft)
	if err != nil {
		return nil, fmt.Errorf("draft plan: %w", err)
	}
	return &draft, nil
}

func (s *PlanService) canonicalizeFocus(draft *types.PlanContent) {
	for i := range draft.TopWeaknesses {
		tag, _ := s.tax.Normalize(draft.TopWeaknesses[i].SkillArea)
		draft.TopWeaknesses[i].SkillArea = tag
	}
	draft.GrammarFocus = s.tax.NormalizeAll(draft.GrammarFocus)
	draft.VocabularyFocus = s.tax.NormalizeAll(draft.VocabularyFocus)
}

// ValidatePlanContinuity enforces the plan-to-plan rules: the difficulty
// directive must echo the DNA recommendation; a high-priority weakness still
// under 60% accuracy stays high; an area at 70% or better moves to
// maintenance rather than vanishing; at most one genuinely new focus area;
// at most maxDrops areas removed. prev == nil (first plan) skips the
// continuity half.
func ValidatePlanContinuity(prev, next *types.PlanContent, profile *types.DNAProfile, maxDrops int) error {
	if next.Adjustment.Recommendation != string(profile.GlobalRecommendation) {
		return fmt.Errorf("difficulty directive %q disagrees with engine recommendation %q",
			next.Adjustment.Recommendation, profile.GlobalRecommendation)
	}
	if prev == nil {
		return nil
	}

	nextByArea := make(map[string]types.PlanWeakness, len(next.TopWeaknesses))
	for _, w := range next.TopWeaknesses {
		nextByArea[w.SkillArea] = w
	}
	prevAreas := make(map[string]types.PlanWeakness, len(prev.TopWeaknesses))

	dropped := 0
	for _, w := range prev.TopWeaknesses {
		prevAreas[w.SkillArea] = w
		acc := observedAccuracy(profile, w.SkillArea, w.AccuracyObserved)
		got, kept := nextByArea[w.SkillArea]

		switch {
		case w.Priority == priorityHigh && acc < weaknessKeepBelow:
			if !kept || got.Priority != priorityHigh {
				return fmt.Errorf("area %q is high priority at %.0f%% accuracy and must stay high", w.SkillArea, acc)
			}
		case acc >= weaknessRetireFrom:
			if !kept || got.Priority != priorityMaintenance {
				return fmt.Errorf("area %q reached %.0f%% accuracy and must move to maintenance", w.SkillArea, acc)
			}
		case !kept:
			dropped++
		}
	}
	if dropped > maxDrops {
		return fmt.Errorf("plan drops %d focus areas, at most %d allowed", dropped, maxDrops)
	}

	added := 0
	for area, w := range nextByArea {
		if _, existed := prevAreas[area]; !existed && w.Priority != priorityMaintenance {
			added++
		}
	}
	if added > 1 {
		return fmt.Errorf("plan introduces %d new focus areas, at most 1 allowed", added)
	}
	return nil
}

func observedAccuracy(profile *types.DNAProfile, area string, fallback float64) float64 {
	if stat, ok := profile.SkillStats[area]; ok && stat.Total > 0 {
		return stat.Accuracy
	}
	return fallback
}

func renderSnapshot(profile *types.DNAProfile, patterns []*types.L1InterferencePattern) string {
	var b strings.Builder
	fmt.Fprintf(&b, "recent average %.1f, lifetime %.1f, trajectory %s, %d attempts",
		profile.RecentAverage, profile.LifetimeAverage, profile.Trajectory, profile.AttemptCount)
	if profile.ColdStart {
		b.WriteString(" (cold start)")
	}
	for tag, adj := range profile.SkillAdjustments {
		stat := profile.SkillStats[tag]
		fmt.Fprintf(&b, "; %s: %.0f%% (%s)", tag, stat.Accuracy, adj)
	}
	for _, p := range patterns {
		fmt.Fprintf(&b, "; L1 %s/%s seen %dx", p.PatternCategory, p.PatternDetail, p.Occurrences)
	}
	return b.String()
}
