package services

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/repos"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

//go:embed assets/l1_patterns.yaml
var l1PatternsYAML []byte

// Evidence thresholds for flipping a pattern to overcome: every implicated
// skill in the attempt at or above the accuracy bar, with enough items to
// mean something.
const (
	overcomeAccuracyMin = 80.0
	overcomeMinItems    = 2
)

type l1Pattern struct {
	Category    string   `yaml:"category"`
	Detail      string   `yaml:"detail"`
	SkillTags   []string `yaml:"skill_tags"`
	Description string   `yaml:"description"`
}

type l1File struct {
	Patterns []l1Pattern `yaml:"patterns"`
}

// InterferenceService tracks native-language interference. Errors on skills
// implicated by a known Polish pattern record an observation; sustained
// accuracy on those skills marks the pattern overcome. A later error reopens
// it.
type InterferenceService struct {
	repo     repos.InterferenceRepo
	bySkill  map[string][]l1Pattern
	patterns []l1Pattern
	log      *logger.Logger
}

func NewInterferenceService(repo repos.InterferenceRepo, log *logger.Logger) (*InterferenceService, error) {
	var f l1File
	if err := yaml.Unmarshal(l1PatternsYAML, &f); err != nil {
		return nil, fmt.Errorf("parse l1 patterns asset: %w", err)
	}
	s := &InterferenceService{
		repo:     repo,
		bySkill:  make(map[string][]l1Pattern),
		patterns: f.Patterns,
		log:      log.With("service", "InterferenceService"),
	}
	for _, p := range f.Patterns {
		for _, tag := range p.SkillTags {
			s.bySkill[tag] = append(s.bySkill[tag], p)
		}
	}
	return s, nil
}

// IngestAttempt reads one graded attempt and updates the student's pattern
// rows.
func (s *InterferenceService) IngestAttempt(ctx context.Context, studentID uint, result *types.AttemptResult) error {
	now := time.Now().UTC()

	observed := make(map[string]bool)
	for _, item := range result.Items {
		if item.IsCorrect || item.SkillTag == "" {
			continue
		}
		for _, p := range s.bySkill[item.SkillTag] {
			key := p.Category + "/" + p.Detail
			if observed[key] {
				continue
			}
			observed[key] = true
			if _, err := s.repo.Observe(ctx, nil, studentID, p.Category, p.Detail, now); err != nil {
				return fmt.Errorf("observe pattern %s: %w", key, err)
			}
			s.log.Debug("Interference pattern observed",
				"student_id", studentID, "category", p.Category, "detail", p.Detail, "skill", item.SkillTag)
		}
	}

	active, err := s.repo.ActiveByStudent(ctx, nil, studentID)
	if err != nil {
		return fmt.Errorf("load active patterns: %w", err)
	}
	for _, row := range active {
		key := row.PatternCategory + "/" + row.PatternDetail
		if observed[key] {
			continue
		}
		if s.attemptClearsPattern(row, result) {
			if err := s.repo.MarkOvercome(ctx, nil, studentID, row.PatternCategory, row.PatternDetail, now); err != nil {
				return fmt.Errorf("mark overcome %s: %w", key, err)
			}
			s.log.Info("Interference pattern overcome",
				"student_id", studentID, "category", row.PatternCategory, "detail", row.PatternDetail)
		}
	}
	return nil
}

// attemptClearsPattern reports whether this attempt provides positive
// evidence on at least one implicated skill and no weak evidence on any.
func (s *InterferenceService) attemptClearsPattern(row *types.L1InterferencePattern, result *types.AttemptResult) bool {
	def, ok := s.definition(row.PatternCategory, row.PatternDetail)
	if !ok {
		return false
	}
	tested := false
	for _, tag := range def.SkillTags {
		stat, covered := result.SkillBreakdown[tag]
		if !covered {
			continue
		}
		if stat.Total < overcomeMinItems || stat.Accuracy < overcomeAccuracyMin {
			return false
		}
		tested = true
	}
	return tested
}

func (s *InterferenceService) definition(category, detail string) (l1Pattern, bool) {
	for _, p := range s.patterns {
		if p.Category == category && p.Detail == detail {
			return p, true
		}
	}
	return l1Pattern{}, false
}

// Describe returns the knowledge-base description for a stored pattern row,
// used when assembling lesson context.
func (s *InterferenceService) Describe(category, detail string) string {
	if p, ok := s.definition(category, detail); ok {
		return p.Description
	}
	return ""
}
