package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/derasmus-hub/intake-eval-school/internal/genclient"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/prompts"
	"github.com/derasmus-hub/intake-eval-school/internal/repos"
	"github.com/derasmus-hub/intake-eval-school/internal/taxonomy"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

const (
	easeFactorFloor   = 1.3
	easeFactorInitial = 2.5
)

// SpacedService owns the review queue. Learning points extracted from
// teacher notes become SM-2 scheduled items; each review reschedules the
// item from its recall quality.
type SpacedService struct {
	repo    repos.SpacedRepo
	gen     genclient.Generator
	prompts *prompts.Library
	tax     *taxonomy.Taxonomy
	log     *logger.Logger
}

func NewSpacedService(repo repos.SpacedRepo, gen genclient.Generator, lib *prompts.Library, tax *taxonomy.Taxonomy, log *logger.Logger) *SpacedService {
	return &SpacedService{
		repo:    repo,
		gen:     gen,
		prompts: lib,
		tax:     tax,
		log:     log.With("service", "SpacedService"),
	}
}

// ExtractFromNotes asks the generator for reusable learning points in the
// teacher's session notes and enqueues the new ones. Points the student
// already has are skipped, so re-running extraction is idempotent. Returns
// the number of items added.
func (s *SpacedService) ExtractFromNotes(ctx context.Context, studentID uint, notes, homework string) (int, error) {
	prompt, err := s.prompts.Get("extraction")
	if err != nil {
		return 0, err
	}
	userPrompt, err := prompt.Render(map[string]any{
		"Notes":    notes,
		"Homework": homework,
	})
	if err != nil {
		return 0, err
	}

	var extracted types.LearningPointsResult
	err = s.gen.Generate(ctx, genclient.Request{
		UseCase:    genclient.UseExtraction,
		PromptName: prompt.Name,
		System:     prompt.System,
		User:       userPrompt,
		StudentID:  &studentID,
	}, &extracted)
	if err != nil {
		return 0, fmt.Errorf("extract learning points: %w", err)
	}

	now := time.Now().UTC()
	var fresh []*types.SpacedItem
	for _, point := range extracted.LearningPoints {
		exists, err := s.repo.ExistsContent(ctx, nil, studentID, point.Content)
		if err != nil {
			return 0, fmt.Errorf("check existing item: %w", err)
		}
		if exists {
			continue
		}
		tag := ""
		if point.SkillTag != "" {
			tag, _ = s.tax.Normalize(point.SkillTag)
		}
		fresh = append(fresh, &types.SpacedItem{
			StudentID:   studentID,
			ItemType:    point.PointType,
			Content:     point.Content,
			Translation: point.Translation,
			SkillTag:    tag,
			EaseFactor:  easeFactorInitial,
			NextReview:  now,
		})
	}
	if err := s.repo.Create(ctx, nil, fresh); err != nil {
		return 0, fmt.Errorf("enqueue items: %w", err)
	}
	s.log.Info("Learning points extracted", "student_id", studentID, "extracted", len(extracted.LearningPoints), "added", len(fresh))
	return len(fresh), nil
}

// Due returns the items up for review.
func (s *SpacedService) Due(ctx context.Context, studentID uint, limit int) ([]*types.SpacedItem, error) {
	return s.repo.Due(ctx, nil, studentID, time.Now().UTC(), limit)
}

// Review applies one SM-2 step. Quality is the recall grade in 0-5; below 3
// the item resets to a one-day interval, otherwise the interval grows by
// the ease factor, which itself drifts with the grade.
func (s *SpacedService) Review(ctx context.Context, itemID uint, quality int) (*types.SpacedItem, error) {
	if quality < 0 || quality > 5 {
		return nil, fmt.Errorf("quality %d outside 0-5", quality)
	}
	item, err := s.repo.GetByID(ctx, nil, itemID)
	if err != nil {
		return nil, err
	}

	applySM2(item, quality, time.Now().UTC())

	if err := s.repo.Update(ctx, nil, item); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}
	return item, nil
}

func applySM2(item *types.SpacedItem, quality int, now time.Time) {
	q := float64(quality)
	item.TimesReviewed++
	score := q / 5
	item.LastRecallScore = &score

	if quality < 3 {
		item.Repetitions = 0
		item.IntervalDays = 1
	} else {
		item.Repetitions++
		switch item.Repetitions {
		case 1:
			item.IntervalDays = 1
		case 2:
			item.IntervalDays = 6
		default:
			item.IntervalDays = int(math.Round(float64(item.IntervalDays) * item.EaseFactor))
		}
		item.EaseFactor += 0.1 - (5-q)*(0.08+(5-q)*0.02)
		if item.EaseFactor < easeFactorFloor {
			item.EaseFactor = easeFactorFloor
		}
	}
	item.NextReview = now.AddDate(0, 0, item.IntervalDays)
}
