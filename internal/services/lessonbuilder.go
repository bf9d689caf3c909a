package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

const spacedDueLimit = 10

// LessonService builds the lesson artifact for a confirmed session. It
// gathers the full learner context, invokes the generator and persists the
// artifact with its canonical skill tags in one transaction.
type LessonService struct {
	lessons      repos.LessonRepo
	plans        repos.PlanRepo
	sessions     repos.SessionRepo
	quizzes      repos.QuizRepo
	dna          repos.DNARepo
	assessments  repos.AssessmentRepo
	interference repos.InterferenceRepo
	spaced       repos.SpacedRepo
	users        repos.UserRepo
	gen          genclient.Generator
	prompts      *prompts.Library
	tax          *taxonomy.Taxonomy
	cfg          config.Settings
	log          *logger.Logger
}

func NewLessonService(
	lessons repos.LessonRepo,
	plans repos.PlanRepo,
	sessions repos.SessionRepo,
	quizzes repos.QuizRepo,
	dna repos.DNARepo,
	assessments repos.AssessmentRepo,
	interference repos.InterferenceRepo,
	spaced repos.SpacedRepo,
	users repos.UserRepo,
	gen genclient.Generator,
	lib *prompts.Library,
	tax *taxonomy.Taxonomy,
	cfg config.Settings,
	log *logger.Logger,
) *LessonService {
	return &LessonService{
		lessons:      lessons,
		plans:        plans,
		sessions:     sessions,
		quizzes:      quizzes,
		dna:          dna,
		assessments:  assessments,
		interference: interference,
		spaced:       spaced,
		users:        users,
		gen:          gen,
		prompts:      lib,
		tax:          tax,
		cfg:          cfg,
		log:          log.With("service", "LessonService"),
	}
}

// BuildForSession returns the session's lesson artifact, generating it if
// none exists yet. The existing-artifact check makes confirm retries
// idempotent.
func (s *LessonService) BuildForSession(ctx context.Context, session *types.Session) (*types.LessonArtifact, error) {
	if existing, err := s.lessons.GetBySession(ctx, nil, session.ID); err == nil {
		s.log.Info("Lesson artifact already exists for session", "session_id", session.ID, "artifact_id", existing.ID)
		return existing, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("check existing artifact: %w", err)
	}

	lessonCtx, err := s.gatherContext(ctx, session)
	if err != nil {
		return nil, err
	}

	prompt, err := s.prompts.Get("lesson")
	if err != nil {
		return nil, err
	}
	userPrompt, err := prompt.Render(lessonCtx)
	if err != nil {
		return nil, err
	}

	var content types.LessonContent
	err = s.gen.Generate(ctx, genclient.Request{
		UseCase:    genclient.UseLesson,
		PromptName: prompt.Name,
		System:     prompt.System,
		User:       userPrompt,
		StudentID:  &session.StudentID,
	}, &content)
	if err != nil {
		return nil, fmt.Errorf("generate lesson: %w", err)
	}

	tags := s.canonicalTags(&content)
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal lesson: %w", err)
	}
	topics, _ := json.Marshal([]string{content.Objective})

	artifact := &types.LessonArtifact{
		SessionID:     &session.ID,
		StudentID:     session.StudentID,
		TeacherID:     session.TeacherID,
		LessonJSON:    datatypes.JSON(raw),
		Topics:        datatypes.JSON(topics),
		Difficulty:    types.CEFRLevel(content.Difficulty),
		PromptVersion: prompt.Version,
	}
	artifact, err = s.lessons.CreateWithTags(ctx, nil, artifact, tags)
	if err != nil {
		return nil, fmt.Errorf("persist lesson artifact: %w", err)
	}
	s.log.Info("Lesson artifact created",
		"session_id", session.ID,
		"artifact_id", artifact.ID,
		"difficulty", content.Difficulty,
		"skill_tags", len(tags))
	return artifact, nil
}

func (s *LessonService) canonicalTags(content *types.LessonContent) []*types.LessonSkillTag {
	seen := make(map[string]struct{}, len(content.SkillTags))
	tags := make([]*types.LessonSkillTag, 0, len(content.SkillTags))
	for i := range content.SkillTags {
		ref := &content.SkillTags[i]
		canonical, _ := s.tax.Normalize(ref.Value)
		if canonical == "" {
			continue
		}
		ref.Value = canonical
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		tagType := types.TagType(ref.Type)
		if cat, ok := s.tax.CategoryOf(canonical); ok {
			tagType = cat
		}
		tags = append(tags, &types.LessonSkillTag{
			TagType:  tagType,
			TagValue: canonical,
			Level:    types.CEFRLevel(ref.Level),
		})
	}
	return tags
}

// gatherContext assembles the generator inputs: plan focus, recent lesson
// outcomes, teacher observations, active interference patterns and due
// review items.
func (s *LessonService) gatherContext(ctx context.Context, session *types.Session) (map[string]any, error) {
	user, err := s.users.GetByID(ctx, nil, session.StudentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}

	planSummary := "no plan yet; start from the assessed level"
	var focusSkills []string
	if plan, err := s.plans.Latest(ctx, nil, session.StudentID); err == nil {
		var content types.PlanContent
		if json.Unmarshal(plan.PlanJSON, &content) == nil {
			planSummary = content.Summary
			for _, w := range content.TopWeaknesses {
				if w.Priority != priorityMaintenance {
					focusSkills = append(focusSkills, w.SkillArea)
				}
			}
			focusSkills = append(focusSkills, content.GrammarFocus...)
		}
	}

	recentSkills, repeatNotes := s.recentLessonOutcomes(ctx, session.StudentID)

	var observations []string
	if obs, err := s.sessions.RecentObservations(ctx, nil, session.StudentID, s.cfg.ObservationLookback); err == nil {
		for _, o := range obs {
			line := fmt.Sprintf("%s: %.0f/100", o.Skill, o.Score)
			if o.Notes != "" {
				line += " (" + o.Notes + ")"
			}
			observations = append(observations, line)
		}
	}
	observations = append(observations, repeatNotes...)

	var interferenceNotes []string
	if patterns, err := s.interference.ActiveByStudent(ctx, nil, session.StudentID); err == nil {
		for _, p := range patterns {
			interferenceNotes = append(interferenceNotes,
				fmt.Sprintf("%s: %s (seen %dx)", p.PatternCategory, p.PatternDetail, p.Occurrences))
		}
	}

	if due, err := s.spaced.Due(ctx, nil, session.StudentID, time.Now().UTC(), spacedDueLimit); err == nil {
		for _, item := range due {
			observations = append(observations, "due for review: "+item.Content)
		}
	}

	allowed := append([]string{}, s.tax.Skills(types.TagGrammar)...)
	allowed = append(allowed, s.tax.Skills(types.TagVocabulary)...)
	allowed = append(allowed, s.tax.Skills(types.TagPronunciation)...)
	allowed = append(allowed, s.tax.Skills(types.TagConversation)...)

	return map[string]any{
		"DurationMin":       session.DurationMin,
		"Level":             string(user.CurrentLevel),
		"PlanSummary":       planSummary,
		"FocusSkills":       s.tax.NormalizeAll(focusSkills),
		"RecentSkills":      recentSkills,
		"Observations":      observations,
		"InterferenceNotes": interferenceNotes,
		"AllowedTags":       allowed,
	}, nil
}

// recentLessonOutcomes reports the skills covered by the last few lessons
// and, per lesson, how its quiz went. A topic that scored under 50% is
// explicitly flagged as fair game for repetition.
func (s *LessonService) recentLessonOutcomes(ctx context.Context, studentID uint) (skills []string, notes []string) {
	artifacts, err := s.lessons.RecentByStudent(ctx, nil, studentID, s.cfg.LessonLookback)
	if err != nil {
		return nil, nil
	}
	for _, a := range artifacts {
		var content types.LessonContent
		if json.Unmarshal(a.LessonJSON, &content) != nil {
			continue
		}
		outcome := "not yet tested"
		repeatable := false
		if quiz, err := s.quizzes.GetQuizByArtifact(ctx, nil, a.ID); err == nil {
			if attempt, err := s.quizzes.GetAttemptByQuizAndStudent(ctx, nil, quiz.ID, studentID); err == nil && attempt.Scored() {
				pct := *attempt.Score * 100
				outcome = fmt.Sprintf("Quiz: %.0f%%", pct)
				repeatable = pct < 50
			}
		}
		note := fmt.Sprintf("previous lesson %q -> %s", content.Objective, outcome)
		if repeatable {
			note += " (may be repeated)"
		}
		notes = append(notes, note)
	}
	if tagValues, err := s.lessons.RecentTagValues(ctx, nil, studentID, s.cfg.LessonLookback); err == nil {
		skills = tagValues
	}
	return skills, notes
}
