package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/derasmus-hub/intake-eval-school/internal/config"
	"github.com/derasmus-hub/intake-eval-school/internal/genclient"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/prompts"
	"github.com/derasmus-hub/intake-eval-school/internal/taxonomy"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

// aiGradingCorrectMin is the partial-credit threshold at which a free-form
// answer counts as correct. Credit below the threshold scores zero; there is
// no half credit toward the attempt total.
const aiGradingCorrectMin = 0.6

// ScorerService grades a quiz attempt. Deterministic rules handle the closed
// question types; translate and reorder answers that miss the fast path go
// to the generator for grading. A grading failure never fails the attempt.
type ScorerService struct {
	gen     genclient.Generator
	tax     *taxonomy.Taxonomy
	prompts *prompts.Library
	cfg     config.Settings
	log     *logger.Logger
}

func NewScorerService(gen genclient.Generator, tax *taxonomy.Taxonomy, lib *prompts.Library, cfg config.Settings, log *logger.Logger) *ScorerService {
	return &ScorerService{
		gen:     gen,
		tax:     tax,
		prompts: lib,
		cfg:     cfg,
		log:     log.With("service", "ScorerService"),
	}
}

// Score grades every question against the student's answers and returns the
// per-item breakdown with the overall fraction in [0,1]. Missing answers
// score zero. Skill tags on the result are canonical.
func (s *ScorerService) Score(ctx context.Context, studentID *uint, quiz *types.QuizContent, answers map[string]string, level types.CEFRLevel) (*types.AttemptResult, error) {
	if quiz == nil || len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("quiz has no questions")
	}

	result := &types.AttemptResult{
		TotalCount:     len(quiz.Questions),
		Items:          make([]types.AttemptItemResult, 0, len(quiz.Questions)),
		SkillBreakdown: make(map[string]types.SkillStat),
	}

	for _, q := range quiz.Questions {
		item := s.scoreItem(ctx, studentID, q, answers[q.ID], level)
		if item.IsCorrect {
			result.CorrectCount++
		}
		result.Items = append(result.Items, item)

		if item.SkillTag != "" {
			stat := result.SkillBreakdown[item.SkillTag]
			stat.Total++
			if item.IsCorrect {
				stat.Correct++
			}
			result.SkillBreakdown[item.SkillTag] = stat
		}
	}

	for tag, stat := range result.SkillBreakdown {
		stat.Accuracy = round2(float64(stat.Correct) / float64(stat.Total) * 100)
		result.SkillBreakdown[tag] = stat
	}
	result.Score = round2(float64(result.CorrectCount) / float64(result.TotalCount))
	return result, nil
}

func (s *ScorerService) scoreItem(ctx context.Context, studentID *uint, q types.QuizQuestion, rawAnswer string, level types.CEFRLevel) types.AttemptItemResult {
	tag, _ := s.tax.Normalize(q.SkillTag)
	item := types.AttemptItemResult{
		QuestionID:    q.ID,
		Type:          q.Type,
		SkillTag:      tag,
		StudentAnswer: rawAnswer,
	}
	if strings.TrimSpace(rawAnswer) == "" {
		return item
	}

	answer := NormalizeAnswer(rawAnswer)
	expected := NormalizeAnswer(q.CorrectAnswer)

	switch types.QuestionType(q.Type) {
	case types.QuestionMultipleChoice:
		item.IsCorrect = answer == expected
	case types.QuestionTrueFalse:
		a, aok := normalizeBool(answer)
		e, eok := normalizeBool(expected)
		item.IsCorrect = aok && eok && a == e
	case types.QuestionFillBlank:
		item.IsCorrect = s.scoreFillBlank(answer, expected, level)
	case types.QuestionTranslate, types.QuestionReorder:
		if answer == expected {
			item.IsCorrect = true
			break
		}
		s.gradeWithAI(ctx, studentID, q, rawAnswer, level, &item)
	default:
		// Unknown type from an older quiz blob: strict comparison only.
		item.IsCorrect = answer == expected
	}
	return item
}

func (s *ScorerService) scoreFillBlank(answer, expected string, level types.CEFRLevel) bool {
	if answer == expected {
		return true
	}
	if !s.articleForgivenessAllowed(level) {
		return false
	}
	strippedAnswer := stripLeadingArticle(answer)
	strippedExpected := stripLeadingArticle(expected)
	if len(strippedExpected) <= 2 {
		return false
	}
	return strippedAnswer == strippedExpected
}

// articleForgivenessAllowed reports whether a leading-article slip on a fill
// blank may still count as correct at this level. Polish has no articles, so
// beginners get leniency; from B1 up the article is part of the answer.
func (s *ScorerService) articleForgivenessAllowed(level types.CEFRLevel) bool {
	ceiling := types.CEFRLevel(s.cfg.ArticleForgivenessMaxLevel)
	if !ceiling.Valid() || !level.Valid() {
		return false
	}
	return level.Index() <= ceiling.Index()
}

func (s *ScorerService) gradeWithAI(ctx context.Context, studentID *uint, q types.QuizQuestion, rawAnswer string, level types.CEFRLevel, item *types.AttemptItemResult) {
	item.AIGraded = true
	prompt, err := s.prompts.Get("grading")
	if err != nil {
		s.log.Error("Grading prompt missing", "error", err)
		return
	}
	user, err := prompt.Render(map[string]any{
		"Question": q.Text,
		"Expected": q.CorrectAnswer,
		"Answer":   rawAnswer,
		"Level":    string(level),
	})
	if err != nil {
		s.log.Error("Failed to render grading prompt", "error", err)
		return
	}

	var grading types.GradingResult
	err = s.gen.Generate(ctx, genclient.Request{
		UseCase:    genclient.UseGrading,
		PromptName: prompt.Name,
		System:     prompt.System,
		User:       user,
		StudentID:  studentID,
	}, &grading)
	if err != nil {
		s.log.Warn("AI grading failed, item scored incorrect", "question_id", q.ID, "error", err)
		return
	}

	credit := grading.PartialCredit
	item.PartialCredit = &credit
	item.Feedback = grading.Feedback
	item.IsCorrect = grading.IsCorrect || credit >= aiGradingCorrectMin
}

var contractions = map[string]string{
	"don't": "do not", "doesn't": "does not", "didn't": "did not",
	"can't": "cannot", "couldn't": "could not", "won't": "will not",
	"wouldn't": "would not", "shouldn't": "should not", "isn't": "is not",
	"aren't": "are not", "wasn't": "was not", "weren't": "were not",
	"haven't": "have not", "hasn't": "has not", "hadn't": "had not",
	"i'm": "i am", "i've": "i have", "i'll": "i will", "i'd": "i would",
	"it's": "it is", "that's": "that is", "there's": "there is",
	"he's": "he is", "she's": "she is", "you're": "you are",
	"we're": "we are", "they're": "they are", "let's": "let us",
}

// NormalizeAnswer applies the comparison pipeline: trim, lowercase, collapse
// inner whitespace, strip terminal punctuation, expand contractions.
func NormalizeAnswer(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ".!?,;:")
	if s == "" {
		return s
	}
	words := strings.Split(s, " ")
	for i, w := range words {
		if full, ok := contractions[w]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}

var leadingArticles = []string{"a ", "an ", "the "}

func stripLeadingArticle(s string) string {
	for _, art := range leadingArticles {
		if strings.HasPrefix(s, art) {
			return strings.TrimSpace(strings.TrimPrefix(s, art))
		}
	}
	return s
}

var truthy = map[string]bool{"yes": true, "y": true, "true": true, "t": true, "1": true}
var falsy = map[string]bool{"no": true, "n": true, "false": true, "f": true, "0": true}

func normalizeBool(s string) (bool, bool) {
	if truthy[s] {
		return true, true
	}
	if falsy[s] {
		return false, true
	}
	return false, false
}
