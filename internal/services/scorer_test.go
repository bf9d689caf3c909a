package services

import (
	"context"
	"errors"
	"testing"

	"github.com/derasmus-hub/intake-eval-school/internal/config"
	"github.com/derasmus-hub/intake-eval-school/internal/genclient"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/prompts"
	"github.com/derasmus-hub/intake-eval-school/internal/taxonomy"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

func testScorer(t *testing.T, fake *genclient.Fake) *ScorerService {
	t.Helper()
	tax, err := taxonomy.New(logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	lib, err := prompts.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Settings{ArticleForgivenessMaxLevel: "A2"}
	return NewScorerService(fake, tax, lib, cfg, logger.NewNop())
}

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  The  Cat. ", "the cat"},
		{"I don't know!", "i do not know"},
		{"It's   fine", "it is fine"},
		{"YES", "yes"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := NormalizeAnswer(tc.in); got != tc.want {
			t.Errorf("NormalizeAnswer(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestScoreClosedTypes(t *testing.T) {
	s := testScorer(t, genclient.NewFake())
	quiz := &types.QuizContent{
		Title: "review",
		Questions: []types.QuizQuestion{
			{ID: "q1", Type: "multiple_choice", Text: "?", CorrectAnswer: "went", SkillTag: "past_simple"},
			{ID: "q2", Type: "true_false", Text: "?", CorrectAnswer: "true", SkillTag: "past_simple"},
			{ID: "q3", Type: "true_false", Text: "?", CorrectAnswer: "false", SkillTag: "word_order"},
			{ID: "q4", Type: "multiple_choice", Text: "?", CorrectAnswer: "an apple", SkillTag: "articles_indefinite"},
		},
	}
	answers := map[string]string{
		"q1": " Went. ",
		"q2": "yes",
		"q3": "T",
		"q4": "an apple",
	}
	res, err := s.Score(context.Background(), nil, quiz, answers, types.LevelA2)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.CorrectCount != 3 || res.Score != 0.75 {
		t.Fatalf("result = %+v", res)
	}
	byID := map[string]types.AttemptItemResult{}
	for _, item := range res.Items {
		byID[item.QuestionID] = item
	}
	if !byID["q1"].IsCorrect || !byID["q2"].IsCorrect || byID["q3"].IsCorrect || !byID["q4"].IsCorrect {
		t.Fatalf("items = %+v", res.Items)
	}
}

func TestScoreFillBlankArticleForgiveness(t *testing.T) {
	s := testScorer(t, genclient.NewFake())
	quiz := &types.QuizContent{
		Title: "fill",
		Questions: []types.QuizQuestion{
			{ID: "q1", Type: "fill_blank", Text: "?", CorrectAnswer: "an umbrella", SkillTag: "articles_indefinite"},
		},
	}

	// A2 forgives the dropped article.
	res, err := s.Score(context.Background(), nil, quiz, map[string]string{"q1": "umbrella"}, types.LevelA2)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Items[0].IsCorrect {
		t.Fatal("A2 should forgive a dropped leading article")
	}

	// B1 does not.
	res, err = s.Score(context.Background(), nil, quiz, map[string]string{"q1": "umbrella"}, types.LevelB1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Items[0].IsCorrect {
		t.Fatal("B1 should require the article")
	}
}

func TestScoreFillBlankShortCoreNotForgiven(t *testing.T) {
	s := testScorer(t, genclient.NewFake())
	quiz := &types.QuizContent{
		Title: "fill",
		Questions: []types.QuizQuestion{
			{ID: "q1", Type: "fill_blank", Text: "?", CorrectAnswer: "an ox", SkillTag: "articles_indefinite"},
		},
	}
	res, err := s.Score(context.Background(), nil, quiz, map[string]string{"q1": "ox"}, types.LevelA1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Items[0].IsCorrect {
		t.Fatal("two-letter core word should not qualify for forgiveness")
	}
}

func TestScoreTranslateFastPathSkipsAI(t *testing.T) {
	fake := genclient.NewFake()
	s := testScorer(t, fake)
	quiz := &types.QuizContent{
		Title: "tr",
		Questions: []types.QuizQuestion{
			{ID: "q1", Type: "translate", Text: "kot", CorrectAnswer: "a cat", SkillTag: "topic_vocabulary"},
		},
	}
	res, err := s.Score(context.Background(), nil, quiz, map[string]string{"q1": "A cat."}, types.LevelA1)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Items[0].IsCorrect || res.Items[0].AIGraded {
		t.Fatalf("item = %+v", res.Items[0])
	}
	if fake.CallCount(genclient.UseGrading) != 0 {
		t.Fatal("fast path should not call the generator")
	}
}

func TestScoreTranslatePartialCreditThreshold(t *testing.T) {
	tests := []struct {
		credit      string
		wantCorrect bool
	}{
		{`{"is_correct":false,"partial_credit":0.6,"feedback":"close"}`, true},
		{`{"is_correct":false,"partial_credit":0.5,"feedback":"off"}`, false},
	}
	for _, tc := range tests {
		fake := genclient.NewFake()
		fake.Respond(genclient.UseGrading, tc.credit)
		s := testScorer(t, fake)
		quiz := &types.QuizContent{
			Title: "tr",
			Questions: []types.QuizQuestion{
				{ID: "q1", Type: "translate", Text: "kot", CorrectAnswer: "a cat", SkillTag: "topic_vocabulary"},
			},
		}
		res, err := s.Score(context.Background(), nil, quiz, map[string]string{"q1": "the cat sits"}, types.LevelA1)
		if err != nil {
			t.Fatal(err)
		}
		item := res.Items[0]
		if item.IsCorrect != tc.wantCorrect || !item.AIGraded {
			t.Fatalf("credit %s: item = %+v", tc.credit, item)
		}
	}
}

func TestScoreAIGradingFailureScoresZeroNotError(t *testing.T) {
	fake := genclient.NewFake()
	fake.Fail(genclient.UseGrading, errors.New("generator down"))
	s := testScorer(t, fake)
	quiz := &types.QuizContent{
		Title: "tr",
		Questions: []types.QuizQuestion{
			{ID: "q1", Type: "reorder", Text: "?", CorrectAnswer: "she is very tall", SkillTag: "word_order"},
			{ID: "q2", Type: "multiple_choice", Text: "?", CorrectAnswer: "b", SkillTag: "word_order"},
		},
	}
	res, err := s.Score(context.Background(), nil, quiz, map[string]string{"q1": "she very tall is", "q2": "b"}, types.LevelA1)
	if err != nil {
		t.Fatalf("attempt should survive a grading failure: %v", err)
	}
	if res.Items[0].IsCorrect || !res.Items[0].AIGraded {
		t.Fatalf("failed grading item = %+v", res.Items[0])
	}
	if res.Score != 0.5 {
		t.Fatalf("score = %v, want 0.5", res.Score)
	}
}

func TestScoreCanonicalizesRawTags(t *testing.T) {
	s := testScorer(t, genclient.NewFake())
	quiz := &types.QuizContent{
		Title: "raw tags",
		Questions: []types.QuizQuestion{
			{ID: "q1", Type: "multiple_choice", Text: "?", CorrectAnswer: "a", SkillTag: "grammar_articles_indefinite"},
			{ID: "q2", Type: "multiple_choice", Text: "?", CorrectAnswer: "a", SkillTag: "articles_a_an_usage"},
			{ID: "q3", Type: "multiple_choice", Text: "?", CorrectAnswer: "a", SkillTag: "grammar_articles_sentence_structure"},
		},
	}
	res, err := s.Score(context.Background(), nil, quiz, map[string]string{"q1": "a", "q2": "a", "q3": "b"}, types.LevelA1)
	if err != nil {
		t.Fatal(err)
	}
	wantTags := []string{"articles_indefinite", "articles_indefinite", "word_order"}
	for i, item := range res.Items {
		if item.SkillTag != wantTags[i] {
			t.Errorf("item %d tag = %q, want %q", i, item.SkillTag, wantTags[i])
		}
	}
	art := res.SkillBreakdown["articles_indefinite"]
	if art.Correct != 2 || art.Total != 2 || art.Accuracy != 100 {
		t.Fatalf("articles stat = %+v", art)
	}
	wo := res.SkillBreakdown["word_order"]
	if wo.Correct != 0 || wo.Total != 1 {
		t.Fatalf("word_order stat = %+v", wo)
	}
}

func TestScoreMissingAnswerIsIncorrect(t *testing.T) {
	s := testScorer(t, genclient.NewFake())
	quiz := &types.QuizContent{
		Title: "m",
		Questions: []types.QuizQuestion{
			{ID: "q1", Type: "multiple_choice", Text: "?", CorrectAnswer: "a", SkillTag: "word_order"},
		},
	}
	res, err := s.Score(context.Background(), nil, quiz, map[string]string{}, types.LevelA1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Items[0].IsCorrect || res.Score != 0 {
		t.Fatalf("result = %+v", res)
	}
}
