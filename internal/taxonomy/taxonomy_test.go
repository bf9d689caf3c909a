package taxonomy

import (
	"testing"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

func newTestTaxonomy(t *testing.T) *Taxonomy {
	t.Helper()
	tax, err := New(logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tax
}

func TestNormalize(t *testing.T) {
	tax := newTestTaxonomy(t)

	tests := []struct {
		raw       string
		want      string
		wantKnown bool
	}{
		{"articles_indefinite", "articles_indefinite", true},
		{"grammar_articles_indefinite", "articles_indefinite", true},
		{"articles_a_an_usage", "articles_indefinite", true},
		{"grammar_articles_sentence_structure", "word_order", true},
		{"sentence_structure", "word_order", true},
		{"Articles: a/an usage", "articles_indefinite", true},
		{"  Past Tense ", "past_simple", true},
		{"phrasal verbs", "phrasal_verbs", true},
		{"vocab_false_friends", "false_friends", true},
		{"th-sounds", "th_sounds", true},
		{"subjunctive_mood", "subjunctive_mood", false},
		{"grammar_subjunctive_mood", "subjunctive_mood", false},
		{"", "", false},
		{"---", "", false},
	}
	for _, tc := range tests {
		got, known := tax.Normalize(tc.raw)
		if got != tc.want || known != tc.wantKnown {
			t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tc.raw, got, known, tc.want, tc.wantKnown)
		}
	}
}

func TestNormalizeAllDeduplicates(t *testing.T) {
	tax := newTestTaxonomy(t)

	got := tax.NormalizeAll([]string{
		"grammar_articles_indefinite",
		"articles_a_an_usage",
		"sentence_structure",
		"word_order",
		"",
	})
	want := []string{"articles_indefinite", "word_order"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeAll = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("NormalizeAll = %v, want %v", got, want)
		}
	}
}

func TestCategoryOf(t *testing.T) {
	tax := newTestTaxonomy(t)

	cat, ok := tax.CategoryOf("word_order")
	if !ok || cat != types.TagGrammar {
		t.Fatalf("CategoryOf(word_order) = (%v, %v), want (grammar, true)", cat, ok)
	}
	if _, ok := tax.CategoryOf("not_a_skill"); ok {
		t.Fatal("CategoryOf accepted unknown skill")
	}
	if len(tax.Skills(types.TagConversation)) == 0 {
		t.Fatal("conversation category empty")
	}
}

func TestFold(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Present  Perfect", "present_perfect"},
		{"a/an", "a_an"},
		{"__x__", "x"},
		{"TH sounds!", "th_sounds"},
	}
	for _, tc := range tests {
		if got := Fold(tc.in); got != tc.want {
			t.Errorf("Fold(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
