package prompts

import (
	"strings"
	"testing"
)

func TestLoadAllPrompts(t *testing.T) {
	lib, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, name := range []string{"lesson", "quiz", "grading", "diagnostic_questions", "diagnostic_eval", "plan", "extraction"} {
		p, err := lib.Get(name)
		if err != nil {
			t.Fatalf("Get(%q): %v", name, err)
		}
		if p.Version == "" || p.System == "" {
			t.Fatalf("prompt %q incomplete: %+v", name, p)
		}
	}
	if _, err := lib.Get("nope"); err == nil {
		t.Fatal("Get(nope) should fail")
	}
}

func TestRenderLesson(t *testing.T) {
	lib, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	p, err := lib.Get("lesson")
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Render(map[string]any{
		"DurationMin":       60,
		"Level":             "A2",
		"PlanSummary":       "articles and past simple",
		"FocusSkills":       []string{"articles_indefinite", "past_simple"},
		"RecentSkills":      []string{"word_order"},
		"AllowedTags":       []string{"articles_indefinite", "past_simple", "word_order"},
		"Observations":      []string{"hesitates with a/an"},
		"InterferenceNotes": []string{"drops articles (Polish has none)"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"60-minute", "A2", "articles_indefinite, past_simple", "hesitates with a/an"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered prompt missing %q:\n%s", want, out)
		}
	}
}

func TestRenderPlanConstraints(t *testing.T) {
	lib, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	p, _ := lib.Get("plan")
	out, err := p.Render(map[string]any{
		"Level":           "B1",
		"PreviousSummary": "focus on conditionals",
		"PreviousFocus":   []string{"conditionals"},
		"Snapshot":        "recent avg 72",
		"Directive":       "increase_difficulty",
		"MaxDrops":        1,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "at most 1 area") {
		t.Errorf("constraints not rendered:\n%s", out)
	}
}
