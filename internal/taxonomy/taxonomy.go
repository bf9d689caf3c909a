// Package taxonomy owns the canonical skill vocabulary. Every skill tag
// produced by the generator or entered by a teacher passes through Normalize
// before it is persisted, so analytics never fragment across spelling
// variants of the same skill.
package taxonomy

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

//go:embed assets/taxonomy.yaml
var taxonomyYAML []byte

type taxonomyFile struct {
	Version    int                 `yaml:"version"`
	Categories map[string][]string `yaml:"categories"`
	Aliases    map[string]string   `yaml:"aliases"`
}

type Taxonomy struct {
	version    int
	categories map[types.TagType][]string
	categoryOf map[string]types.TagType
	aliases    map[string]string
	log        *logger.Logger
}

func New(log *logger.Logger) (*Taxonomy, error) {
	var f taxonomyFile
	if err := yaml.Unmarshal(taxonomyYAML, &f); err != nil {
		return nil, fmt.Errorf("parse taxonomy asset: %w", err)
	}
	t := &Taxonomy{
		version:    f.Version,
		categories: make(map[types.TagType][]string, len(f.Categories)),
		categoryOf: make(map[string]types.TagType),
		aliases:    f.Aliases,
		log:        log.With("service", "Taxonomy"),
	}
	for cat, skills := range f.Categories {
		tt := types.TagType(cat)
		if !tt.Valid() {
			return nil, fmt.Errorf("taxonomy asset: unknown category %q", cat)
		}
		t.categories[tt] = skills
		for _, s := range skills {
			if prev, dup := t.categoryOf[s]; dup {
				return nil, fmt.Errorf("taxonomy asset: skill %q in both %s and %s", s, prev, cat)
			}
			t.categoryOf[s] = tt
		}
	}
	for alias, target := range f.Aliases {
		if _, ok := t.categoryOf[target]; !ok {
			return nil, fmt.Errorf("taxonomy asset: alias %q targets unknown skill %q", alias, target)
		}
	}
	return t, nil
}

// Version is the taxonomy asset version, recorded on generated artifacts.
func (t *Taxonomy) Version() int { return t.version }

// Skills returns the canonical skills of one category.
func (t *Taxonomy) Skills(cat types.TagType) []string { return t.categories[cat] }

// IsCanonical reports whether tag is already a canonical skill.
func (t *Taxonomy) IsCanonical(tag string) bool {
	_, ok := t.categoryOf[tag]
	return ok
}

// CategoryOf returns the category of a canonical skill.
func (t *Taxonomy) CategoryOf(tag string) (types.TagType, bool) {
	c, ok := t.categoryOf[tag]
	return c, ok
}

var strippablePrefixes = []string{
	"grammar_", "vocabulary_", "vocab_", "pronunciation_", "conversation_", "skill_",
}

// Normalize maps a raw skill tag to its canonical form. The chain is: fold
// to snake_case, strip a category prefix, exact canonical match, alias
// lookup (both pre- and post-strip). Unknown tags are kept in folded form
// and logged as drift so the asset can be extended rather than data lost.
func (t *Taxonomy) Normalize(raw string) (string, bool) {
	folded := Fold(raw)
	if folded == "" {
		return "", false
	}
	if t.IsCanonical(folded) {
		return folded, true
	}
	if target, ok := t.aliases[folded]; ok {
		return target, true
	}
	stripped := stripPrefix(folded)
	if stripped != folded {
		if t.IsCanonical(stripped) {
			return stripped, true
		}
		if target, ok := t.aliases[stripped]; ok {
			return target, true
		}
	}
	t.log.Warn("Skill tag outside taxonomy, keeping folded form", "raw", raw, "folded", stripped)
	return stripped, false
}

// NormalizeAll maps a batch of raw tags, deduplicating canonical results
// while preserving first-seen order.
func (t *Taxonomy) NormalizeAll(raws []string) []string {
	seen := make(map[string]struct{}, len(raws))
	out := make([]string, 0, len(raws))
	for _, r := range raws {
		tag, _ := t.Normalize(r)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func stripPrefix(tag string) string {
	for _, p := range strippablePrefixes {
		if strings.HasPrefix(tag, p) && len(tag) > len(p) {
			return strings.TrimPrefix(tag, p)
		}
	}
	return tag
}

// Fold lowercases a tag and collapses separators and punctuation runs into
// single underscores: "Articles: a/an usage" -> "articles_a_an_usage".
func Fold(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}
