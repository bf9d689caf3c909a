// Package prompts owns the generator prompt templates. Templates live in an
// embedded asset so a prompt change is a reviewable diff, and every
// rendered prompt carries a version string that ends up on the artifact it
// produced.
package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed assets/prompts.yaml
var promptsYAML []byte

type promptFile struct {
	Prompts map[string]promptEntry `yaml:"prompts"`
}

type promptEntry struct {
	Version string `yaml:"version"`
	System  string `yaml:"system"`
	User    string `yaml:"user"`
}

type Prompt struct {
	Name    string
	Version string
	System  string
	user    *template.Template
}

type Library struct {
	prompts map[string]*Prompt
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

func Load() (*Library, error) {
	var f promptFile
	if err := yaml.Unmarshal(promptsYAML, &f); err != nil {
		return nil, fmt.Errorf("parse prompts asset: %w", err)
	}
	lib := &Library{prompts: make(map[string]*Prompt, len(f.Prompts))}
	for name, entry := range f.Prompts {
		if entry.Version == "" {
			return nil, fmt.Errorf("prompt %q has no version", name)
		}
		tmpl, err := template.New(name).Funcs(funcs).Parse(entry.User)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %q: %w", name, err)
		}
		lib.prompts[name] = &Prompt{
			Name:    name,
			Version: entry.Version,
			System:  strings.TrimSpace(entry.System),
			user:    tmpl,
		}
	}
	return lib, nil
}

// Get returns the named prompt or an error listing what exists.
func (l *Library) Get(name string) (*Prompt, error) {
	p, ok := l.prompts[name]
	if !ok {
		names := make([]string, 0, len(l.prompts))
		for n := range l.prompts {
			names = append(names, n)
		}
		return nil, fmt.Errorf("unknown prompt %q (have: %s)", name, strings.Join(names, ", "))
	}
	return p, nil
}

// Render fills the user template with data.
func (p *Prompt) Render(data any) (string, error) {
	var b strings.Builder
	if err := p.user.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", p.Name, err)
	}
	return strings.TrimSpace(b.String()), nil
}
