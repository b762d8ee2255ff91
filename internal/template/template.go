// Package template loads and renders the prompt templates for the
// generator, synthesis, and curator stages. Templates are plain text with
// double-bracket placeholders; required placeholders are validated at load
// time so a broken template fails startup instead of a query.
package template

import (
	"fmt"
	"os"
	"strings"

	svcerrors "github.com/OneChainTech/dynamic-cheatsheet/pkg/errors"
)

// Placeholders substituted during rendering.
const (
	PlaceholderQuestion           = "[[QUESTION]]"
	PlaceholderCheatsheet         = "[[CHEATSHEET]]"
	PlaceholderPreviousCheatsheet = "[[PREVIOUS_CHEATSHEET]]"
	PlaceholderModelAnswer        = "[[MODEL_ANSWER]]"
)

// Template is a validated prompt template.
type Template struct {
	name     string
	text     string
	required []string
}

// New validates that the text carries every required placeholder.
func New(name, text string, required ...string) (*Template, error) {
	for _, placeholder := range required {
		if !strings.Contains(text, placeholder) {
			return nil, svcerrors.NewConfigurationError(
				fmt.Sprintf("template %q is missing required placeholder %s", name, placeholder), nil)
		}
	}
	return &Template{name: name, text: text, required: required}, nil
}

// Name returns the template identifier.
func (t *Template) Name() string { return t.name }

// Text returns the raw template text.
func (t *Template) Text() string { return t.text }

// Render substitutes every placeholder with its value. Placeholders
// without a value are left untouched.
func (t *Template) Render(vars map[string]string) string {
	out := t.text
	for placeholder, value := range vars {
		out = strings.ReplaceAll(out, placeholder, value)
	}
	return out
}

// Set bundles the three stage templates.
type Set struct {
	Generator *Template
	Synthesis *Template
	Curator   *Template
}

// Config names optional template files. Empty paths fall back to the
// built-in defaults.
type Config struct {
	GeneratorPath string `yaml:"generator_path"`
	SynthesisPath string `yaml:"synthesis_path"`
	CuratorPath   string `yaml:"curator_path"`
}

// LoadSet builds the template set from the configured files, validating
// required placeholders per stage.
func LoadSet(cfg Config) (*Set, error) {
	generator, err := loadOne("generator", cfg.GeneratorPath, DefaultGenerator,
		PlaceholderQuestion, PlaceholderCheatsheet)
	if err != nil {
		return nil, err
	}
	synthesis, err := loadOne("synthesis", cfg.SynthesisPath, DefaultSynthesis,
		PlaceholderQuestion, PlaceholderCheatsheet)
	if err != nil {
		return nil, err
	}
	curator, err := loadOne("curator", cfg.CuratorPath, DefaultCurator,
		PlaceholderQuestion, PlaceholderModelAnswer, PlaceholderPreviousCheatsheet)
	if err != nil {
		return nil, err
	}
	return &Set{Generator: generator, Synthesis: synthesis, Curator: curator}, nil
}

func loadOne(name, path, fallback string, required ...string) (*Template, error) {
	text := fallback
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, svcerrors.NewConfigurationError(
				fmt.Sprintf("read %s template %q", name, path), err)
		}
		text = string(data)
	}
	return New(name, text, required...)
}
