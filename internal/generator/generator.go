// Package generator shapes a session's accumulated memory into generation
// prompts and parses the model's structured answer back out. It supports two
// context modes: cumulative, which splices the full cheatsheet into the
// prompt, and retrieval-synthesis, which selects the entries most relevant
// to the query and condenses them with one synthesis call before generating.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/invoker"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/metrics"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/selector"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/template"
	svcerrors "github.com/OneChainTech/dynamic-cheatsheet/pkg/errors"
)

// AnswerMarker precedes the extractable final answer in model output.
const AnswerMarker = "FINAL ANSWER:"

// Mode selects how session memory reaches the generation prompt.
type Mode string

const (
	// ModeCumulative splices the full rendered cheatsheet into the prompt.
	ModeCumulative Mode = "cumulative"

	// ModeRetrievalSynthesis scores entries against the query, keeps the
	// top k, and condenses them into a transient cheatsheet with one
	// synthesis call. The synthesized text is never written to the store.
	ModeRetrievalSynthesis Mode = "retrieval-synthesis"
)

// ParseMode maps a config string onto a Mode. The empty string picks
// cumulative.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeCumulative):
		return ModeCumulative, nil
	case string(ModeRetrievalSynthesis), "retrieval_synthesis", "retrieval":
		return ModeRetrievalSynthesis, nil
	default:
		return "", svcerrors.NewConfigurationError(fmt.Sprintf("unknown generation mode %q", s), nil)
	}
}

// Config controls prompt assembly.
type Config struct {
	// Mode is the context strategy. Defaults to cumulative.
	Mode Mode `yaml:"mode"`
	// TopK bounds how many entries retrieval-synthesis feeds the synthesis
	// call.
	TopK int `yaml:"top_k"`
}

// DefaultConfig returns the generation defaults.
func DefaultConfig() Config {
	return Config{Mode: ModeCumulative, TopK: 5}
}

// Invoker runs one model call with retries. Satisfied by *invoker.Invoker.
type Invoker interface {
	Invoke(ctx context.Context, purpose, prompt string) (string, error)
}

// Context is the prepared material for one generation: the cheatsheet text
// to splice into the prompt and the template to splice it into. Clients
// that run generation themselves receive both verbatim.
type Context struct {
	// Cheatsheet is the text bound to the cheatsheet placeholder. Either
	// the rendered store snapshot, a synthesized condensation, or the
	// empty-cheatsheet sentinel.
	Cheatsheet string

	// Template is the generator template text with placeholders intact.
	Template string

	// Selected holds the entries behind a synthesized cheatsheet, in
	// selection order. Empty in cumulative mode and when nothing matched.
	Selected []memory.Entry

	// Synthesized marks a cheatsheet produced by a synthesis call rather
	// than rendered verbatim from the store.
	Synthesized bool
}

// Output is the outcome of one generation round.
type Output struct {
	// FinalOutput is the model's raw response, kept for curation.
	FinalOutput string `json:"final_output"`

	// FinalAnswer is the text after the last answer marker, trimmed and
	// unfenced. Empty when the marker is absent.
	FinalAnswer string `json:"final_answer"`

	// CheatsheetUsed is the exact cheatsheet text the prompt carried.
	CheatsheetUsed string `json:"cheatsheet_used"`
}

// Generator assembles prompts from session memory and runs generation calls.
type Generator struct {
	store    memory.Store
	selector *selector.Selector
	invoker  Invoker
	tpl      *template.Set
	cfg      Config
	logger   *slog.Logger
}

// New builds a Generator. The selector may be nil when the mode is
// cumulative.
func New(store memory.Store, sel *selector.Selector, inv Invoker, tpl *template.Set, cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeCumulative
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	return &Generator{
		store:    store,
		selector: sel,
		invoker:  inv,
		tpl:      tpl,
		cfg:      cfg,
		logger:   logger,
	}
}

// Mode returns the configured context mode.
func (g *Generator) Mode() Mode { return g.cfg.Mode }

// PrepareContext loads the session's memory and shapes it for the next
// generation. In retrieval-synthesis mode this issues at most one synthesis
// call and bumps the usage counters of the selected entries; an empty
// selection short-circuits to the sentinel without calling the model.
func (g *Generator) PrepareContext(ctx context.Context, sessionID, question string) (*Context, error) {
	entries, err := g.store.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if g.cfg.Mode != ModeRetrievalSynthesis {
		return &Context{
			Cheatsheet: memory.Render(entries),
			Template:   g.tpl.Generator.Text(),
		}, nil
	}

	selected, err := g.selector.Select(ctx, question, entries, g.cfg.TopK)
	if err != nil {
		return nil, err
	}
	metrics.SelectionSize.Observe(float64(len(selected)))
	if len(selected) == 0 {
		return &Context{
			Cheatsheet: memory.EmptyCheatsheet,
			Template:   g.tpl.Generator.Text(),
		}, nil
	}

	prompt := g.tpl.Synthesis.Render(map[string]string{
		template.PlaceholderQuestion:   question,
		template.PlaceholderCheatsheet: memory.Render(selected),
	})
	synthesized, err := g.invoker.Invoke(ctx, invoker.PurposeSynthesize, prompt)
	if err != nil {
		return nil, err
	}
	sheet := strings.TrimSpace(synthesized)
	if sheet == "" {
		sheet = memory.EmptyCheatsheet
	}

	sigs := make([]string, len(selected))
	for i, e := range selected {
		sigs[i] = e.Signature
	}
	// Usage tracking is advisory; a failed bump must not fail the query.
	if err := g.store.MarkUsed(ctx, sessionID, sigs); err != nil {
		g.logger.Warn("usage tracking failed",
			"session_id", sessionID,
			"entries", len(sigs),
			"error", err)
	}

	g.logger.Debug("synthesized retrieval cheatsheet",
		"session_id", sessionID,
		"selected", len(selected),
		"cheatsheet_chars", len(sheet))

	return &Context{
		Cheatsheet:  sheet,
		Template:    g.tpl.Generator.Text(),
		Selected:    selected,
		Synthesized: true,
	}, nil
}

// BuildPrompt splices the question and prepared cheatsheet into the
// generator template.
func (g *Generator) BuildPrompt(pc *Context, question string) string {
	return g.tpl.Generator.Render(map[string]string{
		template.PlaceholderQuestion:   question,
		template.PlaceholderCheatsheet: pc.Cheatsheet,
	})
}

// Generate runs one full round: prepare context, call the model, extract
// the final answer. A missing answer marker returns the output alongside
// the extraction error, so the transcript can still be curated.
func (g *Generator) Generate(ctx context.Context, sessionID, question string) (*Output, error) {
	pc, err := g.PrepareContext(ctx, sessionID, question)
	if err != nil {
		return nil, err
	}

	raw, err := g.invoker.Invoke(ctx, invoker.PurposeGenerate, g.BuildPrompt(pc, question))
	if err != nil {
		return nil, err
	}

	out := &Output{FinalOutput: raw, CheatsheetUsed: pc.Cheatsheet}
	answer, err := ExtractAnswer(raw)
	if err != nil {
		metrics.AnswerExtractionsTotal.WithLabelValues("missing_marker").Inc()
		g.logger.Warn("model output carries no answer marker",
			"session_id", sessionID,
			"output_chars", len(raw))
		return out, err
	}
	metrics.AnswerExtractionsTotal.WithLabelValues("ok").Inc()
	out.FinalAnswer = answer
	return out, nil
}

// ExtractAnswer returns the text after the last answer marker, trimmed,
// with a surrounding code fence removed. The marker may legitimately be
// followed by nothing; only a missing marker is an error.
func ExtractAnswer(output string) (string, error) {
	idx := strings.LastIndex(output, AnswerMarker)
	if idx < 0 {
		return "", svcerrors.NewAnswerExtractionError("model output carries no " + AnswerMarker + " marker")
	}
	answer := strings.TrimSpace(output[idx+len(AnswerMarker):])
	return stripFence(answer), nil
}

// stripFence removes one wrapping triple-backtick fence, including a
// language tag on the opening line.
func stripFence(text string) string {
	if len(text) < 6 || !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") {
		return text
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")
	if nl := strings.Index(inner, "\n"); nl >= 0 {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}
