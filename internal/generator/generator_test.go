package generator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/invoker"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory/inmem"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/selector"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/template"
	svcerrors "github.com/OneChainTech/dynamic-cheatsheet/pkg/errors"
)

type call struct {
	purpose string
	prompt  string
}

// recordingInvoker answers by purpose and keeps the call sequence.
type recordingInvoker struct {
	responses map[string]string
	errs      map[string]error
	calls     []call
}

func (r *recordingInvoker) Invoke(ctx context.Context, purpose, prompt string) (string, error) {
	r.calls = append(r.calls, call{purpose: purpose, prompt: prompt})
	if err := r.errs[purpose]; err != nil {
		return "", err
	}
	return r.responses[purpose], nil
}

func testGenerator(t *testing.T, store memory.Store, inv Invoker, cfg Config) *Generator {
	t.Helper()
	set, err := template.LoadSet(template.Config{})
	require.NoError(t, err)
	return New(store, selector.New(selector.NewLexicalScorer()), inv, set, cfg, nil)
}

func seedEntries(t *testing.T, store memory.Store, sessionID string) []memory.Entry {
	t.Helper()
	now := time.Now()
	entries := []memory.Entry{
		memory.NewEntry("Binary search: re-check midpoint rounding.", "q1", now.Add(-3*time.Hour)),
		memory.NewEntry("Game of 24: try factor pairs before addition chains.", "q2", now.Add(-2*time.Hour)),
		memory.NewEntry("Regex: avoid catastrophic backtracking with atomic groups.", "q3", now.Add(-time.Hour)),
	}
	require.NoError(t, store.Append(context.Background(), sessionID, entries))
	return entries
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
	}{
		{"", ModeCumulative},
		{"cumulative", ModeCumulative},
		{"Cumulative", ModeCumulative},
		{"retrieval-synthesis", ModeRetrievalSynthesis},
		{"retrieval_synthesis", ModeRetrievalSynthesis},
		{"retrieval", ModeRetrievalSynthesis},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		require.NoError(t, err, "mode %q", tc.in)
		assert.Equal(t, tc.want, got, "mode %q", tc.in)
	}

	_, err := ParseMode("holographic")
	require.Error(t, err)
	assert.True(t, svcerrors.IsType(err, svcerrors.TypeConfiguration))
}

func TestPrepareContextCumulative(t *testing.T) {
	store := inmem.New()
	entries := seedEntries(t, store, "s1")
	inv := &recordingInvoker{}
	g := testGenerator(t, store, inv, Config{Mode: ModeCumulative})

	pc, err := g.PrepareContext(context.Background(), "s1", "any question")
	require.NoError(t, err)

	assert.Equal(t, memory.Render(entries), pc.Cheatsheet)
	assert.Contains(t, pc.Template, template.PlaceholderQuestion)
	assert.Contains(t, pc.Template, template.PlaceholderCheatsheet)
	assert.False(t, pc.Synthesized)
	assert.Empty(t, pc.Selected)
	assert.Empty(t, inv.calls, "cumulative preparation makes no model calls")
}

func TestPrepareContextCumulativeEmptySession(t *testing.T) {
	g := testGenerator(t, inmem.New(), &recordingInvoker{}, Config{Mode: ModeCumulative})

	pc, err := g.PrepareContext(context.Background(), "fresh", "question")
	require.NoError(t, err)
	assert.Equal(t, memory.EmptyCheatsheet, pc.Cheatsheet)
}

func TestPrepareContextRetrievalSynthesis(t *testing.T) {
	store := inmem.New()
	seedEntries(t, store, "s1")
	inv := &recordingInvoker{responses: map[string]string{
		invoker.PurposeSynthesize: "\nCondensed: factor pairs first.\n",
	}}
	g := testGenerator(t, store, inv, Config{Mode: ModeRetrievalSynthesis, TopK: 2})

	pc, err := g.PrepareContext(context.Background(), "s1", "Game of 24 factor pairs")
	require.NoError(t, err)

	assert.Equal(t, "Condensed: factor pairs first.", pc.Cheatsheet)
	assert.True(t, pc.Synthesized)
	require.Len(t, pc.Selected, 2)
	assert.Contains(t, pc.Selected[0].Content, "factor pairs", "best lexical match ranks first")
	assert.Contains(t, pc.Selected[1].Content, "Regex", "recency breaks the zero-score tie")

	require.Len(t, inv.calls, 1)
	assert.Equal(t, invoker.PurposeSynthesize, inv.calls[0].purpose)
	assert.Contains(t, inv.calls[0].prompt, "Game of 24 factor pairs")
	assert.Contains(t, inv.calls[0].prompt, "factor pairs before addition chains")
	assert.NotContains(t, inv.calls[0].prompt, "midpoint rounding", "unselected entries stay out of the synthesis prompt")

	entries, err := store.List(context.Background(), "s1")
	require.NoError(t, err)
	used := 0
	for _, e := range entries {
		if e.UsageCount == 1 {
			used++
		}
	}
	assert.Equal(t, 2, used, "selection bumps usage counters")
}

func TestPrepareContextRetrievalEmptySession(t *testing.T) {
	inv := &recordingInvoker{}
	g := testGenerator(t, inmem.New(), inv, Config{Mode: ModeRetrievalSynthesis, TopK: 3})

	pc, err := g.PrepareContext(context.Background(), "fresh", "question")
	require.NoError(t, err)

	assert.Equal(t, memory.EmptyCheatsheet, pc.Cheatsheet)
	assert.False(t, pc.Synthesized)
	assert.Empty(t, inv.calls, "empty selection skips the synthesis call")
}

func TestPrepareContextBlankSynthesisFallsBackToSentinel(t *testing.T) {
	store := inmem.New()
	seedEntries(t, store, "s1")
	inv := &recordingInvoker{responses: map[string]string{
		invoker.PurposeSynthesize: "   \n  ",
	}}
	g := testGenerator(t, store, inv, Config{Mode: ModeRetrievalSynthesis, TopK: 2})

	pc, err := g.PrepareContext(context.Background(), "s1", "factor pairs")
	require.NoError(t, err)
	assert.Equal(t, memory.EmptyCheatsheet, pc.Cheatsheet)
}

func TestGenerateCumulative(t *testing.T) {
	store := inmem.New()
	entries := seedEntries(t, store, "s1")
	inv := &recordingInvoker{responses: map[string]string{
		invoker.PurposeGenerate: "Pair 6 and 4 first.\n\nFINAL ANSWER: (6-2)*(5+1)\n",
	}}
	g := testGenerator(t, store, inv, Config{Mode: ModeCumulative})

	out, err := g.Generate(context.Background(), "s1", "Game of 24: 2 5 6 1")
	require.NoError(t, err)

	assert.Equal(t, "(6-2)*(5+1)", out.FinalAnswer)
	assert.Contains(t, out.FinalOutput, "Pair 6 and 4 first.")
	assert.Equal(t, memory.Render(entries), out.CheatsheetUsed)

	require.Len(t, inv.calls, 1)
	assert.Equal(t, invoker.PurposeGenerate, inv.calls[0].purpose)
	assert.Contains(t, inv.calls[0].prompt, "Game of 24: 2 5 6 1")
	assert.Contains(t, inv.calls[0].prompt, "factor pairs before addition chains")
	assert.NotContains(t, inv.calls[0].prompt, template.PlaceholderQuestion, "placeholders are fully substituted")
}

func TestGenerateRetrievalSynthesisCallSequence(t *testing.T) {
	store := inmem.New()
	seedEntries(t, store, "s1")
	inv := &recordingInvoker{responses: map[string]string{
		invoker.PurposeSynthesize: "Tailored: lead with factor pairs.",
		invoker.PurposeGenerate:   "FINAL ANSWER: 24",
	}}
	g := testGenerator(t, store, inv, Config{Mode: ModeRetrievalSynthesis, TopK: 2})

	out, err := g.Generate(context.Background(), "s1", "factor pairs for 24")
	require.NoError(t, err)
	assert.Equal(t, "24", out.FinalAnswer)
	assert.Equal(t, "Tailored: lead with factor pairs.", out.CheatsheetUsed)

	require.Len(t, inv.calls, 2)
	assert.Equal(t, invoker.PurposeSynthesize, inv.calls[0].purpose)
	assert.Equal(t, invoker.PurposeGenerate, inv.calls[1].purpose)
	assert.Contains(t, inv.calls[1].prompt, "Tailored: lead with factor pairs.",
		"generation prompt carries the synthesized cheatsheet")

	entries, err := store.List(context.Background(), "s1")
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Content, "Tailored:", "synthesized text is never stored")
	}
}

func TestGenerateMissingMarkerKeepsOutput(t *testing.T) {
	store := inmem.New()
	inv := &recordingInvoker{responses: map[string]string{
		invoker.PurposeGenerate: "I rambled and never concluded.",
	}}
	g := testGenerator(t, store, inv, Config{Mode: ModeCumulative})

	out, err := g.Generate(context.Background(), "s1", "question")
	require.Error(t, err)
	assert.True(t, svcerrors.IsAnswerExtraction(err))
	require.NotNil(t, out, "raw output survives for curation")
	assert.Equal(t, "I rambled and never concluded.", out.FinalOutput)
	assert.Empty(t, out.FinalAnswer)
}

func TestGenerateInvocationErrorPassesThrough(t *testing.T) {
	inv := &recordingInvoker{errs: map[string]error{
		invoker.PurposeGenerate: svcerrors.NewInvocationError("scripted", "generate call failed after 3 attempt(s)", nil),
	}}
	g := testGenerator(t, inmem.New(), inv, Config{Mode: ModeCumulative})

	out, err := g.Generate(context.Background(), "s1", "question")
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, svcerrors.IsType(err, svcerrors.TypeInvocation))
}

func TestExtractAnswer(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   string
	}{
		{"plain", "steps...\nFINAL ANSWER: 42", "42"},
		{"last marker wins", "FINAL ANSWER: draft\nrethinking\nFINAL ANSWER: final", "final"},
		{"trailing whitespace", "FINAL ANSWER:   42  \n", "42"},
		{"multiline answer", "FINAL ANSWER: first line\nsecond line", "first line\nsecond line"},
		{"fenced with language", "FINAL ANSWER:\n```python\nprint(42)\n```", "print(42)"},
		{"fenced bare", "FINAL ANSWER:\n```\n42\n```", "42"},
		{"empty after marker", "FINAL ANSWER:", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractAnswer(tc.output)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractAnswerMissingMarker(t *testing.T) {
	_, err := ExtractAnswer("final answer: lowercase does not count? " + strings.ToLower(AnswerMarker))
	require.Error(t, err)
	assert.True(t, svcerrors.IsAnswerExtraction(err))
}

func TestNewDefaultsMode(t *testing.T) {
	g := testGenerator(t, inmem.New(), &recordingInvoker{}, Config{})
	assert.Equal(t, ModeCumulative, g.Mode())
}
