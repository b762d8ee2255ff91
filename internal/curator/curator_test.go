package curator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory/inmem"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/template"
	svcerrors "github.com/OneChainTech/dynamic-cheatsheet/pkg/errors"
)

type invokerFunc func(ctx context.Context, purpose, prompt string) (string, error)

func (f invokerFunc) Invoke(ctx context.Context, purpose, prompt string) (string, error) {
	return f(ctx, purpose, prompt)
}

func staticResponse(response string) Invoker {
	return invokerFunc(func(ctx context.Context, purpose, prompt string) (string, error) {
		return response, nil
	})
}

func testCurator(t *testing.T, store memory.Store, inv Invoker) *Curator {
	t.Helper()
	set, err := template.LoadSet(template.Config{})
	require.NoError(t, err)
	return New(store, inv, set.Curator, nil)
}

func TestCurateAddsEntries(t *testing.T) {
	store := inmem.New()
	response := "Reasoning about the transcript.\n\nNEW CHEATSHEET:\n" +
		"For Game of 24, try pairing factors first.\n---\n" +
		"Verify candidate expressions by evaluating them.\nEND OF CHEATSHEET"
	c := testCurator(t, store, staticResponse(response))

	res, err := c.Curate(context.Background(), "s1", "q1", "Game of 24: 5 6 6 8", "answer text")
	require.NoError(t, err)

	assert.Equal(t, MergeReport{Added: 2}, res.Report)
	assert.Equal(t, 2, res.Entries)
	assert.Contains(t, res.Cheatsheet, "pairing factors")
	assert.Contains(t, res.Cheatsheet, "evaluating them")

	entries, err := store.List(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "q1", entries[0].SourceQueryID)
}

func TestCurateDuplicateSuppression(t *testing.T) {
	store := inmem.New()
	response := "NEW CHEATSHEET:\nAlways check factor pairs.\nEND OF CHEATSHEET"
	c := testCurator(t, store, staticResponse(response))
	ctx := context.Background()

	first, err := c.Curate(ctx, "s1", "q1", "question", "output")
	require.NoError(t, err)
	require.Equal(t, 1, first.Entries)

	second, err := c.Curate(ctx, "s1", "q2", "question", "output")
	require.NoError(t, err)
	assert.Equal(t, MergeReport{Kept: 1}, second.Report)
	assert.Equal(t, 1, second.Entries, "identical transcript adds no net new entries")
	assert.False(t, second.Report.Changed())
}

func TestCurateSupersedesAbsentEntries(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Append(ctx, "s1", []memory.Entry{
		memory.NewEntry("old strategy A", "q0", now),
		memory.NewEntry("strategy B stays", "q0", now),
	}))

	response := "NEW CHEATSHEET:\nstrategy B stays\n---\nnew strategy C\nEND OF CHEATSHEET"
	c := testCurator(t, store, staticResponse(response))

	res, err := c.Curate(ctx, "s1", "q1", "question", "output")
	require.NoError(t, err)
	assert.Equal(t, MergeReport{Added: 1, Kept: 1, Superseded: 1}, res.Report)
	assert.True(t, res.Report.Changed())

	entries, err := store.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "strategy B stays", entries[0].Content, "kept entries precede new ones")
	assert.Equal(t, "new strategy C", entries[1].Content)
	assert.Equal(t, "q0", entries[0].SourceQueryID, "kept entry retains its origin")
}

func TestCurateKeepsEntryMetadata(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, "s1", []memory.Entry{
		memory.NewEntry("stable entry", "q0", created),
	}))

	response := "NEW CHEATSHEET:\nstable entry"
	c := testCurator(t, store, staticResponse(response))

	_, err := c.Curate(ctx, "s1", "q1", "question", "output")
	require.NoError(t, err)

	entries, err := store.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].CreatedAt.Equal(created), "kept entry keeps its timestamp")
}

func TestCurateParseFailureLeavesStoreUntouched(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "s1", []memory.Entry{
		memory.NewEntry("existing wisdom", "q0", time.Now()),
	}))

	c := testCurator(t, store, staticResponse("I could not produce a cheatsheet this time."))

	_, err := c.Curate(ctx, "s1", "q1", "question", "output")
	require.Error(t, err)
	assert.True(t, svcerrors.IsCurationParse(err))

	snapshot, err := store.Snapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "existing wisdom", snapshot)
}

func TestCurateEmptySectionIsParseError(t *testing.T) {
	c := testCurator(t, inmem.New(), staticResponse("NEW CHEATSHEET:\n   \nEND OF CHEATSHEET"))

	_, err := c.Curate(context.Background(), "s1", "q1", "q", "o")
	require.Error(t, err)
	assert.True(t, svcerrors.IsCurationParse(err))
}

func TestCurateInvocationErrorPassesThrough(t *testing.T) {
	store := inmem.New()
	boom := svcerrors.NewInvocationError("scripted", "model down", nil)
	c := testCurator(t, store, invokerFunc(func(ctx context.Context, purpose, prompt string) (string, error) {
		return "", boom
	}))

	_, err := c.Curate(context.Background(), "s1", "q1", "q", "o")
	require.Error(t, err)
	assert.True(t, svcerrors.IsType(err, svcerrors.TypeInvocation))

	entries, err := store.List(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCuratePromptCarriesTranscript(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "s1", []memory.Entry{
		memory.NewEntry("previous entry", "q0", time.Now()),
	}))

	var gotPrompt, gotPurpose string
	c := testCurator(t, store, invokerFunc(func(ctx context.Context, purpose, prompt string) (string, error) {
		gotPurpose = purpose
		gotPrompt = prompt
		return "NEW CHEATSHEET:\nprevious entry", nil
	}))

	_, err := c.Curate(ctx, "s1", "q1", "the question text", "the model answer")
	require.NoError(t, err)

	assert.Equal(t, "curate", gotPurpose)
	assert.Contains(t, gotPrompt, "previous entry")
	assert.Contains(t, gotPrompt, "the question text")
	assert.Contains(t, gotPrompt, "the model answer")
	assert.NotContains(t, gotPrompt, template.PlaceholderQuestion, "placeholders must be substituted")
}

func TestParseSection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			"marker with end",
			"chatter NEW CHEATSHEET:\ncontent here\nEND OF CHEATSHEET trailing",
			"content here",
			false,
		},
		{
			"last marker wins",
			"NEW CHEATSHEET:\nfirst\nNEW CHEATSHEET:\nsecond",
			"second",
			false,
		},
		{
			"no end marker",
			"NEW CHEATSHEET:\nall the rest",
			"all the rest",
			false,
		},
		{
			"fenced section",
			"NEW CHEATSHEET:\n```\nfenced entry\n```",
			"fenced entry",
			false,
		},
		{
			"fenced with language tag",
			"NEW CHEATSHEET:\n```text\nfenced entry\n```",
			"fenced entry",
			false,
		},
		{
			"missing marker",
			"no cheatsheet in sight",
			"",
			true,
		},
		{
			"empty section",
			"NEW CHEATSHEET:\n\n",
			"",
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSection(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, svcerrors.IsCurationParse(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeCollapsesDuplicateBlocks(t *testing.T) {
	response := "NEW CHEATSHEET:\nsame entry\n---\nsame entry\n---\nother entry"
	store := inmem.New()
	c := testCurator(t, store, staticResponse(response))

	res, err := c.Curate(context.Background(), "s1", "q1", "q", "o")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Entries, "exact duplicates collapse to one entry")
	assert.Equal(t, 2, res.Report.Added)
}
