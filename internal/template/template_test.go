package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/OneChainTech/dynamic-cheatsheet/pkg/errors"
)

func TestNewValidatesPlaceholders(t *testing.T) {
	_, err := New("generator", "solve [[QUESTION]] with [[CHEATSHEET]]",
		PlaceholderQuestion, PlaceholderCheatsheet)
	require.NoError(t, err)

	_, err = New("generator", "solve [[QUESTION]]",
		PlaceholderQuestion, PlaceholderCheatsheet)
	require.Error(t, err)
	assert.True(t, svcerrors.IsType(err, svcerrors.TypeConfiguration))
	assert.Contains(t, err.Error(), "[[CHEATSHEET]]")
}

func TestRender(t *testing.T) {
	tpl, err := New("generator", "Q: [[QUESTION]]\nC: [[CHEATSHEET]]",
		PlaceholderQuestion, PlaceholderCheatsheet)
	require.NoError(t, err)

	got := tpl.Render(map[string]string{
		PlaceholderQuestion:   "Game of 24: 5 6 6 8",
		PlaceholderCheatsheet: "(empty)",
	})
	assert.Equal(t, "Q: Game of 24: 5 6 6 8\nC: (empty)", got)
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	tpl, err := New("curator", "prev: [[PREVIOUS_CHEATSHEET]]", PlaceholderPreviousCheatsheet)
	require.NoError(t, err)

	got := tpl.Render(map[string]string{PlaceholderQuestion: "ignored"})
	assert.Equal(t, "prev: [[PREVIOUS_CHEATSHEET]]", got)
}

func TestLoadSetDefaults(t *testing.T) {
	set, err := LoadSet(Config{})
	require.NoError(t, err)

	assert.Contains(t, set.Generator.Text(), "FINAL ANSWER:")
	assert.Contains(t, set.Curator.Text(), "NEW CHEATSHEET:")
	assert.Contains(t, set.Synthesis.Text(), PlaceholderQuestion)
}

func TestLoadSetFromFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "generator.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("custom [[QUESTION]] [[CHEATSHEET]]"), 0o600))

	set, err := LoadSet(Config{GeneratorPath: path})
	require.NoError(t, err)
	assert.Equal(t, "custom [[QUESTION]] [[CHEATSHEET]]", set.Generator.Text())
	assert.Contains(t, set.Curator.Text(), "NEW CHEATSHEET:", "unset paths keep defaults")
}

func TestLoadSetMissingFile(t *testing.T) {
	_, err := LoadSet(Config{CuratorPath: filepath.Join(t.TempDir(), "absent.txt")})
	require.Error(t, err)
	assert.True(t, svcerrors.IsType(err, svcerrors.TypeConfiguration))
}

func TestLoadSetInvalidFileContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "curator.txt")
	require.NoError(t, os.WriteFile(path, []byte("no placeholders here"), 0o600))

	_, err := LoadSet(Config{CuratorPath: path})
	require.Error(t, err)
	assert.True(t, svcerrors.IsType(err, svcerrors.TypeConfiguration))
}
