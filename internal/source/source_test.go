package source

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DropsBlankLinesAndTrims(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input_prompts.txt")
	content := "\n  What is the capital of France?  \n\n\t\nExplain recursion.\r\n   \n  Write a haiku\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	prompts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"What is the capital of France?",
		"Explain recursion.",
		"Write a haiku",
	}, prompts)
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.txt")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.Contains(t, err.Error(), path)
}

func TestRead_StripsBOM(t *testing.T) {
	prompts, err := Read(strings.NewReader("\ufeffhello\nworld"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world"}, prompts)
}

func TestRead_Empty(t *testing.T) {
	prompts, err := Read(strings.NewReader("\n\n   \n"))
	require.NoError(t, err)
	assert.Empty(t, prompts)
}

func TestRead_KeepsUnicode(t *testing.T) {
	prompts, err := Read(strings.NewReader("¿Dónde está la biblioteca?\n日本の首都は？"))
	require.NoError(t, err)
	assert.Equal(t, []string{"¿Dónde está la biblioteca?", "日本の首都は？"}, prompts)
}

func TestRead_LineTooLong(t *testing.T) {
	_, err := Read(strings.NewReader(strings.Repeat("a", maxLineBytes+1)))
	assert.Error(t, err)
}
