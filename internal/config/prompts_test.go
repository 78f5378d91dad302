package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrompts_Embedded(t *testing.T) {
	t.Parallel()
	p, err := LoadPrompts("")
	require.NoError(t, err)

	out, err := p.Render(PromptCompatibility, PromptData{CurrentDevice: "iPhone 13", NewDevice: "Galaxy S24"})
	require.NoError(t, err)
	assert.Contains(t, out, "Device 1: iPhone 13")
	assert.Contains(t, out, "Device 2: Galaxy S24")
	assert.Contains(t, out, `"comparable"`)

	out, err = p.Render(PromptComparison, PromptData{CurrentDevice: "a", NewDevice: "b", MinSpecs: 3})
	require.NoError(t, err)
	assert.Contains(t, out, "at least 3 entries")

	out, err = p.Render(PromptMultiComparison, PromptData{Products: []string{"Pixel 8", "iPhone 15"}})
	require.NoError(t, err)
	assert.Contains(t, out, "Pixel 8\n")
	assert.Contains(t, out, "iPhone 15\n")

	out, err = p.Render(PromptSpecs, PromptData{ProductName: "ThinkPad X1"})
	require.NoError(t, err)
	assert.Contains(t, out, "ThinkPad X1")
}

func TestLoadPrompts_File(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	body := "compatibility: c {{.CurrentDevice}}\ncompleteness: d\ncomparison: e\nspecs: s {{.ProductName}}\nmulti_comparison: m\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	p, err := LoadPrompts(path)
	require.NoError(t, err)
	out, err := p.Render(PromptSpecs, PromptData{ProductName: "x"})
	require.NoError(t, err)
	assert.Equal(t, "s x", out)
}

func TestParsePrompts_Errors(t *testing.T) {
	t.Parallel()
	_, err := ParsePrompts([]byte("compatibility: x\n"))
	assert.ErrorContains(t, err, "missing prompt")

	_, err = ParsePrompts([]byte("- a\n- b\n"))
	assert.Error(t, err)

	_, err = ParsePrompts([]byte("compatibility: '{{.Nope'\ncompleteness: d\ncomparison: e\nspecs: s\nmulti_comparison: m\n"))
	assert.Error(t, err)

	_, err = LoadPrompts(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPrompts_RenderUnknown(t *testing.T) {
	t.Parallel()
	p, err := LoadPrompts("")
	require.NoError(t, err)
	_, err = p.Render("nope", PromptData{})
	assert.Error(t, err)
}
