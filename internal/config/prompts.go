package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptData is the value rendered into prompt templates.
type PromptData struct {
	CurrentDevice string
	NewDevice     string
	ProductName   string
	Products      []string
	MinSpecs      int
}

// Prompt names as they appear in prompts.yaml.
const (
	PromptCompatibility   = "compatibility"
	PromptCompleteness    = "completeness"
	PromptComparison      = "comparison"
	PromptSpecs           = "specs"
	PromptMultiComparison = "multi_comparison"
)

var requiredPrompts = []string{
	PromptCompatibility,
	PromptCompleteness,
	PromptComparison,
	PromptSpecs,
	PromptMultiComparison,
}

// Prompts holds parsed prompt templates keyed by name.
type Prompts struct {
	templates map[string]*template.Template
}

// LoadPrompts parses the embedded prompt set, or the YAML file at path when it is non-empty.
func LoadPrompts(path string) (*Prompts, error) {
	raw := defaultPrompts
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("op=config.LoadPrompts: failed to get absolute path: %w", err)
		}
		raw, err = os.ReadFile(absPath) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("op=config.LoadPrompts: %w", err)
		}
	}
	return ParsePrompts(raw)
}

// ParsePrompts parses a YAML mapping of prompt name to template body.
func ParsePrompts(raw []byte) (*Prompts, error) {
	var m map[string]string
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("op=config.ParsePrompts: %w", err)
	}
	p := &Prompts{templates: make(map[string]*template.Template, len(m))}
	for _, name := range requiredPrompts {
		body, ok := m[name]
		if !ok || strings.TrimSpace(body) == "" {
			return nil, fmt.Errorf("op=config.ParsePrompts: missing prompt %q", name)
		}
	}
	for name, body := range m {
		tpl, err := template.New(name).Option("missingkey=error").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("op=config.ParsePrompts: prompt %q: %w", name, err)
		}
		p.templates[name] = tpl
	}
	return p, nil
}

// Render executes the named prompt with data.
func (p *Prompts) Render(name string, data PromptData) (string, error) {
	tpl, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("op=config.Render: unknown prompt %q", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("op=config.Render: prompt %q: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
