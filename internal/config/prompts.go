package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptData is the value passed to every prompt template.
type PromptData struct {
	Text     string
	Author   string
	Replies  string
	Language string
}

// Prompts holds the parsed prompt templates keyed by language where the
// prompt has per-language variants.
type Prompts struct {
	Relevance      string            `yaml:"relevance"`
	Translator     map[string]string `yaml:"translator"`
	Summarizer     map[string]string `yaml:"summarizer"`
	ThreadAnalyzer map[string]string `yaml:"thread_analyzer"`

	parsed map[string]*template.Template
}

// LoadPrompts reads prompt templates from path, or the embedded defaults
// when path is empty.
func LoadPrompts(path string) (*Prompts, error) {
	data := defaultPrompts
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompts file %s: %w", path, err)
		}
	}
	return ParsePrompts(data)
}

// ParsePrompts parses YAML prompt definitions and compiles every template.
func ParsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	if p.Relevance == "" {
		return nil, fmt.Errorf("prompts: relevance template is required")
	}

	p.parsed = make(map[string]*template.Template)
	add := func(key, text string) error {
		tmpl, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return fmt.Errorf("prompts: template %s: %w", key, err)
		}
		p.parsed[key] = tmpl
		return nil
	}

	if err := add("relevance", p.Relevance); err != nil {
		return nil, err
	}
	groups := map[string]map[string]string{
		"translator":      p.Translator,
		"summarizer":      p.Summarizer,
		"thread_analyzer": p.ThreadAnalyzer,
	}
	for name, byLang := range groups {
		for lang, text := range byLang {
			if err := add(name+"."+lang, text); err != nil {
				return nil, err
			}
		}
	}
	return &p, nil
}

// Render executes the named prompt. For per-language prompts lang selects
// the variant, falling back to English.
func (p *Prompts) Render(name, lang string, data PromptData) (string, error) {
	tmpl, ok := p.parsed[name]
	if !ok {
		tmpl, ok = p.parsed[name+"."+lang]
	}
	if !ok {
		tmpl, ok = p.parsed[name+".en"]
	}
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}

	data.Language = lang
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}
