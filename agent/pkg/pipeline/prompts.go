package pipeline

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/malbeclabs/mindlake/agent/pkg/pipeline/prompts"
)

// Prompts contains the pipeline prompts loaded from embedded files.
type Prompts struct {
	System      string             // System prompt shared by every oracle call
	Query       *template.Template // Query synthesis
	Plot        *template.Template // Chart program synthesis
	Answer      *template.Template // Answer synthesis
	Sufficiency *template.Template // Yes/no judgement of a retrieved answer
}

type queryPromptData struct {
	Schema   string
	History  string
	Question string
}

type plotPromptData struct {
	Rows     string
	RowCount int
	Question string
}

type answerPromptData struct {
	Schema         string
	History        string
	Question       string
	Query          string
	Result         string
	FigureProduced bool
}

type sufficiencyPromptData struct {
	Question string
	Answer   string
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.System, err = loadPrompt("SYSTEM.md"); err != nil {
		return nil, fmt.Errorf("failed to load SYSTEM: %w", err)
	}
	if p.Query, err = loadTemplate("QUERY.md"); err != nil {
		return nil, fmt.Errorf("failed to load QUERY: %w", err)
	}
	if p.Plot, err = loadTemplate("PLOT.md"); err != nil {
		return nil, fmt.Errorf("failed to load PLOT: %w", err)
	}
	if p.Answer, err = loadTemplate("ANSWER.md"); err != nil {
		return nil, fmt.Errorf("failed to load ANSWER: %w", err)
	}
	if p.Sufficiency, err = loadTemplate("SUFFICIENCY.md"); err != nil {
		return nil, fmt.Errorf("failed to load SUFFICIENCY: %w", err)
	}

	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.PromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func loadTemplate(path string) (*template.Template, error) {
	text, err := loadPrompt(path)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(path).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return tmpl, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}
