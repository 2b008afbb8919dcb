package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/malbeclabs/mindlake/agent/pkg/sandbox"
)

// DefaultVisualizationKeywords trigger chart generation when found in a question.
var DefaultVisualizationKeywords = []string{"chart", "plot", "graph", "visualize", "show", "display"}

// HasVisualizationIntent reports whether question contains any keyword,
// ignoring case.
func HasVisualizationIntent(question string, keywords []string) bool {
	lower := strings.ToLower(question)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Visualize generates and runs a chart program for an Ok outcome with rows when
// the question asks for a chart. Every failure degrades to no figure.
func (p *Pipeline) Visualize(ctx context.Context, question string, outcome ExecutionOutcome) []*sandbox.Figure {
	if !HasVisualizationIntent(question, p.cfg.VisualizationKeywords) {
		return nil
	}
	if !outcome.OK || len(outcome.Rows) == 0 {
		p.log.Info("pipeline: skipping visualization, no rows")
		return nil
	}

	rows := outcome.Rows
	if len(rows) > p.cfg.MaxPromptRows {
		rows = rows[:p.cfg.MaxPromptRows]
	}
	serialized, err := json.Marshal(rows)
	if err != nil {
		p.visualizationFailed("serialize", err)
		return nil
	}

	userPrompt, err := render(p.cfg.Prompts.Plot, plotPromptData{
		Rows:     string(serialized),
		RowCount: len(outcome.Rows),
		Question: question,
	})
	if err != nil {
		p.visualizationFailed("prompt", err)
		return nil
	}

	response, err := p.trackLLMCall(ctx, "plot", p.cfg.Prompts.System, userPrompt)
	if err != nil {
		p.visualizationFailed("oracle", err)
		return nil
	}

	code := extractCode(response)
	p.log.Debug("pipeline: running chart program", "code", code)

	fig, err := p.cfg.Evaluator.Evaluate(ctx, code, outcome.Rows, question)
	if err != nil {
		reason := "runtime"
		switch {
		case errors.Is(err, sandbox.ErrNoFigure):
			reason = "no_figure"
		case errors.Is(err, sandbox.ErrTimeout):
			reason = "timeout"
		}
		p.visualizationFailed(reason, err)
		return nil
	}

	figuresProduced.WithLabelValues(string(fig.Kind)).Inc()
	p.log.Info("pipeline: figure produced", "kind", fig.Kind)
	return []*sandbox.Figure{fig}
}

func (p *Pipeline) visualizationFailed(reason string, err error) {
	sandboxFailures.WithLabelValues(reason).Inc()
	p.log.Warn("pipeline: visualization failed", "reason", reason, "error", err)
}
