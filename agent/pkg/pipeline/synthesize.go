package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/malbeclabs/mindlake/agent/pkg/sandbox"
)

// FigureAnswer is the answer given whenever a chart was produced.
const FigureAnswer = "Here is the graph you asked for."

// SynthesizeAnswer produces the final answer for a turn. It never fails: if the
// oracle is unavailable the answer is composed from the outcome.
func (p *Pipeline) SynthesizeAnswer(ctx context.Context, question, history string, ext Extraction, outcome ExecutionOutcome, figures []*sandbox.Figure) string {
	if len(figures) > 0 {
		return FigureAnswer
	}

	userPrompt, err := render(p.cfg.Prompts.Answer, answerPromptData{
		Schema:         p.cfg.Schema,
		History:        history,
		Question:       question,
		Query:          ext.Text,
		Result:         FormatOutcome(outcome, p.cfg.MaxPromptRows),
		FigureProduced: false,
	})
	if err != nil {
		p.log.Warn("pipeline: failed to render answer prompt", "error", err)
		return fallbackAnswer(outcome, p.cfg.MaxPromptRows)
	}

	response, err := p.trackLLMCall(ctx, "answer", p.cfg.Prompts.System, userPrompt)
	if err != nil {
		p.log.Warn("pipeline: answer synthesis failed, composing locally", "error", err)
		return fallbackAnswer(outcome, p.cfg.MaxPromptRows)
	}

	answer := strings.TrimSpace(response)
	if answer == "" {
		return fallbackAnswer(outcome, p.cfg.MaxPromptRows)
	}
	return answer
}

func fallbackAnswer(outcome ExecutionOutcome, maxRows int) string {
	if !outcome.OK {
		return fmt.Sprintf("I could not answer the question: %s", outcome.Message)
	}
	if len(outcome.Rows) == 0 {
		return "The query ran successfully but returned no results."
	}
	return "I could not summarize the result, but the query returned:\n" + FormatOutcome(outcome, maxRows)
}
