package pipeline

import (
	"context"
	"fmt"
)

// SynthesizeQuery asks the oracle for a query answering question. Malformed
// output is not an error here; only a failed call is.
func (p *Pipeline) SynthesizeQuery(ctx context.Context, question, history string) (SynthesisResult, error) {
	userPrompt, err := render(p.cfg.Prompts.Query, queryPromptData{
		Schema:   p.cfg.Schema,
		History:  history,
		Question: question,
	})
	if err != nil {
		return SynthesisResult{}, err
	}

	response, err := p.trackLLMCall(ctx, "query", p.cfg.Prompts.System, userPrompt)
	if err != nil {
		return SynthesisResult{}, fmt.Errorf("LLM completion failed: %w", err)
	}

	return SynthesisResult{RawText: response}, nil
}

// trackLLMCall wraps an oracle call with duration metrics and logging.
func (p *Pipeline) trackLLMCall(ctx context.Context, stage, systemPrompt, userPrompt string) (string, error) {
	start := p.cfg.Clock.Now()
	response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt)
	duration := p.cfg.Clock.Since(start)

	status := statusLabel(err)
	oracleCallDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
	p.log.Debug("pipeline: oracle call", "stage", stage, "status", status, "duration", duration)

	return response, err
}
