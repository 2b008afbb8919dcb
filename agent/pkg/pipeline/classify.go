package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// IsAffirmative reports whether reply begins with the word "yes", ignoring case
// and any leading punctuation or markup.
func IsAffirmative(reply string) bool {
	s := strings.TrimLeftFunc(reply, func(r rune) bool { return !unicode.IsLetter(r) })
	s = strings.ToLower(s)
	if !strings.HasPrefix(s, "yes") {
		return false
	}
	rest := s[len("yes"):]
	return rest == "" || !unicode.IsLetter([]rune(rest)[0])
}

// ClassifySufficiency asks the oracle whether candidate answers question.
func (p *Pipeline) ClassifySufficiency(ctx context.Context, question, candidate string) (bool, error) {
	userPrompt, err := render(p.cfg.Prompts.Sufficiency, sufficiencyPromptData{
		Question: question,
		Answer:   candidate,
	})
	if err != nil {
		return false, err
	}

	response, err := p.trackLLMCall(ctx, "classify", p.cfg.Prompts.System, userPrompt)
	if err != nil {
		return false, fmt.Errorf("LLM completion failed: %w", err)
	}

	accepted := IsAffirmative(response)
	p.log.Info("pipeline: retrieved answer classified", "accepted", accepted)
	return accepted, nil
}
