package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaClient implements Client against a local Ollama server.
type OllamaClient struct {
	log       *slog.Logger
	llm       *ollama.LLM
	model     string
	maxTokens int64
}

func NewOllamaClient(log *slog.Logger, model string, maxTokens int64, serverURL string) (*OllamaClient, error) {
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &OllamaClient{
		log:       log,
		llm:       llm,
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (c *OllamaClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	c.log.Debug("llm: ollama call starting", "model", c.model, "userPromptLen", len(userPrompt))

	resp, err := c.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}, llms.WithMaxTokens(int(c.maxTokens)))

	duration := time.Since(start)
	if err != nil {
		c.log.Warn("llm: ollama call failed", "duration", duration, "error", err)
		return "", fmt.Errorf("ollama error: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", ErrEmptyResponse
	}
	c.log.Debug("llm: ollama call completed", "duration", duration)
	return resp.Choices[0].Content, nil
}
