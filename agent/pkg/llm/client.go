// Package llm provides text-generation clients for the supported providers
// and a retrying wrapper that applies per-call timeouts.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
)

// Client sends a system and user prompt and returns the generated text.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
)

const (
	defaultMaxTokens     = 4096
	defaultOllamaBaseURL = "http://127.0.0.1:11434"
	defaultOllamaModel   = "llama3.1"
)

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("no text content in response")

type Config struct {
	Logger   *slog.Logger
	Provider Provider
	Model    string

	// BaseURL overrides the provider endpoint. Required for OpenAI-compatible
	// servers; optional otherwise.
	BaseURL string
	APIKey  string

	MaxTokens int64
	Retry     RetryPolicy
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	c.Provider = Provider(strings.ToLower(string(c.Provider)))
	switch c.Provider {
	case ProviderAnthropic:
		if c.Model == "" {
			c.Model = string(anthropic.ModelClaude3_5Haiku20241022)
		}
	case ProviderOpenAI:
		if c.Model == "" {
			c.Model = openai.GPT4oMini
		}
	case ProviderOllama:
		if c.Model == "" {
			c.Model = defaultOllamaModel
		}
		if c.BaseURL == "" {
			c.BaseURL = defaultOllamaBaseURL
		}
	case "":
		return errors.New("provider is required")
	default:
		return fmt.Errorf("unknown provider %q (expected anthropic, openai or ollama)", c.Provider)
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c.Retry.Validate()
}

// New builds the client for cfg.Provider wrapped with the retry policy.
func New(cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid llm config: %w", err)
	}

	var (
		client Client
		err    error
	)
	switch cfg.Provider {
	case ProviderAnthropic:
		client = NewAnthropicClient(cfg.Logger, anthropic.Model(cfg.Model), cfg.MaxTokens, cfg.APIKey, cfg.BaseURL)
	case ProviderOpenAI:
		client = NewOpenAIClient(cfg.Logger, cfg.Model, cfg.MaxTokens, cfg.APIKey, cfg.BaseURL)
	case ProviderOllama:
		client, err = NewOllamaClient(cfg.Logger, cfg.Model, cfg.MaxTokens, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	cfg.Logger.Info("llm: client configured", "provider", cfg.Provider, "model", cfg.Model, "maxRetries", cfg.Retry.MaxRetries)
	return NewRetrying(cfg.Logger, client, cfg.Retry), nil
}
