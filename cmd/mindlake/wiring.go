package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/malbeclabs/mindlake/agent/pkg/llm"
	"github.com/malbeclabs/mindlake/agent/pkg/pipeline"
	"github.com/malbeclabs/mindlake/agent/pkg/sandbox"
	"github.com/malbeclabs/mindlake/api/config"
	"github.com/malbeclabs/mindlake/pkg/docindex"
	"github.com/malbeclabs/mindlake/pkg/logger"
	"github.com/malbeclabs/mindlake/pkg/store"
	"github.com/spf13/cobra"
)

// loadConfig resolves the configuration for cmd and builds its logger.
func loadConfig(cmd *cobra.Command, logOut io.Writer) (config.Config, *slog.Logger, error) {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger.NewWithWriter(logOut, verbose), nil
}

func openStore(ctx context.Context, log *slog.Logger, cfg config.Config) (store.Store, error) {
	st, err := store.Open(ctx, log, cfg.Store.URL, store.Options{QueryTimeout: cfg.Store.QueryTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", store.RedactedURL(cfg.Store.URL), err)
	}
	return st, nil
}

func newLLMClient(log *slog.Logger, cfg config.Config) (llm.Client, error) {
	return llm.New(llm.Config{
		Logger:    log,
		Provider:  llm.Provider(cfg.LLM.Provider),
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: int64(cfg.LLM.MaxTokens),
		Retry: llm.RetryPolicy{
			MaxRetries:  cfg.LLM.MaxRetries,
			CallTimeout: cfg.LLM.Timeout,
		},
	})
}

func openIndex(log *slog.Logger, cfg config.Config, client llm.Client) (*docindex.Index, error) {
	embedder, err := docindex.NewOllamaEmbedder(cfg.Index.EmbeddingModel, cfg.Index.OllamaURL, 0)
	if err != nil {
		return nil, err
	}
	idx, err := docindex.Open(docindex.Config{
		Logger:   log,
		Embedder: embedder,
		LLM:      client,
		Path:     cfg.Index.Path,
		TopK:     cfg.Index.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open document index: %w", err)
	}
	return idx, nil
}

// resolveSchema returns the schema description for query synthesis: the
// schema file, the introspected schema, or empty for the built-in description.
func resolveSchema(ctx context.Context, log *slog.Logger, cfg config.Config, st store.Store) (string, error) {
	switch {
	case cfg.Store.SchemaFile != "":
		data, err := os.ReadFile(cfg.Store.SchemaFile)
		if err != nil {
			return "", fmt.Errorf("failed to read schema file: %w", err)
		}
		log.Info("using schema description from file", "path", cfg.Store.SchemaFile)
		return string(data), nil
	case cfg.Store.IntrospectSchema:
		schema, err := st.DescribeSchema(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to introspect schema: %w", err)
		}
		log.Info("using introspected schema description")
		return schema, nil
	default:
		return "", nil
	}
}

// app holds the collaborators of a running pipeline.
type app struct {
	log      *slog.Logger
	cfg      config.Config
	store    store.Store
	index    *docindex.Index
	pipeline *pipeline.Pipeline
}

func newApp(ctx context.Context, log *slog.Logger, cfg config.Config) (*app, error) {
	client, err := newLLMClient(log, cfg)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{log: log, cfg: cfg, store: st}

	schema, err := resolveSchema(ctx, log, cfg, st)
	if err != nil {
		a.Close()
		return nil, err
	}

	evaluator, err := sandbox.New(sandbox.Config{
		Logger:   log,
		Timeout:  cfg.Sandbox.Timeout,
		MaxNodes: cfg.Sandbox.MaxNodes,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	pcfg := pipeline.Config{
		Logger:    log,
		LLM:       client,
		Store:     st,
		Evaluator: evaluator,
		Schema:    schema,
	}
	if cfg.Index.Path != "" {
		a.index, err = openIndex(log, cfg, client)
		if err != nil {
			a.Close()
			return nil, err
		}
		pcfg.DocumentIndex = a.index
		log.Info("retrieval enabled", "index", cfg.Index.Path, "chunks", a.index.Len())
	}

	a.pipeline, err = pipeline.New(pcfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) memoryPolicy() pipeline.RetentionPolicy {
	return pipeline.SlidingWindow(a.cfg.Memory.Window)
}

func (a *app) Close() {
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.log.Error("failed to close document index", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Error("failed to close store", "error", err)
	}
}
