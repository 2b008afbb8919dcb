// Package pipeline turns a natural-language question about the mindmap into an
// answer: optional document retrieval, query synthesis, guarded execution,
// optional chart generation and answer synthesis, with per-session memory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/mindlake/pkg/store"
)

const defaultMaxPromptRows = 50

// ErrEmptyQuestion is returned by Run for a blank question.
var ErrEmptyQuestion = errors.New("question is required")

// Config holds the configuration for the pipeline.
type Config struct {
	Logger    *slog.Logger
	LLM       LLMClient
	Store     Store
	Evaluator Evaluator

	// DocumentIndex enables the retrieval-first tier when set.
	DocumentIndex DocumentIndex

	Prompts *Prompts
	Clock   clockwork.Clock

	// Schema describes the store for query synthesis. Defaults to the
	// mindmap nodes/edges description.
	Schema string

	VisualizationKeywords []string
	MaxPromptRows         int // Rows shown to the oracle (default 50)
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.LLM == nil {
		return errors.New("LLM client is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Evaluator == nil {
		return errors.New("evaluator is required")
	}
	if c.Prompts == nil {
		prompts, err := LoadPrompts()
		if err != nil {
			return fmt.Errorf("failed to load prompts: %w", err)
		}
		c.Prompts = prompts
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if strings.TrimSpace(c.Schema) == "" {
		c.Schema = store.DefaultSchemaDescription
	}
	if len(c.VisualizationKeywords) == 0 {
		c.VisualizationKeywords = DefaultVisualizationKeywords
	}
	if c.MaxPromptRows <= 0 {
		c.MaxPromptRows = defaultMaxPromptRows
	}
	return nil
}

// Pipeline orchestrates a single conversational turn.
type Pipeline struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return &Pipeline{
		cfg: cfg,
		log: cfg.Logger,
	}, nil
}

// Run answers req using and then extending mem.
func (p *Pipeline) Run(ctx context.Context, mem *Memory, req PipelineRequest) (*PipelineResponse, error) {
	return p.RunWithProgress(ctx, mem, req, nil)
}

// RunWithProgress is Run with a callback invoked at each stage transition.
// Apart from a blank question it always returns a response; collaborator
// failures degrade the answer instead of aborting the turn.
func (p *Pipeline) RunWithProgress(ctx context.Context, mem *Memory, req PipelineRequest, onProgress ProgressCallback) (*PipelineResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if mem == nil {
		return nil, errors.New("memory is required")
	}

	notify := func(pr Progress) {
		if onProgress != nil {
			onProgress(pr)
		}
	}

	start := p.cfg.Clock.Now()
	history := mem.Render()
	notify(Progress{Stage: StageStart})
	p.log.Info("pipeline: turn started", "historyTurns", mem.Len(), "retrieval", p.cfg.DocumentIndex != nil)

	if p.cfg.DocumentIndex != nil {
		if resp, ok := p.tryRetrieval(ctx, mem, question, start, notify); ok {
			return resp, nil
		}
	}

	var (
		ext     Extraction
		outcome ExecutionOutcome
	)
	synthesis, err := p.SynthesizeQuery(ctx, question, history)
	if err != nil {
		p.log.Warn("pipeline: query synthesis failed", "error", err)
		notify(Progress{Stage: StageQuerySynthesized, Route: RouteQuery, Error: err.Error()})
		ext = NotFound()
		notify(Progress{Stage: StageExtracted, Route: RouteQuery})
		outcome = ErrorOutcome("query synthesis failed: " + err.Error())
	} else {
		notify(Progress{Stage: StageQuerySynthesized, Route: RouteQuery})
		ext = ExtractQuery(synthesis.RawText)
		p.log.Info("pipeline: query extracted", "found", ext.Found, "query", ext.Text)
		notify(Progress{Stage: StageExtracted, Route: RouteQuery, Query: ext.Text})
		outcome = p.ExecuteQuery(ctx, ext)
	}
	notify(Progress{Stage: StageExecuted, Route: RouteQuery, Rows: len(outcome.Rows), Error: outcome.Message})

	figures := p.Visualize(ctx, question, outcome)
	notify(Progress{Stage: StageVisualizationChecked, Route: RouteQuery, Figures: len(figures)})

	answer := p.SynthesizeAnswer(ctx, question, history, ext, outcome, figures)
	notify(Progress{Stage: StageAnswerSynthesized, Route: RouteQuery})

	p.remember(mem, question, answer)
	notify(Progress{Stage: StageMemoryUpdated, Route: RouteQuery})

	outcomeLabel := "ok"
	if !outcome.OK {
		outcomeLabel = "error"
	}
	turnsTotal.WithLabelValues(string(RouteQuery), outcomeLabel).Inc()

	resp := &PipelineResponse{
		Answer:   answer,
		Query:    ext,
		Figures:  figures,
		Route:    RouteQuery,
		Outcome:  outcome,
		Duration: p.cfg.Clock.Since(start),
	}
	p.log.Info("pipeline: turn completed", "route", resp.Route, "ok", outcome.OK, "figures", len(figures), "duration", resp.Duration)
	notify(Progress{Stage: StageDone, Route: RouteQuery})
	return resp, nil
}

func (p *Pipeline) tryRetrieval(ctx context.Context, mem *Memory, question string, start time.Time, notify func(Progress)) (*PipelineResponse, bool) {
	candidate, ok := p.retrieve(ctx, question)
	if !ok {
		notify(Progress{Stage: StageRetrievalAttempted, Route: RouteRetrieval, Error: "no candidate answer"})
		return nil, false
	}
	notify(Progress{Stage: StageRetrievalAttempted, Route: RouteRetrieval})

	accepted, err := p.ClassifySufficiency(ctx, question, candidate.Text)
	if err != nil {
		p.log.Info("pipeline: classification failed, falling through", "error", err)
		notify(Progress{Stage: StageClassified, Route: RouteRetrieval, Error: err.Error()})
		return nil, false
	}
	notify(Progress{Stage: StageClassified, Route: RouteRetrieval, Accepted: accepted})
	if !accepted {
		return nil, false
	}

	p.remember(mem, question, candidate.Text)
	notify(Progress{Stage: StageMemoryUpdated, Route: RouteRetrieval})
	turnsTotal.WithLabelValues(string(RouteRetrieval), "ok").Inc()

	resp := &PipelineResponse{
		Answer:   candidate.Text,
		Query:    NotFound(),
		Route:    RouteRetrieval,
		Sources:  candidate.Sources,
		Duration: p.cfg.Clock.Since(start),
	}
	p.log.Info("pipeline: turn completed", "route", resp.Route, "sources", len(resp.Sources), "duration", resp.Duration)
	notify(Progress{Stage: StageDone, Route: RouteRetrieval})
	return resp, true
}

func (p *Pipeline) remember(mem *Memory, question, answer string) {
	now := p.cfg.Clock.Now()
	mem.Append(Turn{Role: SpeakerUser, Text: question, At: now})
	mem.Append(Turn{Role: SpeakerAssistant, Text: answer, At: now})
}
