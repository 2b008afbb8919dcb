package pipeline

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/mindlake/agent/pkg/sandbox"
	"github.com/malbeclabs/mindlake/pkg/docindex"
	"github.com/malbeclabs/mindlake/pkg/store"
	"github.com/stretchr/testify/require"
)

// mockLLMClient answers each prompt kind with a scripted response and counts calls.
type mockLLMClient struct {
	mu sync.Mutex

	query    []string // consumed in order; the last one repeats
	plot     string
	answer   string
	classify string

	queryErr    error
	plotErr     error
	answerErr   error
	classifyErr error

	calls   map[string]int
	prompts map[string][]string
}

func promptKind(userPrompt string) string {
	switch {
	case strings.Contains(userPrompt, "Provide the SQL query in the following format"):
		return "query"
	case strings.Contains(userPrompt, "chart program"):
		return "plot"
	case strings.Contains(userPrompt, "start your reply with yes"):
		return "classify"
	default:
		return "answer"
	}
}

func (m *mockLLMClient) Complete(_ context.Context, _, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.calls == nil {
		m.calls = make(map[string]int)
		m.prompts = make(map[string][]string)
	}
	kind := promptKind(userPrompt)
	m.calls[kind]++
	m.prompts[kind] = append(m.prompts[kind], userPrompt)

	switch kind {
	case "query":
		if m.queryErr != nil {
			return "", m.queryErr
		}
		if len(m.query) == 0 {
			return "", nil
		}
		idx := min(m.calls[kind]-1, len(m.query)-1)
		return m.query[idx], nil
	case "plot":
		return m.plot, m.plotErr
	case "classify":
		return m.classify, m.classifyErr
	default:
		return m.answer, m.answerErr
	}
}

func (m *mockLLMClient) callCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

func (m *mockLLMClient) lastPrompt(kind string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.prompts[kind]
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

type mockStore struct {
	mu      sync.Mutex
	result  store.Result
	err     error
	calls   int
	queries []string
}

func (s *mockStore) Execute(_ context.Context, query string) (store.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.queries = append(s.queries, query)
	return s.result, s.err
}

func (s *mockStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type mockDocumentIndex struct {
	answer docindex.Answer
	err    error
	calls  int
}

func (d *mockDocumentIndex) Answer(_ context.Context, _ string) (docindex.Answer, error) {
	d.calls++
	return d.answer, d.err
}

type mockEvaluator struct {
	fig   *sandbox.Figure
	err   error
	calls int
	code  string
	rows  []map[string]any
}

func (e *mockEvaluator) Evaluate(_ context.Context, code string, rows []map[string]any, _ string) (*sandbox.Figure, error) {
	e.calls++
	e.code = code
	e.rows = rows
	return e.fig, e.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestSandbox(t *testing.T) *sandbox.Evaluator {
	t.Helper()
	e, err := sandbox.New(sandbox.Config{Logger: newTestLogger()})
	require.NoError(t, err)
	return e
}

type testDeps struct {
	llm   *mockLLMClient
	store *mockStore
	eval  Evaluator
	index DocumentIndex
	clock *clockwork.FakeClock
}

func newTestPipeline(t *testing.T, deps testDeps) *Pipeline {
	t.Helper()
	if deps.llm == nil {
		deps.llm = &mockLLMClient{}
	}
	if deps.store == nil {
		deps.store = &mockStore{}
	}
	if deps.eval == nil {
		deps.eval = newTestSandbox(t)
	}
	if deps.clock == nil {
		deps.clock = clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	}
	cfg := Config{
		Logger:    newTestLogger(),
		LLM:       deps.llm,
		Store:     deps.store,
		Evaluator: deps.eval,
		Clock:     deps.clock,
	}
	if deps.index != nil {
		cfg.DocumentIndex = deps.index
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}
