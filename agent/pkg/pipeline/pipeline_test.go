package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/malbeclabs/mindlake/agent/pkg/sandbox"
	"github.com/malbeclabs/mindlake/pkg/docindex"
	"github.com/malbeclabs/mindlake/pkg/store"
	"github.com/stretchr/testify/require"
)

var (
	countResult = store.Result{
		Columns: []string{"count"},
		Rows:    []store.Record{{"count": int64(5)}},
	}
	edgesResult = store.Result{
		Columns: []string{"source", "target"},
		Rows: []store.Record{
			{"source": int32(1), "target": int32(2)},
			{"source": int32(1), "target": int32(3)},
			{"source": int32(3), "target": int32(4)},
		},
	}
)

func TestPipeline_Config_Validate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Logger:    newTestLogger(),
			LLM:       &mockLLMClient{},
			Store:     &mockStore{},
			Evaluator: &mockEvaluator{},
		}
	}

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		require.NoError(t, cfg.Validate())
		require.NotNil(t, cfg.Prompts)
		require.NotNil(t, cfg.Clock)
		require.Equal(t, store.DefaultSchemaDescription, cfg.Schema)
		require.Equal(t, DefaultVisualizationKeywords, cfg.VisualizationKeywords)
		require.Equal(t, 50, cfg.MaxPromptRows)
		require.Nil(t, cfg.DocumentIndex)
	})

	for _, tc := range []struct {
		name  string
		clear func(*Config)
		want  string
	}{
		{"logger", func(c *Config) { c.Logger = nil }, "logger is required"},
		{"llm", func(c *Config) { c.LLM = nil }, "LLM client is required"},
		{"store", func(c *Config) { c.Store = nil }, "store is required"},
		{"evaluator", func(c *Config) { c.Evaluator = nil }, "evaluator is required"},
	} {
		t.Run("missing "+tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.clear(&cfg)
			require.EqualError(t, cfg.Validate(), tc.want)

			_, err := New(cfg)
			require.ErrorContains(t, err, "invalid pipeline config")
		})
	}
}

func TestPipeline_Run_CountQuestion(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{
		query:  []string{"SQLQuery:\nSELECT COUNT(*) AS \"count\" FROM \"public\".\"nodes\";"},
		answer: "There are 5 nodes in the mindmap.",
	}
	s := &mockStore{result: countResult}
	p := newTestPipeline(t, testDeps{llm: llm, store: s})
	mem := NewMemory(RetainAll)

	resp, err := p.Run(context.Background(), mem, PipelineRequest{Question: "How many nodes are there?"})
	require.NoError(t, err)

	require.Equal(t, RouteQuery, resp.Route)
	require.Equal(t, "There are 5 nodes in the mindmap.", resp.Answer)
	require.Equal(t, Found(`SELECT COUNT(*) AS "count" FROM "public"."nodes";`), resp.Query)
	require.True(t, resp.Outcome.OK)
	require.Equal(t, []Record{{"count": int64(5)}}, resp.Outcome.Rows)
	require.Empty(t, resp.Figures)
	require.Equal(t, 1, s.callCount())
	require.Equal(t, 0, llm.callCount("plot"))
	require.Contains(t, llm.lastPrompt("query"), "Question: How many nodes are there?")
}

func TestPipeline_Run_GraphQuestion(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{
		query:  []string{"SQLQuery:\n```sql\nSELECT \"source\", \"target\" FROM \"public\".\"edges\"\n```"},
		plot:   "```expr\nnx.Draw(rows, \"source\", \"target\").Titled(\"Mindmap edges\")\n```",
		answer: "should not be asked",
	}
	s := &mockStore{result: edgesResult}
	p := newTestPipeline(t, testDeps{llm: llm, store: s})

	resp, err := p.Run(context.Background(), NewMemory(RetainAll), PipelineRequest{Question: "Show me all edges of the mindmap"})
	require.NoError(t, err)

	require.Equal(t, FigureAnswer, resp.Answer)
	require.Len(t, resp.Figures, 1)
	fig := resp.Figures[0]
	require.Equal(t, sandbox.KindGraph, fig.Kind)

	wantEdges := []sandbox.Edge{
		{Source: "1", Target: "2"},
		{Source: "1", Target: "3"},
		{Source: "3", Target: "4"},
	}
	if diff := cmp.Diff(wantEdges, fig.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, fig.Nodes, 4)
	require.Equal(t, 0, llm.callCount("answer"))
	require.Equal(t, 1, llm.callCount("plot"))
}

func TestPipeline_Run_MissingMarker(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{
		query:  []string{"I am not sure which table holds that."},
		answer: "I could not find a query for that question.",
	}
	s := &mockStore{result: countResult}
	p := newTestPipeline(t, testDeps{llm: llm, store: s})

	resp, err := p.Run(context.Background(), NewMemory(RetainAll), PipelineRequest{Question: "What is the meaning of life?"})
	require.NoError(t, err)

	require.False(t, resp.Query.Found)
	require.Equal(t, ErrorOutcome("no query found"), resp.Outcome)
	require.Equal(t, 0, s.callCount())
	require.Equal(t, "I could not find a query for that question.", resp.Answer)
	require.Contains(t, llm.lastPrompt("answer"), "SQL Result: Error: no query found")
}

func TestPipeline_Run_RejectsDestructiveQuery(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{
		query:     []string{"SQLQuery:\nDROP TABLE \"public\".\"nodes\";"},
		answerErr: errors.New("oracle down"),
	}
	s := &mockStore{result: countResult}
	p := newTestPipeline(t, testDeps{llm: llm, store: s})

	resp, err := p.Run(context.Background(), NewMemory(RetainAll), PipelineRequest{Question: "Delete everything"})
	require.NoError(t, err)

	require.True(t, resp.Query.Found)
	require.False(t, resp.Outcome.OK)
	require.Contains(t, resp.Outcome.Message, "only SELECT statements are allowed")
	require.Equal(t, 0, s.callCount())
	require.Equal(t, "I could not answer the question: invalid query: only SELECT statements are allowed", resp.Answer)
}

func TestPipeline_Run_RejectsStackedStatementsOnDuckDB(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := store.NewSQL(ctx, newTestLogger(), store.DialectDuckDB, "", store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	_, err = db.DB().ExecContext(ctx, `INSERT INTO nodes (label, mindmap_id) VALUES ('root', 'm1'), ('leaf', 'm1')`)
	require.NoError(t, err)
	_, err = db.DB().ExecContext(ctx, `INSERT INTO edges (source, target, mindmap_id) VALUES (1, 2, 'm1')`)
	require.NoError(t, err)

	llm := &mockLLMClient{
		query:  []string{"SQLQuery:\nSELECT 1; DROP TABLE edges;"},
		answer: "Done.",
	}
	p, err := New(Config{
		Logger:    newTestLogger(),
		LLM:       llm,
		Store:     db,
		Evaluator: newTestSandbox(t),
	})
	require.NoError(t, err)

	resp, err := p.Run(ctx, NewMemory(RetainAll), PipelineRequest{Question: "How many edges are there?"})
	require.NoError(t, err)
	require.False(t, resp.Outcome.OK)
	require.Contains(t, resp.Outcome.Message, "multiple statements are not allowed")

	res, err := db.Execute(ctx, `SELECT COUNT(*) AS count FROM edges`)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Rows[0]["count"])
}

func TestPipeline_Run_QuerySynthesisFailure(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{
		queryErr: errors.New("rate limited"),
		answer:   "Sorry, I could not reach the model.",
	}
	s := &mockStore{}
	p := newTestPipeline(t, testDeps{llm: llm, store: s})
	mem := NewMemory(RetainAll)

	resp, err := p.Run(context.Background(), mem, PipelineRequest{Question: "How many nodes?"})
	require.NoError(t, err)

	require.False(t, resp.Query.Found)
	require.False(t, resp.Outcome.OK)
	require.Contains(t, resp.Outcome.Message, "query synthesis failed")
	require.Contains(t, resp.Outcome.Message, "rate limited")
	require.Equal(t, 0, s.callCount())
	require.Equal(t, 2, mem.Len())
}

func TestPipeline_Run_NoIntentNoFigure(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{
		query:  []string{"SQLQuery:\nSELECT source, target FROM edges"},
		plot:   `nx.Draw(rows, "source", "target")`,
		answer: "There are three edges.",
	}
	eval := &mockEvaluator{fig: &sandbox.Figure{Kind: sandbox.KindGraph}}
	p := newTestPipeline(t, testDeps{llm: llm, store: &mockStore{result: edgesResult}, eval: eval})

	resp, err := p.Run(context.Background(), NewMemory(RetainAll), PipelineRequest{Question: "List all edges"})
	require.NoError(t, err)
	require.Empty(t, resp.Figures)
	require.Equal(t, "There are three edges.", resp.Answer)
	require.Equal(t, 0, eval.calls)
}

func TestPipeline_Run_BlankQuestion(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{}
	p := newTestPipeline(t, testDeps{llm: llm})
	mem := NewMemory(RetainAll)

	_, err := p.Run(context.Background(), mem, PipelineRequest{Question: "  \n"})
	require.ErrorIs(t, err, ErrEmptyQuestion)
	require.Equal(t, 0, mem.Len())
	require.Equal(t, 0, llm.callCount("query"))

	_, err = p.Run(context.Background(), nil, PipelineRequest{Question: "q"})
	require.Error(t, err)
}

func TestPipeline_Run_Retrieval(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("accepted answer short-circuits", func(t *testing.T) {
		t.Parallel()
		llm := &mockLLMClient{classify: "Yes, it answers the question."}
		idx := &mockDocumentIndex{answer: docindex.Answer{
			Text:    "The root node is called Ideas.",
			Sources: []string{"notes/root.md"},
		}}
		s := &mockStore{}
		p := newTestPipeline(t, testDeps{llm: llm, store: s, index: idx})
		mem := NewMemory(RetainAll)

		resp, err := p.Run(ctx, mem, PipelineRequest{Question: "What is the root node called?"})
		require.NoError(t, err)

		require.Equal(t, RouteRetrieval, resp.Route)
		require.Equal(t, "The root node is called Ideas.", resp.Answer)
		require.Equal(t, []string{"notes/root.md"}, resp.Sources)
		require.False(t, resp.Query.Found)
		require.Equal(t, 1, idx.calls)
		require.Equal(t, 1, llm.callCount("classify"))
		require.Equal(t, 0, llm.callCount("query"))
		require.Equal(t, 0, llm.callCount("plot"))
		require.Equal(t, 0, llm.callCount("answer"))
		require.Equal(t, 0, s.callCount())
		require.Equal(t, 2, mem.Len())
		require.Contains(t, llm.lastPrompt("classify"), "Answer: The root node is called Ideas.")
	})

	fallThrough := []struct {
		name string
		llm  *mockLLMClient
		idx  *mockDocumentIndex
	}{
		{
			name: "rejected answer",
			llm:  &mockLLMClient{classify: "No.", query: []string{"SQLQuery:\nSELECT COUNT(*) FROM nodes"}, answer: "5 nodes."},
			idx:  &mockDocumentIndex{answer: docindex.Answer{Text: "I don't know."}},
		},
		{
			name: "index error",
			llm:  &mockLLMClient{query: []string{"SQLQuery:\nSELECT COUNT(*) FROM nodes"}, answer: "5 nodes."},
			idx:  &mockDocumentIndex{err: docindex.ErrEmptyIndex},
		},
		{
			name: "empty candidate",
			llm:  &mockLLMClient{query: []string{"SQLQuery:\nSELECT COUNT(*) FROM nodes"}, answer: "5 nodes."},
			idx:  &mockDocumentIndex{answer: docindex.Answer{Text: "  "}},
		},
		{
			name: "classifier error",
			llm:  &mockLLMClient{classifyErr: errors.New("timeout"), query: []string{"SQLQuery:\nSELECT COUNT(*) FROM nodes"}, answer: "5 nodes."},
			idx:  &mockDocumentIndex{answer: docindex.Answer{Text: "Maybe five."}},
		},
	}
	for _, tc := range fallThrough {
		t.Run(tc.name+" falls through to query", func(t *testing.T) {
			t.Parallel()
			s := &mockStore{result: countResult}
			p := newTestPipeline(t, testDeps{llm: tc.llm, store: s, index: tc.idx})

			resp, err := p.Run(ctx, NewMemory(RetainAll), PipelineRequest{Question: "How many nodes?"})
			require.NoError(t, err)
			require.Equal(t, RouteQuery, resp.Route)
			require.Equal(t, "5 nodes.", resp.Answer)
			require.Empty(t, resp.Sources)
			require.Equal(t, 1, s.callCount())
			require.Equal(t, 1, tc.llm.callCount("query"))
		})
	}
}

func TestPipeline_RunWithProgress_Stages(t *testing.T) {
	t.Parallel()

	t.Run("query route", func(t *testing.T) {
		t.Parallel()
		llm := &mockLLMClient{query: []string{"SQLQuery:\nSELECT COUNT(*) FROM nodes"}, answer: "5"}
		p := newTestPipeline(t, testDeps{llm: llm, store: &mockStore{result: countResult}})

		var stages []Stage
		_, err := p.RunWithProgress(context.Background(), NewMemory(RetainAll), PipelineRequest{Question: "How many nodes?"}, func(pr Progress) {
			stages = append(stages, pr.Stage)
		})
		require.NoError(t, err)

		want := []Stage{
			StageStart,
			StageQuerySynthesized,
			StageExtracted,
			StageExecuted,
			StageVisualizationChecked,
			StageAnswerSynthesized,
			StageMemoryUpdated,
			StageDone,
		}
		if diff := cmp.Diff(want, stages); diff != "" {
			t.Errorf("stages mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("retrieval route", func(t *testing.T) {
		t.Parallel()
		llm := &mockLLMClient{classify: "yes"}
		idx := &mockDocumentIndex{answer: docindex.Answer{Text: "Ideas."}}
		p := newTestPipeline(t, testDeps{llm: llm, index: idx})

		var progress []Progress
		_, err := p.RunWithProgress(context.Background(), NewMemory(RetainAll), PipelineRequest{Question: "root?"}, func(pr Progress) {
			progress = append(progress, pr)
		})
		require.NoError(t, err)

		want := []Progress{
			{Stage: StageStart},
			{Stage: StageRetrievalAttempted, Route: RouteRetrieval},
			{Stage: StageClassified, Route: RouteRetrieval, Accepted: true},
			{Stage: StageMemoryUpdated, Route: RouteRetrieval},
			{Stage: StageDone, Route: RouteRetrieval},
		}
		if diff := cmp.Diff(want, progress); diff != "" {
			t.Errorf("progress mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestPipeline_Run_MemoryGrowsPerTurn(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{
		query:  []string{"SQLQuery:\nSELECT COUNT(*) FROM nodes", "SQLQuery:\nSELECT label FROM nodes"},
		answer: "ok",
	}
	deps := testDeps{llm: llm, store: &mockStore{result: countResult}}
	p := newTestPipeline(t, deps)
	mem := NewMemory(RetainAll)
	ctx := context.Background()

	_, err := p.Run(ctx, mem, PipelineRequest{Question: "How many nodes?"})
	require.NoError(t, err)
	require.Equal(t, 2, mem.Len())

	_, err = p.Run(ctx, mem, PipelineRequest{Question: "And their labels?"})
	require.NoError(t, err)
	require.Equal(t, 4, mem.Len())

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	want := []Turn{
		{Role: SpeakerUser, Text: "How many nodes?", At: at},
		{Role: SpeakerAssistant, Text: "ok", At: at},
		{Role: SpeakerUser, Text: "And their labels?", At: at},
		{Role: SpeakerAssistant, Text: "ok", At: at},
	}
	if diff := cmp.Diff(want, mem.Turns()); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}

	// The second query prompt carries the first exchange.
	require.Contains(t, llm.lastPrompt("query"), "User: How many nodes?\nAssistant: ok")
}

func TestPipeline_Run_SlidingWindow(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{query: []string{"SQLQuery:\nSELECT 1"}, answer: "ok"}
	p := newTestPipeline(t, testDeps{llm: llm, store: &mockStore{result: countResult}})
	mem := NewMemory(SlidingWindow(1))

	for _, q := range []string{"first", "second", "third"} {
		_, err := p.Run(context.Background(), mem, PipelineRequest{Question: q})
		require.NoError(t, err)
	}

	turns := mem.Turns()
	require.Len(t, turns, 2)
	require.Equal(t, "third", turns[0].Text)
}
