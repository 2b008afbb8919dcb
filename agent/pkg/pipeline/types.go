package pipeline

import (
	"context"
	"time"

	"github.com/malbeclabs/mindlake/agent/pkg/sandbox"
	"github.com/malbeclabs/mindlake/pkg/docindex"
	"github.com/malbeclabs/mindlake/pkg/store"
)

// LLMClient is the interface for interacting with an LLM.
type LLMClient interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Store executes read queries.
type Store interface {
	Execute(ctx context.Context, query string) (store.Result, error)
}

// DocumentIndex answers questions from indexed documents.
type DocumentIndex interface {
	Answer(ctx context.Context, question string) (docindex.Answer, error)
}

// Evaluator runs generated chart programs.
type Evaluator interface {
	Evaluate(ctx context.Context, code string, rows []map[string]any, question string) (*sandbox.Figure, error)
}

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is a single utterance in the conversation.
type Turn struct {
	Role Speaker   `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Record is a single result row keyed by column name.
type Record = store.Record

type PipelineRequest struct {
	Question string `json:"question"`
}

// SynthesisResult is the raw oracle output of query synthesis.
type SynthesisResult struct {
	RawText string
}

// Extraction is the candidate query pulled out of a SynthesisResult.
type Extraction struct {
	Text  string `json:"text,omitempty"`
	Found bool   `json:"found"`
}

func Found(text string) Extraction {
	return Extraction{Text: text, Found: true}
}

func NotFound() Extraction {
	return Extraction{}
}

// ExecutionOutcome is either Ok with rows or Error with a message.
type ExecutionOutcome struct {
	OK      bool     `json:"ok"`
	Columns []string `json:"columns,omitempty"`
	Rows    []Record `json:"rows,omitempty"`
	Message string   `json:"error,omitempty"`
}

func OkOutcome(columns []string, rows []Record) ExecutionOutcome {
	if rows == nil {
		rows = []Record{}
	}
	return ExecutionOutcome{OK: true, Columns: columns, Rows: rows}
}

func ErrorOutcome(message string) ExecutionOutcome {
	return ExecutionOutcome{Message: message}
}

// Route records which tier produced the answer.
type Route string

const (
	RouteRetrieval Route = "retrieval"
	RouteQuery     Route = "query"
)

// PipelineResponse is the result of a single turn.
type PipelineResponse struct {
	Answer   string            `json:"answer"`
	Query    Extraction        `json:"query"`
	Figures  []*sandbox.Figure `json:"figures"`
	Route    Route             `json:"route"`
	Sources  []string          `json:"sources,omitempty"`
	Outcome  ExecutionOutcome  `json:"outcome"`
	Duration time.Duration     `json:"duration"`
}

// Stage is a state of a turn.
type Stage string

const (
	StageStart                Stage = "start"
	StageRetrievalAttempted   Stage = "retrieval_attempted"
	StageClassified           Stage = "classified"
	StageQuerySynthesized     Stage = "query_synthesized"
	StageExtracted            Stage = "extracted"
	StageExecuted             Stage = "executed"
	StageVisualizationChecked Stage = "visualization_checked"
	StageAnswerSynthesized    Stage = "answer_synthesized"
	StageMemoryUpdated        Stage = "memory_updated"
	StageDone                 Stage = "done"
)

// Progress reports a stage transition.
type Progress struct {
	Stage    Stage  `json:"stage"`
	Route    Route  `json:"route,omitempty"`
	Accepted bool   `json:"accepted,omitempty"` // Set after classifying
	Query    string `json:"query,omitempty"`    // Set after extraction
	Rows     int    `json:"rows,omitempty"`     // Set after execution
	Figures  int    `json:"figures,omitempty"`  // Set after visualization
	Error    string `json:"error,omitempty"`
}

// ProgressCallback is called at each stage of a turn.
type ProgressCallback func(Progress)
