package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/malbeclabs/mindlake/agent/pkg/pipeline"
	"github.com/malbeclabs/mindlake/agent/pkg/sandbox"
)

type AskRequest struct {
	Question string `json:"question"`
}

type AskResponse struct {
	Answer     string            `json:"answer"`
	Route      pipeline.Route    `json:"route"`
	Query      string            `json:"query,omitempty"`
	Columns    []string          `json:"columns,omitempty"`
	Rows       []map[string]any  `json:"rows,omitempty"`
	Error      string            `json:"error,omitempty"`
	Figures    []*sandbox.Figure `json:"figures,omitempty"`
	Sources    []string          `json:"sources,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

func convertPipelineResponse(resp *pipeline.PipelineResponse) AskResponse {
	out := AskResponse{
		Answer:     resp.Answer,
		Route:      resp.Route,
		Query:      resp.Query.Text,
		Figures:    resp.Figures,
		Sources:    resp.Sources,
		DurationMs: resp.Duration.Milliseconds(),
	}
	if resp.Route == pipeline.RouteQuery {
		if resp.Outcome.OK {
			out.Columns = resp.Outcome.Columns
			out.Rows = make([]map[string]any, len(resp.Outcome.Rows))
			for i, row := range resp.Outcome.Rows {
				clean := make(map[string]any, len(row))
				for k, v := range row {
					clean[k] = sanitizeValue(v)
				}
				out.Rows[i] = clean
			}
		} else {
			out.Error = resp.Outcome.Message
		}
	}
	return out
}

// sanitizeValue replaces values JSON cannot encode.
func sanitizeValue(v any) any {
	switch val := v.(type) {
	case float64:
		if math.IsInf(val, 0) || math.IsNaN(val) {
			return nil
		}
	case float32:
		if math.IsInf(float64(val), 0) || math.IsNaN(float64(val)) {
			return nil
		}
	}
	return v
}

// decodeAsk reads the request body and claims the session. On success the
// caller must release the session.
func (s *Server) decodeAsk(w http.ResponseWriter, r *http.Request) (*pipeline.Session, AskRequest, bool) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return nil, AskRequest{}, false
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, AskRequest{}, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Question is required")
		return nil, AskRequest{}, false
	}

	if !sess.TryAcquire() {
		writeError(w, http.StatusConflict, "Session is busy answering another question")
		return nil, AskRequest{}, false
	}
	return sess, req, true
}

// runTurn runs a turn on the worker pool and waits for it.
func (s *Server) runTurn(ctx context.Context, sess *pipeline.Session, question string, onProgress pipeline.ProgressCallback) (*pipeline.PipelineResponse, error) {
	task := s.turns.SubmitErr(func() (*pipeline.PipelineResponse, error) {
		return s.cfg.Pipeline.RunWithProgress(ctx, sess.Memory, pipeline.PipelineRequest{Question: question}, onProgress)
	})
	return task.Wait()
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	sess, req, ok := s.decodeAsk(w, r)
	if !ok {
		return
	}
	defer sess.Release()

	resp, err := s.runTurn(r.Context(), sess, req.Question, nil)
	if err != nil {
		s.turnFailed(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, convertPipelineResponse(resp))
}

func (s *Server) turnFailed(w http.ResponseWriter, sess *pipeline.Session, err error) {
	if errors.Is(err, pipeline.ErrEmptyQuestion) {
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}
	s.log.Error("api: turn failed", "session", sess.ID, "error", err)
	writeError(w, http.StatusInternalServerError, "Failed to answer question")
}

// askStream answers with server-sent events: one "progress" event per stage
// followed by a "result" event, or an "error" event.
func (s *Server) askStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	sess, req, ok := s.decodeAsk(w, r)
	if !ok {
		return
	}
	defer sess.Release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sendEvent := func(eventType string, data any) {
		jsonData, err := json.Marshal(data)
		if err != nil {
			s.log.Error("api: failed to marshal SSE event data", "eventType", eventType, "error", err)
			errorData, _ := json.Marshal(errorResponse{Error: "Failed to serialize response"})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", errorData)
			flusher.Flush()
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData)
		flusher.Flush()
	}

	resp, err := s.runTurn(r.Context(), sess, req.Question, func(p pipeline.Progress) {
		sendEvent("progress", p)
	})
	if err != nil {
		s.log.Error("api: streamed turn failed", "session", sess.ID, "error", err)
		sendEvent("error", errorResponse{Error: "Failed to answer question"})
		return
	}
	sendEvent("result", convertPipelineResponse(resp))
}
