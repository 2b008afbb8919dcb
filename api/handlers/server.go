// Package handlers serves the conversational API over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/mindlake/agent/pkg/pipeline"
	"github.com/malbeclabs/mindlake/api/metrics"
)

const (
	defaultSessionTTL         = 30 * time.Minute
	defaultMaxConcurrentTurns = 8
)

// Runner answers a question within a session's memory.
type Runner interface {
	RunWithProgress(ctx context.Context, mem *pipeline.Memory, req pipeline.PipelineRequest, onProgress pipeline.ProgressCallback) (*pipeline.PipelineResponse, error)
}

type Config struct {
	Logger   *slog.Logger
	Pipeline Runner
	Clock    clockwork.Clock

	SessionTTL         time.Duration
	MemoryPolicy       pipeline.RetentionPolicy
	MaxConcurrentTurns int
	AllowedOrigins     []string
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Pipeline == nil {
		return errors.New("pipeline is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.MaxConcurrentTurns <= 0 {
		c.MaxConcurrentTurns = defaultMaxConcurrentTurns
	}
	return nil
}

// Server owns the session registry and the pool that bounds concurrent turns.
type Server struct {
	cfg      Config
	log      *slog.Logger
	sessions *sessionRegistry
	turns    pond.ResultPool[*pipeline.PipelineResponse]
	router   chi.Router
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: newSessionRegistry(cfg.SessionTTL, cfg.MemoryPolicy, cfg.Clock),
		turns:    pond.NewResultPool[*pipeline.PipelineResponse](cfg.MaxConcurrentTurns),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.health)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/ask", s.ask)
			r.Post("/ask/stream", s.askStream)
		})
	})

	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close waits for running turns and stops the session registry.
func (s *Server) Close() {
	s.turns.StopAndWait()
	s.sessions.close()
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.len(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v before writing the header so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("server: failed to encode response", "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: "Failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
