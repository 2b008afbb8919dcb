package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/mindlake/agent/pkg/pipeline"
	"github.com/malbeclabs/mindlake/api/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: metrics.Subsystem,
		Name:      "sessions_active",
		Help:      "Number of live conversation sessions",
	})

	sessionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: metrics.Subsystem,
		Name:      "sessions_expired_total",
		Help:      "Total number of sessions discarded after going idle",
	})
)

// sessionRegistry holds live sessions. A session expires after going idle for
// the TTL; every lookup extends it.
type sessionRegistry struct {
	cache  *ttlcache.Cache[string, *pipeline.Session]
	policy pipeline.RetentionPolicy
	clock  clockwork.Clock
}

func newSessionRegistry(ttl time.Duration, policy pipeline.RetentionPolicy, clock clockwork.Clock) *sessionRegistry {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *pipeline.Session](ttl),
	)
	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, _ *ttlcache.Item[string, *pipeline.Session]) {
		sessionsActive.Dec()
		if reason == ttlcache.EvictionReasonExpired {
			sessionsExpiredTotal.Inc()
		}
	})
	go cache.Start()

	return &sessionRegistry{cache: cache, policy: policy, clock: clock}
}

func (r *sessionRegistry) create() *pipeline.Session {
	sess := pipeline.NewSession(uuid.NewString(), r.clock.Now(), r.policy)
	r.cache.Set(sess.ID, sess, ttlcache.DefaultTTL)
	sessionsActive.Inc()
	return sess
}

func (r *sessionRegistry) get(id string) (*pipeline.Session, bool) {
	item := r.cache.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// remove ends a session, discarding its memory.
func (r *sessionRegistry) remove(id string) bool {
	if !r.cache.Has(id) {
		return false
	}
	r.cache.Delete(id)
	return true
}

func (r *sessionRegistry) len() int {
	return r.cache.Len()
}

func (r *sessionRegistry) close() {
	r.cache.Stop()
}

type SessionResponse struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Busy      bool            `json:"busy"`
	Turns     []pipeline.Turn `json:"turns"`
}

func sessionResponse(sess *pipeline.Session) SessionResponse {
	turns := sess.Memory.Turns()
	if turns == nil {
		turns = []pipeline.Turn{}
	}
	return SessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		Busy:      sess.Busy(),
		Turns:     turns,
	}
}

func (s *Server) createSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.create()
	s.log.Info("api: session created", "session", sess.ID)
	writeJSON(w, http.StatusCreated, sessionResponse(sess))
}

// lookupSession resolves the {id} URL parameter, writing the error response
// itself when the session cannot be used.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*pipeline.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID")
		return nil, false
	}
	sess, ok := s.sessions.get(id.String())
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}
	if !s.sessions.remove(id.String()) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	s.log.Info("api: session ended", "session", id)
	w.WriteHeader(http.StatusNoContent)
}
