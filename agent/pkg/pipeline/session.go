package pipeline

import (
	"sync/atomic"
	"time"
)

// Session is one conversation: an id, its memory and a busy flag that allows
// a single turn at a time.
type Session struct {
	ID        string
	CreatedAt time.Time
	Memory    *Memory

	busy atomic.Bool
}

func NewSession(id string, createdAt time.Time, policy RetentionPolicy) *Session {
	return &Session{
		ID:        id,
		CreatedAt: createdAt,
		Memory:    NewMemory(policy),
	}
}

// TryAcquire marks the session busy. It returns false if a turn is already
// running.
func (s *Session) TryAcquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

// Release clears the busy flag.
func (s *Session) Release() {
	s.busy.Store(false)
}

func (s *Session) Busy() bool {
	return s.busy.Load()
}
