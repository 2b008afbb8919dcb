package pipeline

import (
	"strings"
	"sync"
)

// RetentionPolicy bounds how many turns a Memory keeps. Window is the number
// of question/answer pairs retained; zero keeps everything.
type RetentionPolicy struct {
	Window int
}

// RetainAll keeps every turn for the lifetime of the session.
var RetainAll = RetentionPolicy{}

// SlidingWindow keeps the last n question/answer pairs.
func SlidingWindow(n int) RetentionPolicy {
	if n < 0 {
		n = 0
	}
	return RetentionPolicy{Window: n}
}

// Memory is the ordered conversation history of a session.
type Memory struct {
	policy RetentionPolicy

	mu    sync.RWMutex
	turns []Turn
}

func NewMemory(policy RetentionPolicy) *Memory {
	return &Memory{policy: policy}
}

// Append adds a turn, evicting the oldest turns beyond the retention window.
func (m *Memory) Append(t Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, t)
	if m.policy.Window > 0 {
		if limit := 2 * m.policy.Window; len(m.turns) > limit {
			m.turns = append([]Turn(nil), m.turns[len(m.turns)-limit:]...)
		}
	}
}

// Turns returns a copy of the retained turns in insertion order.
func (m *Memory) Turns() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Turn(nil), m.turns...)
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Render formats the retained turns for inclusion in a prompt.
func (m *Memory) Render() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sb strings.Builder
	for _, t := range m.turns {
		switch t.Role {
		case SpeakerUser:
			sb.WriteString("User: ")
		default:
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(t.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
