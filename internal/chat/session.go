package chat

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/adgm-assist/backend/internal/metrics"
)

var ErrSessionNotFound = errors.New("session not found")

// Turn is one completed user/assistant exchange.
type Turn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Session holds one conversation's state. History is append-only within
// the session and discarded when the session ends.
type Session struct {
	ID    string `json:"id"`
	Turns []Turn `json:"turns"`
}

// Manager owns session lifecycle. All state is explicit here; nothing
// hangs off package globals.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

func (m *Manager) Create() *Session {
	s := &Session{ID: uuid.New().String()}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Append records a completed turn. Turns are only ever appended after
// the reply is fully generated, so a failed generation leaves no trace
// in the history.
func (m *Manager) Append(id string, turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Turns = append(s.Turns, turn)
	return nil
}

// History returns a copy of the session's turns.
func (m *Manager) History(id string) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	turns := make([]Turn, len(s.Turns))
	copy(turns, s.Turns)
	return turns, nil
}

func (m *Manager) End(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	metrics.ActiveSessions.Dec()
	return nil
}
