package session

import (
	"fmt"
	"sync"
)

// Manager owns a set of sessions keyed by id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Add registers a session the caller already constructed.
func (m *Manager) Add(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("manager is closed")
	}
	m.sessions[s.ID] = s
	return nil
}

// Spawn creates a shell-backed session and registers it. The session is
// removed (and closed) automatically when its shell exits.
func (m *Manager) Spawn(opts Options) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("manager is closed")
	}
	m.mu.Unlock()

	userOnExit := opts.OnExit
	opts.OnExit = func(id string) {
		m.CloseSession(id)
		if userOnExit != nil {
			userOnExit(id)
		}
	}

	s, err := NewShell(opts)
	if err != nil {
		return nil, err
	}
	if err := m.Add(s); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Get looks a session up by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseSession closes and removes one session. Unknown ids are a no-op so
// the exit callback and an explicit close can race safely.
func (m *Manager) CloseSession(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		_ = s.Close()
	}
}

// CloseAll closes every session and rejects future registrations.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
