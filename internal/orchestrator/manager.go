package orchestrator

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kidvoice-labs/safegate/internal/models"
)

// Manager owns the registry of live sessions. Sessions are fully independent
// of each other and run in parallel; the manager only guards the registry map.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	deps     Dependencies
}

// NewManager creates a manager whose sessions share the given dependencies.
func NewManager(deps Dependencies) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		deps:     deps,
	}
}

// CreateSession starts a new session and returns it. The sink, when set,
// overrides the manager-wide sink for this session (the gateway uses this to
// route timer-driven packages to the right client connection).
func (m *Manager) CreateSession(sink func(models.UIPackage)) *Session {
	deps := m.deps
	if sink != nil {
		deps.Sink = sink
	}
	id := uuid.NewString()
	session := NewSession(id, deps)

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	slog.Info("Manager.CreateSession: session started", "sessionID", id)
	return session
}

// Get returns the session for an ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrUnknownSession
	}
	return session, nil
}

// EndSession closes a session and removes it from the registry.
func (m *Manager) EndSession(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return models.ErrUnknownSession
	}
	session.End()
	slog.Info("Manager.EndSession: session ended", "sessionID", id)
	return nil
}

// Shutdown ends every live session, cancelling all timers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.End()
	}
	slog.Info("Manager.Shutdown: all sessions ended", "count", len(sessions))
}
