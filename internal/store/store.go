// Package store provides storage backends for the session event log.
//
// Every processed event is recorded so a therapist can review a session
// afterwards. An in-memory store backs tests and ephemeral deployments;
// SQLite and PostgreSQL backends provide persistence.
package store

import (
	"sync"
	"time"

	"github.com/kidvoice-labs/safegate/internal/models"
)

// SessionEventRecord is one row of the session review log.
type SessionEventRecord struct {
	ID         int64            `json:"id"`
	SessionID  string           `json:"session_id"`
	EventType  models.EventType `json:"event_type"`
	Response   string           `json:"response,omitempty"`
	Correct    bool             `json:"correct"`
	Level      models.Level     `json:"level"`
	Signals    []models.Signal  `json:"signals,omitempty"`
	SpeechText string           `json:"speech_text"`
	Fallback   bool             `json:"fallback"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// Store is the session event log interface shared by all backends.
type Store interface {
	// AddSessionEvent appends one processed event to the log.
	AddSessionEvent(rec SessionEventRecord) error
	// ListSessionEvents returns the log for one session in insertion order.
	ListSessionEvents(sessionID string) ([]SessionEventRecord, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the data source name (file path for SQLite, connection URL
// for PostgreSQL).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore is a thread-safe in-memory session event log.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	events map[string][]SessionEventRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]SessionEventRecord)}
}

// AddSessionEvent appends one record to the session's log.
func (s *InMemoryStore) AddSessionEvent(rec SessionEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.events[rec.SessionID] = append(s.events[rec.SessionID], rec)
	return nil
}

// ListSessionEvents returns a copy of the session's log in insertion order.
func (s *InMemoryStore) ListSessionEvents(sessionID string) ([]SessionEventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.events[sessionID]
	out := make([]SessionEventRecord, len(records))
	copy(out, records)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
