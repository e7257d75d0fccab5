// Package store provides storage backends for the session event log.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "embed"

	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists the session event log in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgreSQL migrations failed", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("PostgresStore ready")
	return &PostgresStore{db: db}, nil
}

// AddSessionEvent appends one record to the log.
func (s *PostgresStore) AddSessionEvent(rec SessionEventRecord) error {
	signals, err := json.Marshal(rec.Signals)
	if err != nil {
		return fmt.Errorf("failed to encode signals: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO session_events
		 (session_id, event_type, response, correct, level, signals, speech_text, fallback, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.SessionID, string(rec.EventType), rec.Response, rec.Correct,
		rec.Level.String(), string(signals), rec.SpeechText, rec.Fallback, rec.RecordedAt,
	)
	if err != nil {
		slog.Error("PostgresStore AddSessionEvent failed", "error", err, "sessionID", rec.SessionID)
		return err
	}
	return nil
}

// ListSessionEvents returns the log for one session in insertion order.
func (s *PostgresStore) ListSessionEvents(sessionID string) ([]SessionEventRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, event_type, response, correct, level, signals, speech_text, fallback, recorded_at
		 FROM session_events WHERE session_id = $1 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		slog.Error("PostgresStore ListSessionEvents query failed", "error", err, "sessionID", sessionID)
		return nil, err
	}
	defer rows.Close()

	return scanSessionEvents(rows)
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
