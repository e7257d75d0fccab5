// Package store provides storage backends for the session event log.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kidvoice-labs/safegate/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists the session event log in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file path).
// The parent directory is created if it does not exist.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLite migrations failed", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("SQLiteStore ready", "dsn", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

// AddSessionEvent appends one record to the log.
func (s *SQLiteStore) AddSessionEvent(rec SessionEventRecord) error {
	signals, err := json.Marshal(rec.Signals)
	if err != nil {
		return fmt.Errorf("failed to encode signals: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO session_events
		 (session_id, event_type, response, correct, level, signals, speech_text, fallback, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, string(rec.EventType), rec.Response, rec.Correct,
		rec.Level.String(), string(signals), rec.SpeechText, rec.Fallback, rec.RecordedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore AddSessionEvent failed", "error", err, "sessionID", rec.SessionID)
		return err
	}
	return nil
}

// ListSessionEvents returns the log for one session in insertion order.
func (s *SQLiteStore) ListSessionEvents(sessionID string) ([]SessionEventRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, event_type, response, correct, level, signals, speech_text, fallback, recorded_at
		 FROM session_events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		slog.Error("SQLiteStore ListSessionEvents query failed", "error", err, "sessionID", sessionID)
		return nil, err
	}
	defer rows.Close()

	return scanSessionEvents(rows)
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanSessionEvents decodes rows shared by the SQLite and Postgres backends.
func scanSessionEvents(rows *sql.Rows) ([]SessionEventRecord, error) {
	var records []SessionEventRecord
	for rows.Next() {
		var rec SessionEventRecord
		var eventType, level, signals string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &eventType, &rec.Response,
			&rec.Correct, &level, &signals, &rec.SpeechText, &rec.Fallback, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}
		rec.EventType = models.EventType(eventType)
		parsed, err := models.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		rec.Level = parsed
		if err := json.Unmarshal([]byte(signals), &rec.Signals); err != nil {
			return nil, fmt.Errorf("failed to decode signals: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
