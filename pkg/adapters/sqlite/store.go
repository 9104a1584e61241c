// Package sqlite provides an AuditStore backed by an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/attest/pkg/domain"
	_ "modernc.org/sqlite"
)

// Store is an append-only SQLite audit store. All public methods are safe
// for concurrent use; a single connection serializes writes.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path. The schema is created
// automatically on first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = FULL`,
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS audit_records (
			session_id TEXT    NOT NULL,
			sequence   INTEGER NOT NULL,
			step       TEXT    NOT NULL,
			payload    TEXT    NOT NULL,
			created_at TEXT    NOT NULL,
			PRIMARY KEY (session_id, sequence)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_summaries (
			session_id TEXT PRIMARY KEY,
			ended_at   TEXT NOT NULL,
			payload    TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append inserts one record. Re-using a sequence number fails.
func (s *Store) Append(ctx context.Context, sessionID string, record domain.StepRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_records (session_id, sequence, step, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, record.Sequence, record.Step, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ReadAll returns the session's records ordered by sequence.
func (s *Store) ReadAll(ctx context.Context, sessionID string) ([]domain.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM audit_records WHERE session_id = ? ORDER BY sequence`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.StepRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		var rec domain.StepRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return records, nil
}

// WriteSummary upserts the session summary.
func (s *Store) WriteSummary(ctx context.Context, sessionID string, summary domain.SessionSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_summaries (session_id, ended_at, payload) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET ended_at = excluded.ended_at, payload = excluded.payload`,
		sessionID, summary.EndedAt.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("upsert audit summary: %w", err)
	}
	return nil
}

// ReadSummary loads the session summary.
func (s *Store) ReadSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM audit_summaries WHERE session_id = ?`, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query audit summary: %w", err)
	}

	var summary domain.SessionSummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return nil, fmt.Errorf("decode audit summary: %w", err)
	}
	return &summary, nil
}

// List returns the ids of all sessions with records, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT session_id FROM audit_records ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
