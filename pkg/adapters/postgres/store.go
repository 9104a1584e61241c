// Package postgres provides an AuditStore backed by PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/attest/pkg/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	session_id TEXT        NOT NULL,
	sequence   INTEGER     NOT NULL,
	step       TEXT        NOT NULL,
	payload    JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (session_id, sequence)
);
CREATE TABLE IF NOT EXISTS audit_summaries (
	session_id TEXT PRIMARY KEY,
	ended_at   TIMESTAMPTZ NOT NULL,
	payload    JSONB       NOT NULL
);`

// Store implements ports.AuditStore on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies the connection and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Append inserts one record. The insert commits before returning.
func (s *Store) Append(ctx context.Context, sessionID string, record domain.StepRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_records (session_id, sequence, step, payload) VALUES ($1, $2, $3, $4)`,
		sessionID, record.Sequence, record.Step, payload)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ReadAll returns the session's records ordered by sequence.
func (s *Store) ReadAll(ctx context.Context, sessionID string) ([]domain.StepRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM audit_records WHERE session_id = $1 ORDER BY sequence`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.StepRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		var rec domain.StepRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_summaries (session_id, ended_at, payload) VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET ended_at = EXCLUDED.ended_at, payload = EXCLUDED.payload`,
		sessionID, summary.EndedAt, payload)
	if err != nil {
		return fmt.Errorf("upsert audit summary: %w", err)
	}
	return nil
}

// ReadSummary loads the session summary.
func (s *Store) ReadSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM audit_summaries WHERE session_id = $1`, sessionID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query audit summary: %w", err)
	}

	var summary domain.SessionSummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return nil, fmt.Errorf("decode audit summary: %w", err)
	}
	return &summary, nil
}

// List returns the ids of all sessions with records, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT session_id FROM audit_records ORDER BY session_id`)
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
