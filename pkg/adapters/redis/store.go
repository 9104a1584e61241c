package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/attest/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "attest:audit:"

// farFuture is the index score of sessions without expiration (2100-01-01).
const farFuture = 4102444800

// Store implements ports.AuditStore using Redis.
// Each session is a LIST of JSON records plus a summary STRING; a ZSET indexes session ids.
// Durability across a Redis crash depends on the server's AOF fsync policy.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration for sessions.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client, e.g. to build a Locker on the same connection.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) logKey(sessionID string) string     { return s.prefix + sessionID + ":log" }
func (s *Store) summaryKey(sessionID string) string { return s.prefix + sessionID + ":summary" }
func (s *Store) indexKey() string                   { return s.prefix + "index" }

func (s *Store) score() float64 {
	if s.ttl == 0 {
		return farFuture
	}
	return float64(time.Now().Add(s.ttl).Unix())
}

// Append pushes the record and refreshes the index in one transaction.
func (s *Store) Append(ctx context.Context, sessionID string, record domain.StepRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe := s.client.TxPipeline()

	// 1. Append to the session log
	pipe.RPush(ctx, s.logKey(sessionID), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.logKey(sessionID), s.ttl)
	}

	// 2. Add to Index (ZSET)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  s.score(),
		Member: sessionID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to redis: %w", err)
	}
	return nil
}

// ReadAll returns the session's records in append order.
func (s *Store) ReadAll(ctx context.Context, sessionID string) ([]domain.StepRecord, error) {
	vals, err := s.client.LRange(ctx, s.logKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read from redis: %w", err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	records := make([]domain.StepRecord, len(vals))
	for i, v := range vals {
		if err := json.Unmarshal([]byte(v), &records[i]); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %d: %w", i+1, err)
		}
	}
	return records, nil
}

// WriteSummary stores the summary object.
func (s *Store) WriteSummary(ctx context.Context, sessionID string, summary domain.SessionSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := s.client.Set(ctx, s.summaryKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write summary to redis: %w", err)
	}
	return nil
}

// ReadSummary loads the summary object.
func (s *Store) ReadSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error) {
	val, err := s.client.Get(ctx, s.summaryKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get summary from redis: %w", err)
	}

	var summary domain.SessionSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &summary, nil
}

// List returns indexed session ids, pruning expired entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
