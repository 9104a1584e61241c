package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/aretw0/attest/pkg/domain"
)

// Store implements ports.AuditStore in memory.
// Safe for concurrent use. Records are copied on write and on read.
type Store struct {
	mu        sync.RWMutex
	records   map[string][]domain.StepRecord
	summaries map[string]domain.SessionSummary
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		records:   make(map[string][]domain.StepRecord),
		summaries: make(map[string]domain.SessionSummary),
	}
}

// Append stores a copy of the record.
func (s *Store) Append(ctx context.Context, sessionID string, record domain.StepRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record = copyRecord(record)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[sessionID] = append(s.records[sessionID], record)
	return nil
}

// ReadAll returns copies of the session's records.
func (s *Store) ReadAll(ctx context.Context, sessionID string) ([]domain.StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, ok := s.records[sessionID]
	if !ok || len(recs) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	out := make([]domain.StepRecord, len(recs))
	for i, r := range recs {
		out[i] = copyRecord(r)
	}
	return out, nil
}

// WriteSummary stores the summary.
func (s *Store) WriteSummary(ctx context.Context, sessionID string, summary domain.SessionSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	summary.FinalResult = copyMap(summary.FinalResult)
	summary.Steps = append([]domain.StepSummary(nil), summary.Steps...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sessionID] = summary
	return nil
}

// ReadSummary returns a copy of the stored summary.
func (s *Store) ReadSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	summary.FinalResult = copyMap(summary.FinalResult)
	summary.Steps = append([]domain.StepSummary(nil), summary.Steps...)
	return &summary, nil
}

// List returns the ids of sessions with records, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func copyRecord(r domain.StepRecord) domain.StepRecord {
	r.Input = copyMap(r.Input)
	r.Output = copyMap(r.Output)
	return r
}

// copyMap deep-copies a JSON-shaped map.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}
