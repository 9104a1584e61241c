package ports

import (
	"context"

	"github.com/aretw0/attest/pkg/domain"
)

// AuditStore persists audit sessions. Records are line-delimited and keyed by
// session id; each ended session also has one summary object.
type AuditStore interface {
	// Append durably writes one record to the end of the session's log.
	// It must not return before the record would survive a process crash.
	Append(ctx context.Context, sessionID string, record domain.StepRecord) error

	// ReadAll returns the session's records in append order.
	// Returns domain.ErrSessionNotFound if the session has no records.
	ReadAll(ctx context.Context, sessionID string) ([]domain.StepRecord, error)

	// WriteSummary stores the session summary, replacing any previous one.
	WriteSummary(ctx context.Context, sessionID string, summary domain.SessionSummary) error

	// ReadSummary returns the session summary.
	// Returns domain.ErrSessionNotFound if none was written.
	ReadSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error)

	// List returns the ids of all sessions with at least one record.
	List(ctx context.Context) ([]string, error)
}
