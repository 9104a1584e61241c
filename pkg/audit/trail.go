package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/attest/internal/logging"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/ports"
	"github.com/google/uuid"
)

// Reserved step tags.
const (
	StepSessionStart = "session_start"
	StepSessionEnd   = "session_end"
)

// DefaultWriteTimeout bounds each durable store call.
const DefaultWriteTimeout = 5 * time.Second

// Entry is the caller's description of one step. A step succeeds unless
// Failed is set or Err is non-nil.
type Entry struct {
	Step   string
	Action string
	Agent  string
	Tool   string
	Input  map[string]any
	Output map[string]any
	Failed bool
	Err    error
}

// Recorder appends steps to the currently open session.
type Recorder interface {
	Append(ctx context.Context, e Entry) (domain.StepRecord, error)
}

// Trail is a session-scoped, append-only audit log.
// A Trail is safe for concurrent use but holds at most one open session.
type Trail struct {
	store        ports.AuditStore
	sanitizer    *Sanitizer
	locks        *Locks
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
	writeTimeout time.Duration
	observe      func(time.Duration, error)

	mu      sync.Mutex
	session *domain.Session
}

// Option configures a Trail.
type Option func(*Trail)

// WithSanitizer replaces the default sanitization policy.
func WithSanitizer(s *Sanitizer) Option {
	return func(t *Trail) {
		t.sanitizer = s
	}
}

// WithLocks shares a lock table between trails writing to the same store.
func WithLocks(l *Locks) Option {
	return func(t *Trail) {
		t.locks = l
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) {
		t.logger = logger
	}
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) {
		t.now = now
	}
}

// WithIDGenerator overrides session id generation for StartSession("").
func WithIDGenerator(fn func() string) Option {
	return func(t *Trail) {
		t.newID = fn
	}
}

// WithWriteTimeout bounds each store call. Non-positive disables the bound.
func WithWriteTimeout(d time.Duration) Option {
	return func(t *Trail) {
		t.writeTimeout = d
	}
}

// WithAppendObserver receives the latency and result of every durable write.
func WithAppendObserver(fn func(time.Duration, error)) Option {
	return func(t *Trail) {
		t.observe = fn
	}
}

// NewTrail creates a Trail writing to store.
func NewTrail(store ports.AuditStore, opts ...Option) *Trail {
	t := &Trail{
		store:        store,
		sanitizer:    NewSanitizer(),
		logger:       logging.NewNop(),
		now:          time.Now,
		newID:        uuid.NewString,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.locks == nil {
		t.locks = NewLocks(WithLocksLogger(t.logger))
	}
	return t
}

// SessionID returns the id of the open session, or "" if none is open.
func (t *Trail) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil || t.session.Ended {
		return ""
	}
	return t.session.ID
}

// StartSession opens a session and records its session_start marker.
// An empty id is replaced by a generated one. It fails if a session is
// already open or if id already has a durable log.
func (t *Trail) StartSession(ctx context.Context, id string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil && !t.session.Ended {
		return "", &domain.InvalidStateError{Op: "start session", SessionID: t.session.ID, Err: domain.ErrSessionOpen}
	}
	if id == "" {
		id = t.newID()
	}
	if err := domain.ValidateSessionID(id); err != nil {
		return "", &domain.InvalidStateError{Op: "start session", Err: err}
	}

	s := &domain.Session{ID: id, StartedAt: t.now().UTC()}
	rec := t.build(s, Entry{
		Step:   StepSessionStart,
		Action: "Audit session started",
		Input:  map[string]any{"session_id": id},
	})

	err := t.locks.WithLock(ctx, id, func(ctx context.Context) error {
		// 1. Identifiers are sealed forever once they have a log.
		rctx, cancel := t.bound(ctx)
		_, err := t.store.ReadAll(rctx, id)
		cancel()
		switch {
		case err == nil:
			return &domain.InvalidStateError{Op: "start session", SessionID: id, Err: domain.ErrSessionExists}
		case errors.Is(err, domain.ErrInvalidID):
			return &domain.InvalidStateError{Op: "start session", SessionID: id, Err: err}
		case !errors.Is(err, domain.ErrSessionNotFound):
			return &domain.DurabilityError{SessionID: id, Step: rec.Step, Err: err}
		}

		// 2. Persist the marker.
		return t.write(ctx, s.ID, rec)
	})
	if err != nil {
		return "", err
	}

	s.Counter = 1
	s.Records = append(s.Records, rec)
	t.session = s

	t.logger.Debug("Audit session started", "session_id", id)
	return id, nil
}

// Append records one step in the open session and returns it once it is durable.
// A *domain.DurabilityError leaves the step counter untouched.
func (t *Trail) Append(ctx context.Context, e Entry) (domain.StepRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.open("append")
	if err != nil {
		return domain.StepRecord{}, err
	}
	return t.appendLocked(ctx, s, e)
}

// EndSession records the closing marker, writes the session summary and
// seals the session. It returns the full ordered record list.
func (t *Trail) EndSession(ctx context.Context, success bool, final map[string]any) ([]domain.StepRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.open("end session")
	if err != nil {
		return nil, err
	}

	if _, err := t.appendLocked(ctx, s, Entry{
		Step:   StepSessionEnd,
		Action: "Audit session ended",
		Input:  map[string]any{"success": success, "total_steps": s.Counter + 1},
		Output: final,
	}); err != nil {
		return nil, err
	}
	s.Ended = true

	summary := domain.Summarize(s, t.now().UTC(), success, t.sanitizer.Map(final))
	err = t.locks.WithLock(ctx, s.ID, func(ctx context.Context) error {
		wctx, cancel := t.bound(ctx)
		defer cancel()
		return t.store.WriteSummary(wctx, s.ID, summary)
	})

	records := make([]domain.StepRecord, len(s.Records))
	copy(records, s.Records)

	if err != nil {
		t.logger.Error("Failed to write audit summary", "session_id", s.ID, "err", err)
		return records, &domain.DurabilityError{SessionID: s.ID, Step: "summary", Err: err}
	}

	t.logger.Debug("Audit session ended", "session_id", s.ID, "steps", len(records), "success", success)
	return records, nil
}

// LoadSession replays a durable session from the store.
func (t *Trail) LoadSession(ctx context.Context, id string) ([]domain.StepRecord, error) {
	rctx, cancel := t.bound(ctx)
	defer cancel()
	return t.store.ReadAll(rctx, id)
}

func (t *Trail) open(op string) (*domain.Session, error) {
	switch {
	case t.session == nil:
		return nil, &domain.InvalidStateError{Op: op, Err: domain.ErrNoSession}
	case t.session.Ended:
		return nil, &domain.InvalidStateError{Op: op, SessionID: t.session.ID, Err: domain.ErrSessionSealed}
	}
	return t.session, nil
}

func (t *Trail) appendLocked(ctx context.Context, s *domain.Session, e Entry) (domain.StepRecord, error) {
	rec := t.build(s, e)

	err := t.locks.WithLock(ctx, s.ID, func(ctx context.Context) error {
		return t.write(ctx, s.ID, rec)
	})
	if err != nil {
		var derr *domain.DurabilityError
		if !errors.As(err, &derr) {
			err = &domain.DurabilityError{SessionID: s.ID, Step: rec.Step, Err: err}
		}
		return domain.StepRecord{}, err
	}

	s.Counter = rec.Sequence
	s.Records = append(s.Records, rec)
	return rec, nil
}

func (t *Trail) build(s *domain.Session, e Entry) domain.StepRecord {
	seq := s.Counter + 1
	rec := domain.StepRecord{
		Sequence:  seq,
		Step:      domain.StepKey(seq, e.Step),
		Tag:       e.Step,
		Timestamp: t.now().UTC(),
		Action:    t.sanitizer.String(e.Action),
		Agent:     e.Agent,
		Tool:      e.Tool,
		Input:     t.sanitizer.Map(e.Input),
		Output:    t.sanitizer.Map(e.Output),
		Success:   !e.Failed && e.Err == nil,
	}
	if e.Err != nil {
		rec.Error = t.sanitizer.String(e.Err.Error())
	}
	return rec
}

// write persists rec and converts failures into a *domain.DurabilityError.
func (t *Trail) write(ctx context.Context, sessionID string, rec domain.StepRecord) error {
	wctx, cancel := t.bound(ctx)
	defer cancel()

	start := time.Now()
	err := t.store.Append(wctx, sessionID, rec)
	if t.observe != nil {
		t.observe(time.Since(start), err)
	}
	if err != nil {
		t.logger.Error("Audit append failed", "session_id", sessionID, "step", rec.Step, "err", err)
		return &domain.DurabilityError{SessionID: sessionID, Step: rec.Step, Err: err}
	}
	return nil
}

// bound applies the write timeout. Audit writes are not abandoned because
// the caller was cancelled; only the timeout bounds them.
func (t *Trail) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if t.writeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.writeTimeout)
}

// LoadSession replays a durable session from store.
func LoadSession(ctx context.Context, store ports.AuditStore, id string) ([]domain.StepRecord, error) {
	return store.ReadAll(ctx, id)
}

// ListSessions returns the summaries of ended sessions, most recently ended first.
// Sessions without a summary (still open or interrupted) are skipped.
func ListSessions(ctx context.Context, store ports.AuditStore) ([]domain.SessionSummary, error) {
	ids, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	summaries := make([]domain.SessionSummary, 0, len(ids))
	for _, id := range ids {
		s, err := store.ReadSummary(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read summary for %s: %w", id, err)
		}
		summaries = append(summaries, *s)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].EndedAt.After(summaries[j].EndedAt)
	})
	return summaries, nil
}
