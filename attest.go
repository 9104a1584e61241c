package attest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/attest/internal/logging"
	"github.com/aretw0/attest/internal/runtime"
	"github.com/aretw0/attest/pkg/adapters/memory"
	"github.com/aretw0/attest/pkg/analyzer"
	"github.com/aretw0/attest/pkg/audit"
	"github.com/aretw0/attest/pkg/dispatch"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/oracle/mock"
	"github.com/aretw0/attest/pkg/ports"
	"github.com/aretw0/attest/pkg/registry"
)

// ErrClosed is returned by a Verifier after Close.
var ErrClosed = errors.New("verifier is closed")

// Verifier is the high-level entry point. It wires the decision loop to an
// audit store and owns the lifecycle of the resources it was given.
// It is safe for concurrent use; every RunDecision call gets its own session.
type Verifier struct {
	store     ports.AuditStore
	oracle    ports.ReasoningOracle
	analyzer  ports.ReplyAnalyzer
	registry  *registry.Registry
	sanitizer *audit.Sanitizer
	locks     *audit.Locks
	locker    ports.DistributedLocker
	lockTTL   time.Duration
	hooks     domain.LifecycleHooks
	logger    *slog.Logger

	maxIterations  int
	oracleTimeout  time.Duration
	writeTimeout   time.Duration
	appendObserver func(time.Duration, error)

	loop    *runtime.Loop
	closers []io.Closer

	mu     sync.RWMutex
	closed bool
}

// Option defines a functional option for configuring the Verifier.
type Option func(*Verifier)

// WithStore sets the durable audit store (default: in-memory).
func WithStore(s ports.AuditStore) Option {
	return func(v *Verifier) {
		v.store = s
	}
}

// WithOracle sets the reasoning oracle (default: mock.Fallback).
func WithOracle(o ports.ReasoningOracle) Option {
	return func(v *Verifier) {
		v.oracle = o
	}
}

// WithAnalyzer sets the reply analyzer behind analyze_reply (default: analyzer.Keyword).
func WithAnalyzer(a ports.ReplyAnalyzer) Option {
	return func(v *Verifier) {
		v.analyzer = a
	}
}

// WithRegistry replaces the canonical tool catalog.
func WithRegistry(r *registry.Registry) Option {
	return func(v *Verifier) {
		v.registry = r
	}
}

// WithSanitizer sets the audit sanitization policy.
func WithSanitizer(s *audit.Sanitizer) Option {
	return func(v *Verifier) {
		v.sanitizer = s
	}
}

// WithDistributedLocker serializes appends to a session across processes.
func WithDistributedLocker(l ports.DistributedLocker, ttl time.Duration) Option {
	return func(v *Verifier) {
		v.locker = l
		v.lockTTL = ttl
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(v *Verifier) {
		v.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithMaxIterations sets the default iteration cap (default 5).
func WithMaxIterations(n int) Option {
	return func(v *Verifier) {
		v.maxIterations = n
	}
}

// WithOracleTimeout bounds each oracle round-trip.
func WithOracleTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		v.oracleTimeout = d
	}
}

// WithWriteTimeout bounds each audit store call.
func WithWriteTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		v.writeTimeout = d
	}
}

// WithAppendObserver receives the latency and result of every audit write.
func WithAppendObserver(fn func(time.Duration, error)) Option {
	return func(v *Verifier) {
		v.appendObserver = fn
	}
}

// WithCloser registers a resource released by Close, in reverse order.
func WithCloser(c io.Closer) Option {
	return func(v *Verifier) {
		v.closers = append(v.closers, c)
	}
}

// New initializes a Verifier. Without options it runs fully offline: an
// in-memory store, the fallback oracle and the keyword analyzer.
func New(opts ...Option) (*Verifier, error) {
	v := &Verifier{
		maxIterations: runtime.DefaultMaxIterations,
		oracleTimeout: runtime.DefaultOracleTimeout,
		writeTimeout:  audit.DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.logger == nil {
		v.logger = logging.NewNop()
	}
	if v.store == nil {
		v.store = memory.NewStore()
	}
	if v.oracle == nil {
		v.oracle = mock.Fallback{}
	}
	if v.analyzer == nil {
		v.analyzer = analyzer.Keyword{}
	}
	if v.registry == nil {
		v.registry = registry.Default()
	}
	if v.sanitizer == nil {
		v.sanitizer = audit.NewSanitizer()
	}
	if v.maxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", v.maxIterations)
	}

	lockOpts := []audit.LocksOption{audit.WithLocksLogger(v.logger)}
	if v.locker != nil {
		lockOpts = append(lockOpts, audit.WithDistributedLocker(v.locker, v.lockTTL))
	}
	v.locks = audit.NewLocks(lockOpts...)

	d := dispatch.New(v.registry, v.analyzer, dispatch.WithLogger(v.logger))
	v.loop = runtime.NewLoop(v.oracle, d,
		runtime.WithMaxIterations(v.maxIterations),
		runtime.WithOracleTimeout(v.oracleTimeout),
		runtime.WithLifecycleHooks(v.hooks),
		runtime.WithLogger(v.logger),
	)
	return v, nil
}

// Request is one verification case.
type Request struct {
	// SessionID is optional; a UUID is generated when empty.
	// An id that already has an audit log is rejected.
	SessionID   string
	Certificate domain.Certificate
	// Reply is nil when the institution never answered.
	Reply        *domain.Reply
	ContactFound bool
	// MaxIterations overrides the Verifier's cap when positive.
	MaxIterations int
}

// RunDecision decides one case inside its own audit session.
//
// Whenever the session could be started, a fully populated Result is
// returned, even alongside an error. A *domain.DurabilityError means the
// audit trail is incomplete and the result must not be relied on.
func (v *Verifier) RunDecision(ctx context.Context, req Request) (*domain.Result, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, ErrClosed
	}

	trail := v.newTrail()

	// 1. Open the session.
	id, err := trail.StartSession(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to start audit session: %w", err)
	}
	logger := v.logger.With("session_id", id)
	logger.Info("Decision started", "contact_found", req.ContactFound, "has_reply", req.Reply != nil)

	// 2. Run the loop.
	rep := v.loop.Run(ctx, trail, runtime.Input{
		SessionID:     id,
		Certificate:   req.Certificate,
		Reply:         req.Reply,
		ContactFound:  req.ContactFound,
		MaxIterations: req.MaxIterations,
	})
	res := runtime.BuildResult(id, rep)

	// 3. Seal the session.
	records, endErr := trail.EndSession(ctx, res.Outcome != domain.OutcomeExhausted, res.Summary())
	res.AuditLog = records

	if err := errors.Join(rep.Err(), endErr); err != nil {
		logger.Error("Decision finished without a complete audit trail", "err", err)
		return res, err
	}

	logger.Info("Decision finished",
		"outcome", res.Outcome,
		"compliance", res.Compliance,
		"iterations", res.Iterations,
	)
	return res, nil
}

// LoadSession replays the audit records of a session.
func (v *Verifier) LoadSession(ctx context.Context, id string) ([]domain.StepRecord, error) {
	return audit.LoadSession(ctx, v.store, id)
}

// SessionSummary returns the summary written when the session ended.
func (v *Verifier) SessionSummary(ctx context.Context, id string) (*domain.SessionSummary, error) {
	return v.store.ReadSummary(ctx, id)
}

// ListSessions returns the summaries of ended sessions, most recent first.
func (v *Verifier) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	return audit.ListSessions(ctx, v.store)
}

// Tools returns the tool catalog offered to the oracle.
func (v *Verifier) Tools() []domain.ToolDefinition {
	return v.registry.List()
}

// Close waits for in-flight decisions and releases registered resources.
// It is safe to call more than once.
func (v *Verifier) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true

	var errs []error
	for i := len(v.closers) - 1; i >= 0; i-- {
		if err := v.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (v *Verifier) newTrail() *audit.Trail {
	opts := []audit.Option{
		audit.WithSanitizer(v.sanitizer),
		audit.WithLocks(v.locks),
		audit.WithLogger(v.logger),
		audit.WithWriteTimeout(v.writeTimeout),
	}
	if v.appendObserver != nil {
		opts = append(opts, audit.WithAppendObserver(v.appendObserver))
	}
	return audit.NewTrail(v.store, opts...)
}
