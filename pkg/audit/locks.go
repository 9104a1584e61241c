package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/attest/internal/logging"
	"github.com/aretw0/attest/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed session lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Locks provides one critical section per session id.
// It uses reference counting to garbage collect unused entries.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry

	locker ports.DistributedLocker
	ttl    time.Duration
	logger *slog.Logger
}

// LocksOption configures Locks.
type LocksOption func(*Locks)

// WithDistributedLocker also takes a cross-process lock for every critical section.
func WithDistributedLocker(locker ports.DistributedLocker, ttl time.Duration) LocksOption {
	return func(l *Locks) {
		l.locker = locker
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLocksLogger configures a logger for deferred unlock failures.
func WithLocksLogger(logger *slog.Logger) LocksOption {
	return func(l *Locks) {
		l.logger = logger
	}
}

// NewLocks creates an empty lock table.
func NewLocks(opts ...LocksOption) *Locks {
	l := &Locks{
		entries: make(map[string]*lockEntry),
		ttl:     DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// acquire gets or creates an entry and increments its reference count.
func (l *Locks) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (l *Locks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, key)
	}
}

// Active returns the number of session ids currently holding or waiting for a lock.
func (l *Locks) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// WithLock runs fn while holding the critical section for key.
func (l *Locks) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := l.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		l.release(key)
	}()

	if l.locker != nil {
		// Acquisition is bounded by the TTL, not by the caller's cancellation.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.ttl)
		unlock, err := l.locker.Lock(lctx, key, l.ttl)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The caller's context may already be done; the lock must still be released.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				l.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
