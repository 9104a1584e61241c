package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock taken by DistributedLocker.Lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes appends to one audit session across processes
// that share a store. The in-process lock is always taken first; this one only
// guards against a second process writing the same session.
type DistributedLocker interface {
	// Lock blocks until the session key is held or ctx is done. The lock
	// expires after ttl so a crashed writer cannot wedge the session.
	Lock(ctx context.Context, sessionID string, ttl time.Duration) (UnlockFunc, error)
}
