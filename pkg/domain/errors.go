package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// Session lifecycle violations. They are wrapped in an *InvalidStateError.
var (
	ErrSessionOpen   = errors.New("a session is already open")
	ErrNoSession     = errors.New("no session is open")
	ErrSessionSealed = errors.New("session has been ended")
	ErrSessionExists = errors.New("session already has a durable log")
	ErrInvalidID     = errors.New("invalid session id")
)

// ErrToolNotFound is returned by the registry for names outside the catalog.
var ErrToolNotFound = errors.New("tool not found")

// ErrDurability matches every *DurabilityError.
var ErrDurability = errors.New("audit log write failed")

// ErrOracle matches every *OracleError.
var ErrOracle = errors.New("reasoning oracle failed")

// InvalidStateError reports an AuditTrail call made in the wrong lifecycle state.
type InvalidStateError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *InvalidStateError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *InvalidStateError) Unwrap() error { return e.Err }

// ValidationError reports tool arguments that do not satisfy the tool's schema.
// It is absorbed by the dispatcher and only surfaces in the audit trail.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UnknownToolError reports a tool name outside the registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("%v: %q", ErrToolNotFound, e.Name)
}

func (e *UnknownToolError) Is(target error) bool { return target == ErrToolNotFound }

// OracleError wraps a transport, timeout or decoding failure of the reasoning oracle.
type OracleError struct {
	Attempts int
	Err      error
}

func (e *OracleError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%v after %d attempts: %v", ErrOracle, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrOracle, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

func (e *OracleError) Is(target error) bool { return target == ErrOracle }

// DurabilityError wraps a failed write to a session's durable log.
// It is fatal for the session.
type DurabilityError struct {
	SessionID string
	Step      string
	Err       error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("%v (session %s, step %s): %v", ErrDurability, e.SessionID, e.Step, e.Err)
}

func (e *DurabilityError) Unwrap() error { return e.Err }

func (e *DurabilityError) Is(target error) bool { return target == ErrDurability }
