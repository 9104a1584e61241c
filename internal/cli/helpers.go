package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/attest/pkg/domain"
)

// SignalContext is a context cancelled on SIGINT or SIGTERM that remembers
// which signal cancelled it.
type SignalContext struct {
	context.Context
	Cancel context.CancelFunc

	mu  sync.Mutex
	sig os.Signal
}

// NewSignalContext starts watching for termination signals. Call Cancel to
// release the watcher.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{Context: ctx, Cancel: cancel}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			sc.mu.Lock()
			sc.sig = sig
			sc.mu.Unlock()
			cancel()
		case <-ctx.Done():
		}
	}()
	return sc
}

// Signal returns the signal that cancelled the context, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sig
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnIteration: func(_ context.Context, e *domain.IterationEvent) {
			logger.Debug("Iteration", "session_id", e.SessionID, "iteration", e.Iteration, "max", e.MaxIterations)
		},
		OnToolCall: func(_ context.Context, e *domain.ToolEvent) {
			logger.Debug("Tool Call", "session_id", e.SessionID, "tool_name", e.ToolName)
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			if e.IsError {
				logger.Debug("Tool Return (Error)", "tool_name", e.ToolName, "err", e.Output, "duration", e.Duration)
			} else {
				logger.Debug("Tool Return (Success)", "tool_name", e.ToolName, "duration", e.Duration)
			}
		},
		OnTerminate: func(_ context.Context, e *domain.TerminateEvent) {
			logger.Debug("Terminate", "session_id", e.SessionID, "outcome", e.Outcome, "iterations", e.Iterations)
		},
	}
}
