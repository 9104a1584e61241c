package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventIteration  EventType = "iteration"
	EventToolCall   EventType = "tool_call"
	EventToolReturn EventType = "tool_return"
	EventTerminate  EventType = "terminate"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// IterationEvent is emitted at the top of each loop iteration.
type IterationEvent struct {
	EventBase
	Iteration     int `json:"iteration"`
	MaxIterations int `json:"max_iterations"`
}

// ToolEvent represents a tool dispatch.
type ToolEvent struct {
	EventBase
	Iteration int           `json:"iteration"`
	ToolName  string        `json:"tool_name"`
	Input     any           `json:"input,omitempty"`
	Output    any           `json:"output,omitempty"`
	IsError   bool          `json:"is_error,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// TerminateEvent is emitted once when a run reaches its outcome.
type TerminateEvent struct {
	EventBase
	Outcome    OutcomeKind `json:"outcome"`
	Iterations int         `json:"iterations"`
	Err        error       `json:"-"`
}

// LifecycleHooks defines callbacks for loop observability.
type LifecycleHooks struct {
	OnIteration  func(context.Context, *IterationEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
	OnTerminate  func(context.Context, *TerminateEvent)
}

// MergeHooks fans each callback out to every non-nil hook in order.
func MergeHooks(hooks ...LifecycleHooks) LifecycleHooks {
	var merged LifecycleHooks
	for _, h := range hooks {
		h := h
		if h.OnIteration != nil {
			prev := merged.OnIteration
			merged.OnIteration = func(ctx context.Context, e *IterationEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnIteration(ctx, e)
			}
		}
		if h.OnToolCall != nil {
			prev := merged.OnToolCall
			merged.OnToolCall = func(ctx context.Context, e *ToolEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnToolCall(ctx, e)
			}
		}
		if h.OnToolReturn != nil {
			prev := merged.OnToolReturn
			merged.OnToolReturn = func(ctx context.Context, e *ToolEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnToolReturn(ctx, e)
			}
		}
		if h.OnTerminate != nil {
			prev := merged.OnTerminate
			merged.OnTerminate = func(ctx context.Context, e *TerminateEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnTerminate(ctx, e)
			}
		}
	}
	return merged
}
