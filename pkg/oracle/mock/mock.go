// Package mock provides ReasoningOracle implementations that need no network.
package mock

import (
	"context"
	"strconv"
	"sync"

	"github.com/aretw0/attest/pkg/domain"
)

// FallbackExplanation is the explanation of the Fallback oracle's verdict.
const FallbackExplanation = "Mock response - oracle not configured"

// Fallback stands in when no real oracle is configured. It always proposes
// decide_compliance(COMPLIANT, 0.85).
type Fallback struct{}

// ProposeNextAction implements ports.ReasoningOracle.
func (Fallback) ProposeNextAction(ctx context.Context, _ domain.Conversation, _ []domain.ToolDefinition, _ float64) (domain.OracleResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return domain.ProposedToolCall{
		Call: domain.ToolCall{
			ID:   "mock_call",
			Name: domain.ToolDecideCompliance,
			Args: map[string]any{
				"status":           string(domain.Compliant),
				"confidence_score": 0.85,
				"explanation":      FallbackExplanation,
			},
		},
	}, nil
}

// Step is one scripted answer. A non-nil Err is returned instead of Response.
type Step struct {
	Response domain.OracleResponse
	Err      error
}

// Script replays a fixed sequence of answers; the last one repeats.
// It records every conversation it is shown.
type Script struct {
	mu    sync.Mutex
	steps []Step
	calls []domain.Conversation
	temps []float64
}

// NewScript creates a scripted oracle.
func NewScript(steps ...Step) *Script {
	return &Script{steps: steps}
}

// Call is a convenience Step proposing a single tool call.
func Call(name string, args map[string]any) Step {
	return Step{Response: domain.ProposedToolCall{Call: domain.ToolCall{Name: name, Args: args}}}
}

// ProposeNextAction implements ports.ReasoningOracle.
func (s *Script) ProposeNextAction(ctx context.Context, conv domain.Conversation, _ []domain.ToolDefinition, temperature float64) (domain.OracleResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.calls)
	s.calls = append(s.calls, conv.Clone())
	s.temps = append(s.temps, temperature)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.steps) == 0 {
		return domain.NoAction{}, nil
	}
	step := s.steps[min(n, len(s.steps)-1)]
	if step.Err != nil {
		return nil, step.Err
	}
	if p, ok := step.Response.(domain.ProposedToolCall); ok && p.Call.ID == "" {
		p.Call.ID = "call_" + strconv.Itoa(n+1)
		return p, nil
	}
	return step.Response, nil
}

// Calls returns how many times the oracle was consulted.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Conversation returns the conversation shown on the i-th call (0-based).
func (s *Script) Conversation(i int) domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

// Temperatures returns the temperature passed on each call.
func (s *Script) Temperatures() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.temps...)
}
