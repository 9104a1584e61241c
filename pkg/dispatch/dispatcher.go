// Package dispatch executes tool calls proposed by the reasoning oracle.
//
// A Dispatcher maps each tool name to a Handler. Execute validates the call
// against the tool's schema, runs the handler and writes exactly one audit
// record before returning, whatever the result.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/attest/internal/logging"
	"github.com/aretw0/attest/pkg/audit"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/ports"
	"github.com/aretw0/attest/pkg/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AgentName is recorded as the agent of every dispatch record.
const AgentName = "decision_loop"

// StepUnknownTool tags the record of a call to a tool outside the registry.
const StepUnknownTool = "tool_unknown"

// Request is one tool call together with the session context it runs in.
type Request struct {
	Call          domain.ToolCall
	Iteration     int
	MaxIterations int
	Reply         domain.Reply
	Certificate   domain.Certificate
}

// Handler executes a validated call. The returned error is recorded as a
// failed step; it never stops the loop by itself.
type Handler func(ctx context.Context, req Request) (domain.ToolResult, error)

// Dispatcher routes tool calls to named handlers.
type Dispatcher struct {
	registry *registry.Registry
	analyzer ports.ReplyAnalyzer
	handlers map[string]Handler
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithHandler replaces or adds the handler for a registered tool.
func WithHandler(name string, h Handler) Option {
	return func(d *Dispatcher) {
		d.handlers[name] = h
	}
}

// New creates a Dispatcher with handlers for the canonical tools.
// analyzer serves analyze_reply.
func New(reg *registry.Registry, analyzer ports.ReplyAnalyzer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		analyzer: analyzer,
		handlers: make(map[string]Handler),
		logger:   logging.NewNop(),
		tracer:   otel.Tracer("github.com/aretw0/attest/pkg/dispatch"),
	}
	d.handlers[domain.ToolAnalyzeReply] = d.analyzeReply
	d.handlers[domain.ToolRequestClarification] = requestClarification
	d.handlers[domain.ToolEscalateToHuman] = escalateToHuman
	d.handlers[domain.ToolDecideCompliance] = decideCompliance

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the catalog the dispatcher validates against.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Execute runs one tool call and records it through rec.
// Validation failures, unknown tools and handler errors come back as a
// ToolResult with IsError set. The only returned error is the
// *domain.DurabilityError of a failed audit write.
func (d *Dispatcher) Execute(ctx context.Context, rec audit.Recorder, req Request) (domain.ToolResult, error) {
	name := req.Call.Name
	ctx, span := d.tracer.Start(ctx, "dispatch "+name, trace.WithAttributes(
		attribute.String("attest.tool", name),
		attribute.Int("attest.iteration", req.Iteration),
	))
	defer span.End()

	start := time.Now()
	result, step, err := d.run(ctx, req)
	result.CallID = req.Call.ID
	result.Name = name

	if err != nil {
		result.IsError = true
		result.Terminal = false
		result.Error = err.Error()
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("Tool call failed", "tool", name, "iteration", req.Iteration, "err", err)
	}

	// Exactly one record per dispatch.
	_, werr := rec.Append(ctx, audit.Entry{
		Step:   step,
		Action: fmt.Sprintf("Executed tool %s", name),
		Agent:  AgentName,
		Tool:   name,
		Input: map[string]any{
			"args":           req.Call.Args,
			"iteration":      req.Iteration,
			"max_iterations": req.MaxIterations,
		},
		Output: result.Output,
		Err:    err,
	})
	if werr != nil {
		span.RecordError(werr)
		return result, werr
	}

	d.logger.Debug("Tool dispatched", "tool", name, "terminal", result.Terminal, "error", result.IsError, "duration", time.Since(start))
	return result, nil
}

func (d *Dispatcher) run(ctx context.Context, req Request) (domain.ToolResult, string, error) {
	name := req.Call.Name

	// 1. Resolve
	def, err := d.registry.Get(name)
	if err != nil {
		return domain.ToolResult{}, StepUnknownTool, err
	}
	step := "tool_" + name

	handler, ok := d.handlers[name]
	if !ok {
		return domain.ToolResult{}, step, fmt.Errorf("no handler for tool %q", name)
	}

	// 2. Validate
	if req.Call.ArgsError != "" {
		return domain.ToolResult{}, step, &domain.ValidationError{Tool: name, Err: fmt.Errorf("%s", req.Call.ArgsError)}
	}
	if err := def.Parameters.Validate(req.Call.Args); err != nil {
		return domain.ToolResult{}, step, &domain.ValidationError{Tool: name, Err: err}
	}

	// 3. Execute
	result, err := handler(ctx, req)
	if err != nil {
		return domain.ToolResult{}, step, err
	}
	result.Terminal = def.Terminal
	return result, step, nil
}
