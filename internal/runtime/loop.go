// Package runtime drives the bounded tool-calling decision loop.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/attest/internal/logging"
	"github.com/aretw0/attest/pkg/audit"
	"github.com/aretw0/attest/pkg/dispatch"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Loop defaults, used when no option overrides them.
const (
	DefaultMaxIterations = 5
	DefaultOracleTimeout = 60 * time.Second
)

// Step tags written by the loop itself. Dispatch records are written by the dispatcher.
const (
	StepOracleNoAction = "oracle_no_action"
	StepOracleError    = "oracle_error"
	StepShortCircuit   = "decision_short_circuit"
)

// Exhaustion reasons.
const (
	ReasonNoAction       = "oracle proposed no action"
	ReasonIterationLimit = "iteration limit reached"
	ReasonOracleFailure  = "oracle failure"
	ReasonDurability     = "audit write failed"
	ReasonCancelled      = "cancelled"
)

// Input describes one case. A nil Reply or ContactFound=false bypasses the oracle.
type Input struct {
	SessionID     string
	Certificate   domain.Certificate
	Reply         *domain.Reply
	ContactFound  bool
	MaxIterations int
}

// Report is the loop's terminal state. Outcome is always set.
type Report struct {
	Outcome        domain.Outcome
	Iterations     int
	ToolCalls      []string
	Analysis       *domain.ReplyAnalysis
	ShortCircuited bool
	Explanation    string // short-circuit explanation
}

// Err returns the durability error that ended the run, if any.
func (r Report) Err() error {
	if ex, ok := r.Outcome.(domain.Exhausted); ok && errors.Is(ex.Err, domain.ErrDurability) {
		return ex.Err
	}
	return nil
}

// Loop is the decision state machine. It holds no per-session state and can
// serve concurrent sessions, each with its own Recorder.
type Loop struct {
	oracle        ports.ReasoningOracle
	dispatcher    *dispatch.Dispatcher
	maxIterations int
	oracleTimeout time.Duration
	hooks         domain.LifecycleHooks
	logger        *slog.Logger
	tracer        trace.Tracer
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxIterations sets the default iteration cap.
func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithOracleTimeout bounds each oracle round-trip.
func WithOracleTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.oracleTimeout = d
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(l *Loop) {
		l.hooks = h
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop creates a decision loop.
func NewLoop(oracle ports.ReasoningOracle, dispatcher *dispatch.Dispatcher, opts ...Option) *Loop {
	l := &Loop{
		oracle:        oracle,
		dispatcher:    dispatcher,
		maxIterations: DefaultMaxIterations,
		oracleTimeout: DefaultOracleTimeout,
		logger:        logging.NewNop(),
		tracer:        otel.Tracer("github.com/aretw0/attest/internal/runtime"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run decides one case, writing every step through rec.
func (l *Loop) Run(ctx context.Context, rec audit.Recorder, in Input) Report {
	limit := in.MaxIterations
	if limit <= 0 {
		limit = l.maxIterations
	}

	ctx, span := l.tracer.Start(ctx, "decision_loop", trace.WithAttributes(
		attribute.String("attest.session_id", in.SessionID),
		attribute.Int("attest.max_iterations", limit),
	))
	defer span.End()

	var rep Report
	if !in.ContactFound || in.Reply == nil {
		rep = l.shortCircuit(ctx, rec, in)
	} else {
		rep = l.iterate(ctx, rec, in, limit)
	}

	span.SetAttributes(
		attribute.String("attest.outcome", string(outcomeKind(rep))),
		attribute.Int("attest.iterations", rep.Iterations),
	)
	if ex, ok := rep.Outcome.(domain.Exhausted); ok && ex.Err != nil {
		span.SetStatus(codes.Error, ex.Err.Error())
	}

	if l.hooks.OnTerminate != nil {
		var err error
		if ex, ok := rep.Outcome.(domain.Exhausted); ok {
			err = ex.Err
		}
		l.hooks.OnTerminate(ctx, &domain.TerminateEvent{
			EventBase:  l.event(domain.EventTerminate, in.SessionID),
			Outcome:    outcomeKind(rep),
			Iterations: rep.Iterations,
			Err:        err,
		})
	}
	return rep
}

func (l *Loop) shortCircuit(ctx context.Context, rec audit.Recorder, in Input) Report {
	explanation := "INCONCLUSIVE: no reply was received from the issuing institution; manual verification required."
	if !in.ContactFound {
		explanation = "INCONCLUSIVE: the issuing institution could not be identified in the contact directory; manual verification required."
	}

	rep := Report{
		Outcome: domain.Decision{Verdict: domain.Verdict{
			Status:      domain.Inconclusive,
			Explanation: explanation,
		}},
		ToolCalls:      []string{},
		ShortCircuited: true,
		Explanation:    explanation,
	}

	_, err := rec.Append(ctx, audit.Entry{
		Step:   StepShortCircuit,
		Action: "Oracle bypassed: " + explanation,
		Agent:  dispatch.AgentName,
		Input: map[string]any{
			"contact_found": in.ContactFound,
			"has_reply":     in.Reply != nil,
		},
		Output: map[string]any{
			"compliance_result": string(domain.Inconclusive),
			"explanation":       explanation,
		},
	})
	if err != nil {
		rep.Outcome = domain.Exhausted{Reason: ReasonDurability, Err: err}
	}
	return rep
}

func (l *Loop) iterate(ctx context.Context, rec audit.Recorder, in Input, limit int) Report {
	rep := Report{ToolCalls: []string{}}

	msg, err := ContextMessage(in.Certificate, *in.Reply)
	if err != nil {
		rep.Outcome = domain.Exhausted{Reason: "context rendering failed", Err: err}
		return rep
	}
	conv := domain.NewConversation(Instruction, msg)
	tools := l.dispatcher.Registry().List()

	var pending *domain.Clarification

	for iter := 1; iter <= limit; iter++ {
		// 1. Cancellation is only observed between iterations.
		if err := ctx.Err(); err != nil {
			l.logger.Debug("Decision loop cancelled", "session_id", in.SessionID, "iteration", iter)
			rep.Outcome = domain.Exhausted{Reason: ReasonCancelled, Err: err}
			return rep
		}
		rep.Iterations = iter

		if l.hooks.OnIteration != nil {
			l.hooks.OnIteration(ctx, &domain.IterationEvent{
				EventBase:     l.event(domain.EventIteration, in.SessionID),
				Iteration:     iter,
				MaxIterations: limit,
			})
		}
		l.logger.Debug("Decision loop iteration", "session_id", in.SessionID, "iteration", iter, "max_iterations", limit)

		// 2. Ask the oracle.
		resp, err := l.propose(ctx, conv, tools, iter)
		if err != nil {
			return l.oracleFailed(ctx, rec, rep, in, iter, limit, err)
		}

		var call domain.ProposedToolCall
		switch r := resp.(type) {
		case domain.ProposedToolCall:
			call = r
		case domain.NoAction:
			return l.abstained(ctx, rec, rep, pending, iter, limit, r.Reply)
		default:
			return l.oracleFailed(ctx, rec, rep, in, iter, limit, fmt.Errorf("unexpected oracle response %T", resp))
		}
		if call.Dropped > 0 {
			l.logger.Warn("Oracle proposed several tool calls, keeping the first", "session_id", in.SessionID, "dropped", call.Dropped)
		}

		// 3. Dispatch. A started dispatch is never interrupted by cancellation.
		event := &domain.ToolEvent{
			EventBase: l.event(domain.EventToolCall, in.SessionID),
			Iteration: iter,
			ToolName:  call.Call.Name,
			Input:     call.Call.Args,
		}
		if l.hooks.OnToolCall != nil {
			l.hooks.OnToolCall(ctx, event)
		}

		start := time.Now()
		result, err := l.dispatcher.Execute(context.WithoutCancel(ctx), rec, dispatch.Request{
			Call:          call.Call,
			Iteration:     iter,
			MaxIterations: limit,
			Reply:         *in.Reply,
			Certificate:   in.Certificate,
		})
		rep.ToolCalls = append(rep.ToolCalls, call.Call.Name)

		if l.hooks.OnToolReturn != nil {
			ret := *event
			ret.EventBase = l.event(domain.EventToolReturn, in.SessionID)
			ret.Output = result.Output
			ret.IsError = result.IsError
			ret.Duration = time.Since(start)
			l.hooks.OnToolReturn(ctx, &ret)
		}

		if err != nil {
			rep.Outcome = domain.Exhausted{Reason: ReasonDurability, Err: err}
			return rep
		}

		// 4. Keep the oracle's context: proposal, then result.
		callCopy := call.Call
		conv = append(conv,
			domain.Turn{Role: domain.RoleAssistant, Content: call.Reply, ToolCall: &callCopy},
			domain.Turn{Role: domain.RoleTool, ToolCallID: call.Call.ID, ToolName: call.Call.Name, Content: toolContent(result)},
		)

		if result.IsError {
			continue
		}

		// 5. Transition.
		switch p := result.Payload.(type) {
		case domain.ReplyAnalysis:
			rep.Analysis = &p
		case domain.Clarification:
			pending = &p
		case domain.Verdict:
			if result.Terminal {
				rep.Outcome = domain.Decision{Verdict: p}
				return rep
			}
		case domain.Escalation:
			if result.Terminal {
				rep.Outcome = domain.Escalated{Escalation: p}
				return rep
			}
		}
	}

	// 6. Cap reached without a terminal tool.
	rep.Outcome = exhausted(pending, ReasonIterationLimit)
	return rep
}

func (l *Loop) propose(ctx context.Context, conv domain.Conversation, tools []domain.ToolDefinition, iter int) (domain.OracleResponse, error) {
	ctx, span := l.tracer.Start(ctx, "oracle.propose", trace.WithAttributes(attribute.Int("attest.iteration", iter)))
	defer span.End()

	octx, cancel := context.WithTimeout(ctx, l.oracleTimeout)
	defer cancel()

	resp, err := l.oracle.ProposeNextAction(octx, conv.Clone(), tools, 0)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		var oerr *domain.OracleError
		if !errors.As(err, &oerr) {
			err = &domain.OracleError{Attempts: 1, Err: err}
		}
		return nil, err
	}
	if resp == nil {
		return domain.NoAction{}, nil
	}
	return resp, nil
}

func (l *Loop) oracleFailed(ctx context.Context, rec audit.Recorder, rep Report, in Input, iter, limit int, err error) Report {
	reason := ReasonOracleFailure
	if ctx.Err() != nil {
		reason = ReasonCancelled
	}
	l.logger.Warn("Oracle call failed", "session_id", in.SessionID, "iteration", iter, "err", err)

	if _, werr := rec.Append(ctx, audit.Entry{
		Step:   StepOracleError,
		Action: "Reasoning oracle failed",
		Agent:  dispatch.AgentName,
		Input:  map[string]any{"iteration": iter, "max_iterations": limit},
		Err:    err,
	}); werr != nil {
		rep.Outcome = domain.Exhausted{Reason: ReasonDurability, Err: werr}
		return rep
	}
	rep.Outcome = domain.Exhausted{Reason: reason, Err: err}
	return rep
}

func (l *Loop) abstained(ctx context.Context, rec audit.Recorder, rep Report, pending *domain.Clarification, iter, limit int, reply string) Report {
	if _, err := rec.Append(ctx, audit.Entry{
		Step:   StepOracleNoAction,
		Action: "Reasoning oracle proposed no tool call",
		Agent:  dispatch.AgentName,
		Input:  map[string]any{"iteration": iter, "max_iterations": limit},
		Output: map[string]any{"reply": reply},
	}); err != nil {
		rep.Outcome = domain.Exhausted{Reason: ReasonDurability, Err: err}
		return rep
	}
	rep.Outcome = exhausted(pending, ReasonNoAction)
	return rep
}

// exhausted ends a run that produced no terminal tool. A pending
// clarification takes precedence over plain exhaustion.
func exhausted(pending *domain.Clarification, reason string) domain.Outcome {
	if pending != nil {
		return domain.ClarificationNeeded{Clarification: *pending}
	}
	return domain.Exhausted{Reason: reason}
}

func toolContent(r domain.ToolResult) string {
	payload := r.Output
	if r.IsError {
		payload = map[string]any{"error": r.Error}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(b)
}

func (l *Loop) event(t domain.EventType, sessionID string) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), Type: t, SessionID: sessionID}
}

func outcomeKind(r Report) domain.OutcomeKind {
	if r.ShortCircuited {
		if _, ok := r.Outcome.(domain.Decision); ok {
			return domain.OutcomeShortCircuit
		}
	}
	return r.Outcome.Kind()
}
