package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/attest/internal/runtime"
	"github.com/aretw0/attest/pkg/adapters/memory"
	"github.com/aretw0/attest/pkg/analyzer"
	"github.com/aretw0/attest/pkg/audit"
	"github.com/aretw0/attest/pkg/dispatch"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/oracle/mock"
	"github.com/aretw0/attest/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	cert = domain.Certificate{
		CandidateName:  "Ada Lovelace",
		UniversityName: "University of London",
		DegreeName:     "BSc Mathematics",
		IssueDate:      "1843-07-01",
	}
	reply = domain.Reply{
		SenderEmail: "registrar@london.ac.uk",
		SenderName:  "Registrar",
		Subject:     "Re: Verification REF-001",
		Body:        "We confirm the certificate is authentic and our records match.",
		ReferenceID: "REF-001",
	}
)

func newLoop(oracle interface {
	ProposeNextAction(context.Context, domain.Conversation, []domain.ToolDefinition, float64) (domain.OracleResponse, error)
}, opts ...runtime.Option) *runtime.Loop {
	d := dispatch.New(registry.Default(), analyzer.Keyword{})
	return runtime.NewLoop(oracle, d, opts...)
}

// session runs one case inside a real audit session and returns the report and records.
func session(t *testing.T, ctx context.Context, loop *runtime.Loop, in runtime.Input) (runtime.Report, []domain.StepRecord) {
	t.Helper()
	trail := audit.NewTrail(memory.NewStore())
	id, err := trail.StartSession(ctx, "")
	require.NoError(t, err)
	in.SessionID = id

	rep := loop.Run(ctx, trail, in)
	res := runtime.BuildResult(id, rep)

	records, err := trail.EndSession(ctx, rep.Err() == nil, res.Summary())
	require.NoError(t, err)
	return rep, records
}

func input() runtime.Input {
	r := reply
	return runtime.Input{Certificate: cert, Reply: &r, ContactFound: true}
}

func tags(records []domain.StepRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Tag
	}
	return out
}

func decide(status string, confidence float64) mock.Step {
	return mock.Call(domain.ToolDecideCompliance, map[string]any{
		"status":           status,
		"confidence_score": confidence,
		"explanation":      "The registrar answered.",
	})
}

func TestLoop_ImmediateDecision(t *testing.T) {
	oracle := mock.NewScript(decide("COMPLIANT", 0.95))

	rep, records := session(t, context.Background(), newLoop(oracle), input())

	assert.Equal(t, 1, rep.Iterations)
	assert.Equal(t, []string{"decide_compliance"}, rep.ToolCalls)
	d, ok := rep.Outcome.(domain.Decision)
	require.True(t, ok)
	assert.Equal(t, domain.Compliant, d.Verdict.Status)
	assert.Equal(t, 0.95, d.Verdict.Confidence)

	assert.Equal(t, []string{"session_start", "tool_decide_compliance", "session_end"}, tags(records))
	assert.Equal(t, 1, oracle.Calls())
	assert.Equal(t, []float64{0}, oracle.Temperatures())
}

func TestLoop_DecisionSupersedesClarification(t *testing.T) {
	oracle := mock.NewScript(
		mock.Call(domain.ToolAnalyzeReply, map[string]any{}),
		mock.Call(domain.ToolRequestClarification, map[string]any{
			"reason":              "Graduation year missing",
			"missing_information": []any{"graduation_year"},
		}),
		decide("INCONCLUSIVE", 0.4),
	)

	rep, records := session(t, context.Background(), newLoop(oracle), input())

	assert.Equal(t, []string{"analyze_reply", "request_clarification", "decide_compliance"}, rep.ToolCalls)
	d, ok := rep.Outcome.(domain.Decision)
	require.True(t, ok, "got %T", rep.Outcome)
	assert.Equal(t, domain.Inconclusive, d.Verdict.Status)

	res := runtime.BuildResult("s", rep)
	assert.False(t, res.ClarificationNeeded)
	assert.Equal(t, domain.OutcomeDecision, res.Outcome)
	require.NotNil(t, res.ReplyAnalysis)
	assert.Equal(t, []string{"confirm", "authentic", "records match"}, res.ReplyAnalysis.KeyPhrases)

	assert.Len(t, records, 2+rep.Iterations)
}

func TestLoop_EscalationAfterAnalysis(t *testing.T) {
	oracle := mock.NewScript(
		mock.Call(domain.ToolAnalyzeReply, nil),
		mock.Call(domain.ToolEscalateToHuman, map[string]any{
			"reason":          "Sender domain does not match",
			"priority":        "HIGH",
			"risk_indicators": []any{"domain_mismatch"},
		}),
	)

	rep, _ := session(t, context.Background(), newLoop(oracle), input())
	res := runtime.BuildResult("s", rep)

	assert.Equal(t, 2, rep.Iterations)
	assert.True(t, res.EscalatedToHuman)
	assert.Equal(t, domain.Inconclusive, res.Compliance)
	assert.Equal(t, "HIGH", res.EscalationPriority)
	assert.Equal(t, "Sender domain does not match", res.EscalationReason)
	assert.Equal(t, []string{"domain_mismatch"}, res.RiskIndicators)
	assert.Equal(t, "ESCALATED: Sender domain does not match", res.Explanation)
}

func TestLoop_IterationCap(t *testing.T) {
	oracle := mock.NewScript(mock.Call(domain.ToolAnalyzeReply, nil))

	in := input()
	in.MaxIterations = 3
	rep, records := session(t, context.Background(), newLoop(oracle), in)

	assert.Equal(t, []string{"analyze_reply", "analyze_reply", "analyze_reply"}, rep.ToolCalls)
	ex, ok := rep.Outcome.(domain.Exhausted)
	require.True(t, ok)
	assert.Equal(t, runtime.ReasonIterationLimit, ex.Reason)
	assert.NoError(t, ex.Err)

	res := runtime.BuildResult("s", rep)
	assert.Equal(t, domain.OutcomeExhausted, res.Outcome)
	assert.Contains(t, res.Explanation, "loop ended without a decision")
	assert.False(t, res.ClarificationNeeded)

	assert.Len(t, records, 5)
	assert.Equal(t, "exhausted", records[4].Output["outcome"])
}

func TestLoop_DefaultCapIsFive(t *testing.T) {
	oracle := mock.NewScript(mock.Call(domain.ToolAnalyzeReply, nil))
	rep, _ := session(t, context.Background(), newLoop(oracle), input())
	assert.Equal(t, 5, rep.Iterations)
	assert.Equal(t, 5, oracle.Calls())
}

func TestLoop_PendingClarificationAtCap(t *testing.T) {
	oracle := mock.NewScript(
		mock.Call(domain.ToolRequestClarification, map[string]any{"reason": "first"}),
		mock.Call(domain.ToolRequestClarification, map[string]any{
			"reason":              "latest",
			"missing_information": []any{"student_id"},
		}),
	)

	in := input()
	in.MaxIterations = 2
	rep, _ := session(t, context.Background(), newLoop(oracle), in)

	c, ok := rep.Outcome.(domain.ClarificationNeeded)
	require.True(t, ok, "got %T", rep.Outcome)
	assert.Equal(t, "latest", c.Clarification.Reason)

	res := runtime.BuildResult("s", rep)
	assert.True(t, res.ClarificationNeeded)
	assert.Equal(t, []string{"student_id"}, res.MissingInformation)
	assert.Equal(t, "CLARIFICATION NEEDED: latest", res.Explanation)
}

func TestLoop_Abstention(t *testing.T) {
	t.Run("without clarification", func(t *testing.T) {
		oracle := mock.NewScript(mock.Step{Response: domain.NoAction{Reply: "I am not sure."}})
		rep, records := session(t, context.Background(), newLoop(oracle), input())

		ex, ok := rep.Outcome.(domain.Exhausted)
		require.True(t, ok)
		assert.Equal(t, runtime.ReasonNoAction, ex.Reason)
		assert.Equal(t, 1, rep.Iterations)
		assert.Empty(t, rep.ToolCalls)
		assert.Equal(t, []string{"session_start", "oracle_no_action", "session_end"}, tags(records))
		assert.Equal(t, "I am not sure.", records[1].Output["reply"])
	})

	t.Run("with pending clarification", func(t *testing.T) {
		oracle := mock.NewScript(
			mock.Call(domain.ToolRequestClarification, map[string]any{"reason": "vague"}),
			mock.Step{Response: domain.NoAction{}},
		)
		rep, _ := session(t, context.Background(), newLoop(oracle), input())
		_, ok := rep.Outcome.(domain.ClarificationNeeded)
		assert.True(t, ok, "got %T", rep.Outcome)
	})
}

func TestLoop_ShortCircuit(t *testing.T) {
	tests := map[string]func(*runtime.Input){
		"no contact": func(in *runtime.Input) { in.ContactFound = false },
		"no reply":   func(in *runtime.Input) { in.Reply = nil },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			oracle := mock.NewScript(decide("COMPLIANT", 1))
			in := input()
			mutate(&in)

			rep, records := session(t, context.Background(), newLoop(oracle), in)

			assert.Equal(t, 0, oracle.Calls(), "oracle must not be consulted")
			assert.True(t, rep.ShortCircuited)
			assert.Empty(t, rep.ToolCalls)
			d, ok := rep.Outcome.(domain.Decision)
			require.True(t, ok)
			assert.Equal(t, domain.Inconclusive, d.Verdict.Status)
			assert.Contains(t, d.Verdict.Explanation, "manual verification required")

			assert.Equal(t, []string{"session_start", "decision_short_circuit", "session_end"}, tags(records))

			res := runtime.BuildResult("s", rep)
			assert.Equal(t, domain.OutcomeShortCircuit, res.Outcome)
			assert.Equal(t, domain.Inconclusive, res.Compliance)
			assert.Empty(t, res.ToolCallsMade)
			assert.Nil(t, res.ReplyAnalysis)
		})
	}
}

func TestLoop_OracleErrorIsNotRetried(t *testing.T) {
	oracle := mock.NewScript(
		mock.Call(domain.ToolAnalyzeReply, nil),
		mock.Step{Err: errors.New("connection reset")},
		decide("COMPLIANT", 1),
	)

	rep, records := session(t, context.Background(), newLoop(oracle), input())

	ex, ok := rep.Outcome.(domain.Exhausted)
	require.True(t, ok)
	assert.Equal(t, runtime.ReasonOracleFailure, ex.Reason)
	assert.ErrorIs(t, ex.Err, domain.ErrOracle)
	assert.NoError(t, rep.Err(), "oracle failures are not durability failures")
	assert.Equal(t, 2, oracle.Calls())
	assert.Equal(t, 2, rep.Iterations)

	assert.Equal(t, []string{"session_start", "tool_analyze_reply", "oracle_error", "session_end"}, tags(records))
	assert.False(t, records[2].Success)
	assert.Contains(t, records[2].Error, "connection reset")
}

type blockingOracle struct{}

func (blockingOracle) ProposeNextAction(ctx context.Context, _ domain.Conversation, _ []domain.ToolDefinition, _ float64) (domain.OracleResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestLoop_OracleTimeout(t *testing.T) {
	loop := newLoop(blockingOracle{}, runtime.WithOracleTimeout(10*time.Millisecond))
	rep, records := session(t, context.Background(), loop, input())

	ex, ok := rep.Outcome.(domain.Exhausted)
	require.True(t, ok)
	assert.Equal(t, runtime.ReasonOracleFailure, ex.Reason)
	assert.ErrorIs(t, ex.Err, context.DeadlineExceeded)
	assert.Equal(t, "oracle_error", records[1].Tag)
}

func TestLoop_UnknownToolContinues(t *testing.T) {
	oracle := mock.NewScript(
		mock.Call("approve_everything", map[string]any{}),
		decide("NOT_COMPLIANT", 0.9),
	)

	rep, records := session(t, context.Background(), newLoop(oracle), input())

	assert.Equal(t, []string{"approve_everything", "decide_compliance"}, rep.ToolCalls)
	_, ok := rep.Outcome.(domain.Decision)
	assert.True(t, ok)

	assert.Equal(t, "tool_unknown", records[1].Tag)
	assert.False(t, records[1].Success)

	// The oracle saw the failure on its second turn.
	conv := oracle.Conversation(1)
	require.Len(t, conv, 4)
	assert.Equal(t, domain.RoleTool, conv[3].Role)
	assert.Contains(t, conv[3].Content, "tool not found")
}

func TestLoop_InvalidTerminalCallDoesNotTerminate(t *testing.T) {
	oracle := mock.NewScript(
		mock.Call(domain.ToolDecideCompliance, map[string]any{"status": "COMPLIANT"}),
		decide("COMPLIANT", 0.8),
	)

	rep, records := session(t, context.Background(), newLoop(oracle), input())
	assert.Equal(t, 2, rep.Iterations)
	assert.False(t, records[1].Success)
	assert.True(t, records[2].Success)
}

func TestLoop_ConversationCarriesProposalAndResult(t *testing.T) {
	oracle := mock.NewScript(mock.Call(domain.ToolAnalyzeReply, nil), decide("COMPLIANT", 0.9))
	_, _ = session(t, context.Background(), newLoop(oracle), input())

	first := oracle.Conversation(0)
	require.Len(t, first, 2)
	assert.Equal(t, runtime.Instruction, first[0].Content)
	assert.Contains(t, first[1].Content, reply.Body)
	assert.Contains(t, first[1].Content, "Ada Lovelace")

	second := oracle.Conversation(1)
	require.Len(t, second, 4)
	assert.Equal(t, domain.RoleAssistant, second[2].Role)
	require.NotNil(t, second[2].ToolCall)
	assert.Equal(t, domain.ToolAnalyzeReply, second[2].ToolCall.Name)
	assert.Equal(t, second[2].ToolCall.ID, second[3].ToolCallID)
	assert.Contains(t, second[3].Content, "VERIFIED")
}

func TestLoop_CancellationBetweenIterations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	oracle := mock.NewScript(mock.Call(domain.ToolAnalyzeReply, nil))
	hooks := domain.LifecycleHooks{
		OnToolReturn: func(context.Context, *domain.ToolEvent) { cancel() },
	}

	rep, records := session(t, ctx, newLoop(oracle, runtime.WithLifecycleHooks(hooks)), input())

	ex, ok := rep.Outcome.(domain.Exhausted)
	require.True(t, ok)
	assert.Equal(t, runtime.ReasonCancelled, ex.Reason)
	assert.ErrorIs(t, ex.Err, context.Canceled)
	assert.Equal(t, 1, rep.Iterations)
	assert.Equal(t, 1, oracle.Calls())

	// The started dispatch still recorded its entry.
	assert.Equal(t, []string{"session_start", "tool_analyze_reply", "session_end"}, tags(records))
}

// failingRecorder fails every append with a durability error.
type failingRecorder struct{}

func (failingRecorder) Append(_ context.Context, e audit.Entry) (domain.StepRecord, error) {
	return domain.StepRecord{}, &domain.DurabilityError{SessionID: "s", Step: e.Step, Err: errors.New("disk full")}
}

func TestLoop_DurabilityFailureEndsRun(t *testing.T) {
	oracle := mock.NewScript(mock.Call(domain.ToolAnalyzeReply, nil))
	rep := newLoop(oracle).Run(context.Background(), failingRecorder{}, input())

	ex, ok := rep.Outcome.(domain.Exhausted)
	require.True(t, ok)
	assert.Equal(t, runtime.ReasonDurability, ex.Reason)
	assert.ErrorIs(t, rep.Err(), domain.ErrDurability)
	assert.Equal(t, 1, oracle.Calls())

	res := runtime.BuildResult("s", rep)
	assert.Equal(t, domain.Inconclusive, res.Compliance)
	assert.NotEmpty(t, res.Explanation)
}

func TestLoop_Hooks(t *testing.T) {
	oracle := mock.NewScript(mock.Call(domain.ToolAnalyzeReply, nil), decide("COMPLIANT", 0.9))

	var events []string
	hooks := domain.LifecycleHooks{
		OnIteration:  func(_ context.Context, e *domain.IterationEvent) { events = append(events, "iteration") },
		OnToolCall:   func(_ context.Context, e *domain.ToolEvent) { events = append(events, "call:"+e.ToolName) },
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) { events = append(events, "return:"+e.ToolName) },
		OnTerminate: func(_ context.Context, e *domain.TerminateEvent) {
			events = append(events, "terminate:"+string(e.Outcome))
		},
	}

	_, _ = session(t, context.Background(), newLoop(oracle, runtime.WithLifecycleHooks(hooks)), input())

	assert.Equal(t, []string{
		"iteration", "call:analyze_reply", "return:analyze_reply",
		"iteration", "call:decide_compliance", "return:decide_compliance",
		"terminate:decision",
	}, events)
}
