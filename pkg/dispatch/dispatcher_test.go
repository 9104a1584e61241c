package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/attest/pkg/audit"
	"github.com/aretw0/attest/pkg/dispatch"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recorder captures entries instead of persisting them.
type recorder struct {
	entries []audit.Entry
	err     error
}

func (r *recorder) Append(_ context.Context, e audit.Entry) (domain.StepRecord, error) {
	if r.err != nil {
		return domain.StepRecord{}, r.err
	}
	r.entries = append(r.entries, e)
	return domain.StepRecord{Sequence: len(r.entries), Step: domain.StepKey(len(r.entries), e.Step)}, nil
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, reply domain.Reply, cert domain.Certificate) (domain.ReplyAnalysis, error) {
	args := m.Called(ctx, reply, cert)
	return args.Get(0).(domain.ReplyAnalysis), args.Error(1)
}

func call(name string, args map[string]any) dispatch.Request {
	return dispatch.Request{
		Call:          domain.ToolCall{ID: "call_1", Name: name, Args: args},
		Iteration:     1,
		MaxIterations: 5,
	}
}

func TestExecute_DecideCompliance(t *testing.T) {
	rec := &recorder{}
	d := dispatch.New(registry.Default(), nil)

	res, err := d.Execute(context.Background(), rec, call(domain.ToolDecideCompliance, map[string]any{
		"status":           "COMPLIANT",
		"confidence_score": 0.95,
		"explanation":      "Registrar confirmed the degree.",
	}))
	require.NoError(t, err)

	assert.True(t, res.Terminal)
	assert.False(t, res.IsError)
	assert.Equal(t, "call_1", res.CallID)
	v := res.Payload.(domain.Verdict)
	assert.Equal(t, domain.Compliant, v.Status)
	assert.Equal(t, 0.95, v.Confidence)
	assert.False(t, v.Coerced)
	assert.Equal(t, "VERIFIED", res.Output["verification_status"])

	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	assert.Equal(t, "tool_decide_compliance", e.Step)
	assert.Equal(t, domain.ToolDecideCompliance, e.Tool)
	assert.Equal(t, 1, e.Input["iteration"])
	assert.Equal(t, 5, e.Input["max_iterations"])
	assert.NoError(t, e.Err)
}

func TestExecute_DecideCompliance_CoercesUnknownStatus(t *testing.T) {
	rec := &recorder{}
	d := dispatch.New(registry.Default(), nil)

	res, err := d.Execute(context.Background(), rec, call(domain.ToolDecideCompliance, map[string]any{
		"status":           "PROBABLY_FINE",
		"confidence_score": 7,
		"explanation":      "x",
	}))
	require.NoError(t, err)

	v := res.Payload.(domain.Verdict)
	assert.Equal(t, domain.Inconclusive, v.Status)
	assert.True(t, v.Coerced)
	assert.Equal(t, 1.0, v.Confidence, "confidence is clamped to [0,1]")
	assert.Equal(t, true, res.Output["status_coerced"])
	assert.Equal(t, "PROBABLY_FINE", res.Output["requested_status"])
	assert.True(t, res.Terminal)
}

func TestExecute_DecideCompliance_InexactStatusIsCoerced(t *testing.T) {
	for _, status := range []string{"compliant", " Compliant ", "not_compliant"} {
		t.Run(status, func(t *testing.T) {
			d := dispatch.New(registry.Default(), nil)
			res, err := d.Execute(context.Background(), &recorder{}, call(domain.ToolDecideCompliance, map[string]any{
				"status": status, "confidence_score": 0.8, "explanation": "reply reviewed",
			}))
			require.NoError(t, err)

			v := res.Payload.(domain.Verdict)
			assert.Equal(t, domain.Inconclusive, v.Status)
			assert.True(t, v.Coerced)
			assert.Equal(t, true, res.Output["status_coerced"])
			assert.Equal(t, status, res.Output["requested_status"])
		})
	}
}

func TestExecute_ValidationError(t *testing.T) {
	rec := &recorder{}
	d := dispatch.New(registry.Default(), nil)

	res, err := d.Execute(context.Background(), rec, call(domain.ToolDecideCompliance, map[string]any{
		"status": "COMPLIANT",
	}))
	require.NoError(t, err, "validation errors are absorbed")

	assert.True(t, res.IsError)
	assert.False(t, res.Terminal, "a rejected terminal call does not end the loop")
	assert.Contains(t, res.Error, "confidence_score")

	require.Len(t, rec.entries, 1)
	var verr *domain.ValidationError
	require.ErrorAs(t, rec.entries[0].Err, &verr)
	assert.Equal(t, domain.ToolDecideCompliance, verr.Tool)
	assert.Equal(t, "tool_decide_compliance", rec.entries[0].Step)
}

func TestExecute_ArgsError(t *testing.T) {
	rec := &recorder{}
	d := dispatch.New(registry.Default(), nil)

	req := call(domain.ToolEscalateToHuman, nil)
	req.Call.ArgsError = "unexpected end of JSON input"

	res, err := d.Execute(context.Background(), rec, req)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Error, "unexpected end of JSON input")

	var verr *domain.ValidationError
	require.ErrorAs(t, rec.entries[0].Err, &verr)
}

func TestExecute_UnknownTool(t *testing.T) {
	rec := &recorder{}
	d := dispatch.New(registry.Default(), nil)

	res, err := d.Execute(context.Background(), rec, call("wire_money", map[string]any{"amount": 1}))
	require.NoError(t, err)

	assert.True(t, res.IsError)
	assert.False(t, res.Terminal)
	require.Len(t, rec.entries, 1)
	assert.Equal(t, dispatch.StepUnknownTool, rec.entries[0].Step)
	assert.Equal(t, "wire_money", rec.entries[0].Tool)
	assert.ErrorIs(t, rec.entries[0].Err, domain.ErrToolNotFound)
}

func TestExecute_AnalyzeReply(t *testing.T) {
	analysis := domain.ReplyAnalysis{
		Status:      domain.Verified,
		Confidence:  0.9,
		KeyPhrases:  []string{"confirm"},
		Explanation: "The registrar confirms the degree.",
	}
	an := &mockAnalyzer{}
	reply := domain.Reply{Body: "We confirm the degree."}
	cert := domain.Certificate{CandidateName: "Ada"}
	an.On("Analyze", mock.Anything, reply, cert).Return(analysis, nil).Once()

	rec := &recorder{}
	d := dispatch.New(registry.Default(), an)

	req := call(domain.ToolAnalyzeReply, map[string]any{"focus_areas": []any{"tone"}})
	req.Reply = reply
	req.Certificate = cert

	res, err := d.Execute(context.Background(), rec, req)
	require.NoError(t, err)

	assert.False(t, res.Terminal)
	assert.Equal(t, analysis, res.Payload)
	assert.Equal(t, "VERIFIED", res.Output["verification_status"])
	assert.Equal(t, []string{"tone"}, res.Output["focus_areas"])
	an.AssertExpectations(t)
}

func TestExecute_AnalyzerFailure(t *testing.T) {
	an := &mockAnalyzer{}
	an.On("Analyze", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ReplyAnalysis{}, errors.New("service down"))

	rec := &recorder{}
	d := dispatch.New(registry.Default(), an)

	res, err := d.Execute(context.Background(), rec, call(domain.ToolAnalyzeReply, map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Error, "service down")
	assert.Len(t, rec.entries, 1)
}

func TestExecute_ClarificationAndEscalationRecordArgsVerbatim(t *testing.T) {
	d := dispatch.New(registry.Default(), nil)

	t.Run("clarification", func(t *testing.T) {
		rec := &recorder{}
		args := map[string]any{
			"reason":              "No graduation year",
			"missing_information": []any{"graduation_year"},
		}
		res, err := d.Execute(context.Background(), rec, call(domain.ToolRequestClarification, args))
		require.NoError(t, err)
		assert.False(t, res.Terminal)

		c := res.Payload.(domain.Clarification)
		assert.Equal(t, "No graduation year", c.Reason)
		assert.Equal(t, []string{"graduation_year"}, c.MissingInformation)
		assert.Equal(t, "No graduation year", res.Output["reason"])
		assert.Equal(t, true, res.Output["clarification_requested"])
	})

	t.Run("escalation", func(t *testing.T) {
		rec := &recorder{}
		args := map[string]any{
			"reason":          "Sender domain mismatch",
			"priority":        "HIGH",
			"risk_indicators": []any{"domain_mismatch"},
		}
		res, err := d.Execute(context.Background(), rec, call(domain.ToolEscalateToHuman, args))
		require.NoError(t, err)
		assert.True(t, res.Terminal)

		e := res.Payload.(domain.Escalation)
		assert.Equal(t, "HIGH", e.Priority)
		assert.Equal(t, []string{"domain_mismatch"}, e.RiskIndicators)
		assert.Equal(t, args["risk_indicators"], res.Output["risk_indicators"])
	})
}

func TestExecute_DurabilityFailure(t *testing.T) {
	werr := &domain.DurabilityError{SessionID: "s", Step: "002_tool_decide_compliance", Err: errors.New("disk full")}
	rec := &recorder{err: werr}
	d := dispatch.New(registry.Default(), nil)

	_, err := d.Execute(context.Background(), rec, call(domain.ToolDecideCompliance, map[string]any{
		"status": "COMPLIANT", "confidence_score": 0.9, "explanation": "ok",
	}))
	assert.ErrorIs(t, err, domain.ErrDurability)
}

func TestWithHandler(t *testing.T) {
	d := dispatch.New(registry.Default(), nil, dispatch.WithHandler(domain.ToolRequestClarification,
		func(_ context.Context, req dispatch.Request) (domain.ToolResult, error) {
			return domain.ToolResult{Output: map[string]any{"custom": true}}, nil
		}))

	res, err := d.Execute(context.Background(), &recorder{}, call(domain.ToolRequestClarification, map[string]any{"reason": "r"}))
	require.NoError(t, err)
	assert.Equal(t, true, res.Output["custom"])
}
