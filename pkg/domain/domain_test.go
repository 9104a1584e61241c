package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepKey(t *testing.T) {
	assert.Equal(t, "001_session_start", StepKey(1, "session_start"))
	assert.Equal(t, "042_tool_analyze_reply", StepKey(42, "tool_analyze_reply"))
	assert.Equal(t, "1000_session_end", StepKey(1000, "session_end"))

	assert.Equal(t, "tool_analyze_reply", TagOf("042_tool_analyze_reply"))
	assert.Equal(t, "bare", TagOf("bare"))
}

func TestParseComplianceStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   ComplianceStatus
		wantOK bool
	}{
		{"COMPLIANT", Compliant, true},
		{"NOT_COMPLIANT", NotCompliant, true},
		{"INCONCLUSIVE", Inconclusive, true},
		{"compliant", Inconclusive, false},
		{" Compliant ", Inconclusive, false},
		{"not_compliant", Inconclusive, false},
		{"COMPLIANT ", Inconclusive, false},
		{"APPROVED", Inconclusive, false},
		{"", Inconclusive, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseComplianceStatus(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestValidateSessionID(t *testing.T) {
	for _, id := range []string{"s1", "case-42", "session_001", "2c7e.v1:retry", "0f8fad5b-d9cb-469f-a165-70867728950e"} {
		assert.NoError(t, ValidateSessionID(id), id)
	}
	for _, id := range []string{"", "../escape", "a/b", ".hidden", "-lead", "with space"} {
		assert.ErrorIs(t, ValidateSessionID(id), ErrInvalidID, id)
	}
}

func TestComplianceStatus_Verification(t *testing.T) {
	assert.Equal(t, Verified, Compliant.Verification())
	assert.Equal(t, NotVerified, NotCompliant.Verification())
	assert.Equal(t, Unverifiable, Inconclusive.Verification())
	assert.Equal(t, Unverifiable, ComplianceStatus("junk").Verification())
}

func TestSummarize(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &Session{
		ID:        "s-1",
		StartedAt: start,
		Records: []StepRecord{
			{Sequence: 1, Step: "001_session_start", Action: "start", Success: true},
			{Sequence: 2, Step: "002_tool_unknown", Action: "bad tool", Success: false},
		},
	}

	sum := Summarize(s, start.Add(time.Minute), true, map[string]any{"outcome": "decision"})

	assert.Equal(t, "s-1", sum.SessionID)
	assert.Equal(t, 2, sum.TotalSteps)
	assert.True(t, sum.Success)
	assert.Equal(t, start, sum.StartedAt)
	assert.Equal(t, []StepSummary{
		{Step: "001_session_start", Action: "start", Success: true},
		{Step: "002_tool_unknown", Action: "bad tool", Success: false},
	}, sum.Steps)
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("disk full")

	var err error = &DurabilityError{SessionID: "s", Step: "002_tool_x", Err: cause}
	assert.ErrorIs(t, err, ErrDurability)
	assert.ErrorIs(t, err, cause)

	err = fmt.Errorf("run: %w", &OracleError{Attempts: 3, Err: context.DeadlineExceeded})
	assert.ErrorIs(t, err, ErrOracle)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "after 3 attempts")

	assert.ErrorIs(t, &UnknownToolError{Name: "send_email"}, ErrToolNotFound)
	assert.ErrorIs(t, &InvalidStateError{Op: "append", Err: ErrNoSession}, ErrNoSession)
}

func TestMergeHooks(t *testing.T) {
	var calls []string
	a := LifecycleHooks{
		OnIteration: func(context.Context, *IterationEvent) { calls = append(calls, "a.iter") },
	}
	b := LifecycleHooks{
		OnIteration: func(context.Context, *IterationEvent) { calls = append(calls, "b.iter") },
		OnTerminate: func(context.Context, *TerminateEvent) { calls = append(calls, "b.term") },
	}

	merged := MergeHooks(a, LifecycleHooks{}, b)
	merged.OnIteration(context.Background(), &IterationEvent{})
	merged.OnTerminate(context.Background(), &TerminateEvent{})

	assert.Nil(t, merged.OnToolCall)
	assert.Equal(t, []string{"a.iter", "b.iter", "b.term"}, calls)
}
