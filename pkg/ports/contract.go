package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/attest/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunAuditStoreContract runs a suite of tests to verify that an AuditStore implementation
// adheres to the defined interface contract.
func RunAuditStoreContract(t *testing.T, store AuditStore) {
	ctx := context.Background()
	sessionID := "contract-" + time.Now().Format("20060102150405.000000000")
	base := time.Now().UTC().Truncate(time.Millisecond)

	record := func(seq int, tag string, success bool) domain.StepRecord {
		return domain.StepRecord{
			Sequence:  seq,
			Step:      domain.StepKey(seq, tag),
			Tag:       tag,
			Timestamp: base.Add(time.Duration(seq) * time.Millisecond),
			Action:    "action " + tag,
			Agent:     "ContractTest",
			Tool:      "analyze_reply",
			Input:     map[string]any{"focus": "tone"},
			Output:    map[string]any{"status": "VERIFIED"},
			Success:   success,
		}
	}

	t.Run("Append and ReadAll preserve order", func(t *testing.T) {
		want := []domain.StepRecord{
			record(1, "session_start", true),
			record(2, "tool_analyze_reply", true),
			record(3, "tool_unknown", false),
		}
		want[2].Error = "tool not found"

		for _, r := range want {
			require.NoError(t, store.Append(ctx, sessionID, r))
		}

		got, err := store.ReadAll(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for i := range want {
			assertRecordEqual(t, want[i], got[i])
		}
	})

	t.Run("ReadAll Non-Existent", func(t *testing.T) {
		_, err := store.ReadAll(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Sessions are isolated", func(t *testing.T) {
		other := sessionID + "-other"
		require.NoError(t, store.Append(ctx, other, record(1, "session_start", true)))

		got, err := store.ReadAll(ctx, other)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		mine, err := store.ReadAll(ctx, sessionID)
		require.NoError(t, err)
		assert.Len(t, mine, 3)
	})

	t.Run("Returned records are copies", func(t *testing.T) {
		got, err := store.ReadAll(ctx, sessionID)
		require.NoError(t, err)
		got[0].Action = "tampered"
		got[0].Input["focus"] = "tampered"

		again, err := store.ReadAll(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "action session_start", again[0].Action)
		assert.Equal(t, "tone", again[0].Input["focus"])
	})

	t.Run("Summary round trip", func(t *testing.T) {
		_, err := store.ReadSummary(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		summary := domain.SessionSummary{
			SessionID:   sessionID,
			StartedAt:   base,
			EndedAt:     base.Add(time.Second),
			TotalSteps:  3,
			Success:     true,
			FinalResult: map[string]any{"outcome": "decision"},
			Steps: []domain.StepSummary{
				{Step: "001_session_start", Action: "start", Success: true},
			},
		}
		require.NoError(t, store.WriteSummary(ctx, sessionID, summary))

		got, err := store.ReadSummary(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, summary.SessionID, got.SessionID)
		assert.Equal(t, summary.TotalSteps, got.TotalSteps)
		assert.True(t, summary.EndedAt.Equal(got.EndedAt))
		assert.True(t, summary.StartedAt.Equal(got.StartedAt))
		assert.Equal(t, "decision", got.FinalResult["outcome"])
		assert.Equal(t, summary.Steps, got.Steps)
	})

	t.Run("List", func(t *testing.T) {
		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, sessionID)
		assert.Contains(t, ids, sessionID+"-other")
	})
}

func assertRecordEqual(t *testing.T, want, got domain.StepRecord) {
	t.Helper()
	assert.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", want.Timestamp, got.Timestamp)
	want.Timestamp, got.Timestamp = time.Time{}, time.Time{}
	assert.Equal(t, want, got)
}
