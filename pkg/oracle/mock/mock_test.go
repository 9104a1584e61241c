package mock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/oracle/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallback(t *testing.T) {
	resp, err := mock.Fallback{}.ProposeNextAction(context.Background(), nil, nil, 0)
	require.NoError(t, err)

	p, ok := resp.(domain.ProposedToolCall)
	require.True(t, ok)
	assert.Equal(t, domain.ToolDecideCompliance, p.Call.Name)
	assert.Equal(t, "COMPLIANT", p.Call.Args["status"])
	assert.Equal(t, 0.85, p.Call.Args["confidence_score"])
	assert.Equal(t, mock.FallbackExplanation, p.Call.Args["explanation"])
}

func TestScript_ReplaysAndRepeatsLast(t *testing.T) {
	s := mock.NewScript(
		mock.Call(domain.ToolAnalyzeReply, nil),
		mock.Step{Err: errors.New("boom")},
		mock.Step{Response: domain.NoAction{Reply: "done"}},
	)
	ctx := context.Background()

	r1, err := s.ProposeNextAction(ctx, domain.NewConversation("sys", "ctx"), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "call_1", r1.(domain.ProposedToolCall).Call.ID)

	_, err = s.ProposeNextAction(ctx, nil, nil, 0)
	assert.EqualError(t, err, "boom")

	for i := 0; i < 2; i++ {
		r, err := s.ProposeNextAction(ctx, nil, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, domain.NoAction{Reply: "done"}, r)
	}

	assert.Equal(t, 4, s.Calls())
	assert.Len(t, s.Conversation(0), 2)
	assert.Equal(t, []float64{0, 0, 0, 0}, s.Temperatures())
}

func TestScript_Empty(t *testing.T) {
	r, err := mock.NewScript().ProposeNextAction(context.Background(), nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.NoAction{}, r)
}

func TestScript_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := mock.NewScript(mock.Call("x", nil)).ProposeNextAction(ctx, nil, nil, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
