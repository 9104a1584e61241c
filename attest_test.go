package attest_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/attest"
	"github.com/aretw0/attest/pkg/adapters/file"
	"github.com/aretw0/attest/pkg/adapters/memory"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/oracle/mock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts appends per session.
type countingStore struct {
	*memory.Store
	mu      sync.Mutex
	appends map[string]int
	fail    bool
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memory.NewStore(), appends: map[string]int{}}
}

func (s *countingStore) Append(ctx context.Context, id string, r domain.StepRecord) error {
	s.mu.Lock()
	s.appends[id]++
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return errors.New("read-only file system")
	}
	return s.Store.Append(ctx, id, r)
}

func (s *countingStore) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends[id]
}

var (
	cert  = domain.Certificate{CandidateName: "Ada Lovelace", UniversityName: "University of London", DegreeName: "BSc Mathematics", IssueDate: "1843"}
	reply = domain.Reply{SenderEmail: "registrar@london.ac.uk", Subject: "Re: verification", Body: "We confirm the degree is authentic.", ReferenceID: "REF-1"}
)

func decide(status string, confidence float64) mock.Step {
	return mock.Call(domain.ToolDecideCompliance, map[string]any{
		"status": status, "confidence_score": confidence, "explanation": "Confirmed by registrar.",
	})
}

func TestRunDecision_Defaults(t *testing.T) {
	v, err := attest.New()
	require.NoError(t, err)
	defer v.Close()

	r := reply
	res, err := v.RunDecision(context.Background(), attest.Request{Certificate: cert, Reply: &r, ContactFound: true})
	require.NoError(t, err)

	assert.Equal(t, domain.Compliant, res.Compliance)
	assert.Equal(t, domain.Verified, res.Verification)
	assert.Equal(t, 0.85, res.Confidence)
	assert.Equal(t, mock.FallbackExplanation, res.Explanation)
	assert.NotEmpty(t, res.SessionID)
	assert.Len(t, res.AuditLog, 3)
}

func TestRunDecision_AppendCount(t *testing.T) {
	tests := []struct {
		name       string
		script     []mock.Step
		iterations int
	}{
		{"immediate", []mock.Step{decide("COMPLIANT", 0.95)}, 1},
		{"analyze then decide", []mock.Step{mock.Call(domain.ToolAnalyzeReply, nil), decide("COMPLIANT", 0.9)}, 2},
		{"cap", []mock.Step{mock.Call(domain.ToolAnalyzeReply, nil)}, 4},
		{"oracle failure", []mock.Step{{Err: errors.New("502")}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newCountingStore()
			v, err := attest.New(attest.WithStore(store), attest.WithOracle(mock.NewScript(tt.script...)), attest.WithMaxIterations(4))
			require.NoError(t, err)

			r := reply
			res, err := v.RunDecision(context.Background(), attest.Request{Certificate: cert, Reply: &r, ContactFound: true})
			require.NoError(t, err)

			assert.Equal(t, tt.iterations, res.Iterations)
			assert.Equal(t, 2+tt.iterations, store.count(res.SessionID))
			assert.Len(t, res.AuditLog, 2+tt.iterations)
			for i, rec := range res.AuditLog {
				assert.Equal(t, i+1, rec.Sequence, "sequence numbers are gapless")
			}
		})
	}
}

func TestRunDecision_ShortCircuitNeverConsultsOracle(t *testing.T) {
	store := newCountingStore()
	oracle := mock.NewScript(decide("COMPLIANT", 1))
	v, err := attest.New(attest.WithStore(store), attest.WithOracle(oracle))
	require.NoError(t, err)

	res, err := v.RunDecision(context.Background(), attest.Request{Certificate: cert, ContactFound: false})
	require.NoError(t, err)

	assert.Equal(t, 0, oracle.Calls())
	assert.Equal(t, 3, store.count(res.SessionID))
	assert.Equal(t, domain.Inconclusive, res.Compliance)
	assert.Equal(t, domain.OutcomeShortCircuit, res.Outcome)
	assert.Empty(t, res.ToolCallsMade)
	assert.Contains(t, res.Explanation, "manual verification required")
	assert.Equal(t, "decision_short_circuit", res.AuditLog[1].Tag)
}

func TestRunDecision_CallerSessionID(t *testing.T) {
	v, err := attest.New()
	require.NoError(t, err)

	r := reply
	req := attest.Request{SessionID: "case-42", Certificate: cert, Reply: &r, ContactFound: true}
	res, err := v.RunDecision(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "case-42", res.SessionID)

	_, err = v.RunDecision(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrSessionExists, "a sealed id cannot be reused")
}

func TestRunDecision_MalformedSessionID(t *testing.T) {
	dir := t.TempDir()
	v, err := attest.New(attest.WithStore(file.New(dir)))
	require.NoError(t, err)

	r := reply
	for _, id := range []string{"../escape", "a/b", ".hidden", "with space"} {
		t.Run(id, func(t *testing.T) {
			res, err := v.RunDecision(context.Background(), attest.Request{SessionID: id, Certificate: cert, Reply: &r, ContactFound: true})
			assert.Nil(t, res)
			assert.ErrorIs(t, err, domain.ErrInvalidID)
			assert.NotErrorIs(t, err, domain.ErrDurability, "a bad id is not a storage failure")
			var ise *domain.InvalidStateError
			assert.ErrorAs(t, err, &ise)
		})
	}

	sums, err := v.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sums)
}

func TestRunDecision_Durability(t *testing.T) {
	store := newCountingStore()

	// Start succeeds, then the disk goes read-only.
	var once sync.Once
	hooks := domain.LifecycleHooks{OnIteration: func(context.Context, *domain.IterationEvent) {
		once.Do(func() {
			store.mu.Lock()
			store.fail = true
			store.mu.Unlock()
		})
	}}
	v, err := attest.New(attest.WithStore(store), attest.WithOracle(mock.NewScript(mock.Call(domain.ToolAnalyzeReply, nil))), attest.WithLifecycleHooks(hooks))
	require.NoError(t, err)

	r := reply
	res, err := v.RunDecision(context.Background(), attest.Request{Certificate: cert, Reply: &r, ContactFound: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDurability)

	require.NotNil(t, res, "a result is produced even when the trail is broken")
	assert.Equal(t, domain.Inconclusive, res.Compliance)
	assert.Equal(t, domain.OutcomeExhausted, res.Outcome)
}

func TestSessionReview(t *testing.T) {
	store := file.New(t.TempDir())
	v, err := attest.New(attest.WithStore(store))
	require.NoError(t, err)
	ctx := context.Background()

	r := reply
	first, err := v.RunDecision(ctx, attest.Request{SessionID: "first", Certificate: cert, Reply: &r, ContactFound: true})
	require.NoError(t, err)
	_, err = v.RunDecision(ctx, attest.Request{SessionID: "second", Certificate: cert})
	require.NoError(t, err)

	a, err := v.LoadSession(ctx, "first")
	require.NoError(t, err)
	b, err := v.LoadSession(ctx, "first")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(a, b), "replay is idempotent")
	assert.Empty(t, cmp.Diff(first.AuditLog, a), "replay matches what was recorded")

	summary, err := v.SessionSummary(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalSteps)
	assert.True(t, summary.Success)
	assert.Equal(t, "decision", summary.FinalResult["outcome"])

	list, err := v.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].EndedAt.Before(list[1].EndedAt))

	_, err = v.LoadSession(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

type closer struct{ closed int }

func (c *closer) Close() error { c.closed++; return nil }

func TestClose(t *testing.T) {
	c := &closer{}
	v, err := attest.New(attest.WithCloser(c))
	require.NoError(t, err)

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
	assert.Equal(t, 1, c.closed)

	_, err = v.RunDecision(context.Background(), attest.Request{})
	assert.ErrorIs(t, err, attest.ErrClosed)
}

func TestNew_RejectsNonPositiveCap(t *testing.T) {
	_, err := attest.New(attest.WithMaxIterations(0))
	assert.Error(t, err)
}

func TestTools(t *testing.T) {
	v, err := attest.New()
	require.NoError(t, err)
	assert.Len(t, v.Tools(), 4)
}
