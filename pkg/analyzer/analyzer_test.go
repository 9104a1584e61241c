package analyzer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/attest/pkg/analyzer"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestKeyword(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		want       domain.VerificationStatus
		confidence float64
	}{
		{"confirmation", "We confirm the certificate is authentic and our records match.", domain.Verified, 0.7},
		{"denial", "We have no record of this student; the document appears fraudulent.", domain.NotVerified, 0.7},
		{"request for more", "We need more details. Please contact us with additional information.", domain.Unverifiable, 0.5},
		{"tie", "We confirm receipt, but we cannot verify the degree.", domain.Unverifiable, 0.5},
		{"empty", "", domain.Unverifiable, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := analyzer.Keyword{}.Analyze(context.Background(), domain.Reply{Body: tt.body}, domain.Certificate{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.confidence, got.Confidence)
		})
	}
}

func TestKeyword_KeyPhrases(t *testing.T) {
	got, _ := analyzer.Keyword{}.Analyze(context.Background(), domain.Reply{Body: "We CONFIRM it is Authentic."}, domain.Certificate{})
	assert.Equal(t, []string{"confirm", "authentic"}, got.KeyPhrases)
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	args := m.Called(ctx, system, prompt)
	return args.String(0), args.Error(1)
}

func TestLLM_DecodesAnswer(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(p string) bool {
		return assert.Contains(t, p, "Ada Lovelace") && assert.Contains(t, p, "REF-42") && assert.Contains(t, p, "We confirm")
	})).Return("```json\n{\"verification_status\":\"verified\",\"confidence_score\":1.4,\"key_phrases\":[\"we confirm\"],\"explanation\":\"Confirmed.\"}\n```", nil)

	a := analyzer.NewLLM(c)
	got, err := a.Analyze(context.Background(),
		domain.Reply{Body: "We confirm.", ReferenceID: "REF-42"},
		domain.Certificate{CandidateName: "Ada Lovelace"})
	require.NoError(t, err)

	assert.Equal(t, domain.Verified, got.Status)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, []string{"we confirm"}, got.KeyPhrases)
	assert.Equal(t, "Confirmed.", got.Explanation)
	c.AssertExpectations(t)
}

func TestLLM_UnknownStatusIsInconclusive(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"verification_status":"PROBABLY"}`, nil)

	got, err := analyzer.NewLLM(c).Analyze(context.Background(), domain.Reply{}, domain.Certificate{})
	require.NoError(t, err)
	assert.Equal(t, domain.Unverifiable, got.Status)
	assert.Equal(t, 0.5, got.Confidence)
	assert.Equal(t, []string{}, got.KeyPhrases)
}

func TestLLM_FallsBackToKeywords(t *testing.T) {
	tests := map[string]struct {
		out string
		err error
	}{
		"completion error": {"", errors.New("rate limited")},
		"invalid json":     {"I think it's verified", nil},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := &mockCompleter{}
			c.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(tt.out, tt.err)

			got, err := analyzer.NewLLM(c).Analyze(context.Background(),
				domain.Reply{Body: "We confirm the degree is authentic."}, domain.Certificate{})
			require.NoError(t, err)
			assert.Equal(t, domain.Verified, got.Status)
			assert.Equal(t, 0.7, got.Confidence)
			assert.Contains(t, got.Explanation, "Fallback keyword-based analysis")
		})
	}
}
