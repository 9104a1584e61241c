// Package analyzer implements ReplyAnalyzer: a deterministic keyword reader
// and an LLM-backed reader that falls back to it.
package analyzer

import (
	"context"
	"strings"

	"github.com/aretw0/attest/pkg/domain"
)

var (
	verifiedKeywords     = []string{"confirm", "authentic", "verified", "valid", "records match"}
	notVerifiedKeywords  = []string{"cannot verify", "no record", "fraudulent", "deny", "not found"}
	inconclusiveKeywords = []string{"need more", "additional information", "unclear", "contact us"}
)

const (
	keywordConfidenceMatch = 0.7
	keywordConfidenceLow   = 0.5
)

// Keyword classifies a reply by counting indicative phrases.
// A category wins only with a strict majority; anything else is INCONCLUSIVE.
type Keyword struct{}

// Analyze implements ports.ReplyAnalyzer.
func (Keyword) Analyze(_ context.Context, reply domain.Reply, _ domain.Certificate) (domain.ReplyAnalysis, error) {
	return keywordAnalysis(reply.Body), nil
}

func keywordAnalysis(body string) domain.ReplyAnalysis {
	text := strings.ToLower(body)

	verified := matches(text, verifiedKeywords)
	denied := matches(text, notVerifiedKeywords)
	unclear := matches(text, inconclusiveKeywords)

	a := domain.ReplyAnalysis{
		Status:      domain.Unverifiable,
		Confidence:  keywordConfidenceLow,
		Explanation: "Keyword-based analysis",
	}
	switch {
	case len(verified) > len(denied) && len(verified) > len(unclear):
		a.Status = domain.Verified
		a.Confidence = keywordConfidenceMatch
	case len(denied) > len(verified) && len(denied) > len(unclear):
		a.Status = domain.NotVerified
		a.Confidence = keywordConfidenceMatch
	}

	a.KeyPhrases = append(append(append([]string{}, verified...), denied...), unclear...)
	return a
}

func matches(text string, keywords []string) []string {
	var found []string
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			found = append(found, kw)
		}
	}
	return found
}
