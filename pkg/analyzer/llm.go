package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/aretw0/attest/internal/logging"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/ports"
)

const systemPrompt = "You review replies from universities to academic credential verification requests. " +
	"Answer with a single JSON object and nothing else."

var promptTemplate = template.Must(template.New("analyze_reply").Parse(`Certificate under review:
- Candidate: {{.Certificate.CandidateName}}
- Degree: {{.Certificate.DegreeName}}
- University: {{.Certificate.UniversityName}}
{{- if .Reply.ReferenceID}}
- Reference: {{.Reply.ReferenceID}}
{{- end}}

Reply received{{if .Reply.SenderEmail}} from {{.Reply.SenderEmail}}{{end}}:
"""
{{.Reply.Body}}
"""

Decide whether the reply confirms the credential. Respond with JSON:
{"verification_status": "VERIFIED" | "NOT_VERIFIED" | "INCONCLUSIVE",
 "confidence_score": number between 0 and 1,
 "key_phrases": [phrases quoted from the reply],
 "explanation": "one or two sentences"}`))

// LLM asks a Completer to read the reply and falls back to Keyword when the
// completion fails or cannot be decoded.
type LLM struct {
	completer ports.Completer
	logger    *slog.Logger
}

// LLMOption configures an LLM analyzer.
type LLMOption func(*LLM)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) LLMOption {
	return func(a *LLM) {
		a.logger = logger
	}
}

// NewLLM creates an LLM analyzer.
func NewLLM(c ports.Completer, opts ...LLMOption) *LLM {
	a := &LLM{completer: c, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type llmAnswer struct {
	Status      string   `json:"verification_status"`
	Confidence  *float64 `json:"confidence_score"`
	KeyPhrases  []string `json:"key_phrases"`
	Explanation string   `json:"explanation"`
}

// Analyze implements ports.ReplyAnalyzer. It never returns an error.
func (a *LLM) Analyze(ctx context.Context, reply domain.Reply, cert domain.Certificate) (domain.ReplyAnalysis, error) {
	analysis, err := a.analyze(ctx, reply, cert)
	if err != nil {
		a.logger.Warn("LLM reply analysis failed, using keyword fallback", "err", err)
		fb := keywordAnalysis(reply.Body)
		fb.Explanation = "Fallback keyword-based analysis (" + err.Error() + ")"
		return fb, nil
	}
	return analysis, nil
}

func (a *LLM) analyze(ctx context.Context, reply domain.Reply, cert domain.Certificate) (domain.ReplyAnalysis, error) {
	var prompt bytes.Buffer
	if err := promptTemplate.Execute(&prompt, struct {
		Reply       domain.Reply
		Certificate domain.Certificate
	}{reply, cert}); err != nil {
		return domain.ReplyAnalysis{}, fmt.Errorf("render prompt: %w", err)
	}

	raw, err := a.completer.Complete(ctx, systemPrompt, prompt.String())
	if err != nil {
		return domain.ReplyAnalysis{}, err
	}

	var ans llmAnswer
	if err := json.Unmarshal([]byte(stripFence(raw)), &ans); err != nil {
		return domain.ReplyAnalysis{}, fmt.Errorf("decode analysis: %w", err)
	}

	status, _ := domain.ParseVerificationStatus(ans.Status)
	confidence := 0.5
	if ans.Confidence != nil {
		confidence = min(max(*ans.Confidence, 0), 1)
	}
	explanation := ans.Explanation
	if explanation == "" {
		explanation = "Analysis completed"
	}
	phrases := ans.KeyPhrases
	if phrases == nil {
		phrases = []string{}
	}

	return domain.ReplyAnalysis{
		Status:      status,
		Confidence:  confidence,
		KeyPhrases:  phrases,
		Explanation: explanation,
	}, nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
