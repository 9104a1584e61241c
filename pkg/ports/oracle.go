package ports

import (
	"context"

	"github.com/aretw0/attest/pkg/domain"
)

// ReasoningOracle proposes the next action for a conversation.
// Implementations own their retry policy; a returned error is final for the iteration.
type ReasoningOracle interface {
	ProposeNextAction(ctx context.Context, conv domain.Conversation, tools []domain.ToolDefinition, temperature float64) (domain.OracleResponse, error)
}

// Completer returns a single JSON completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ReplyAnalyzer reads an institution's reply in the context of the certificate under review.
type ReplyAnalyzer interface {
	Analyze(ctx context.Context, reply domain.Reply, cert domain.Certificate) (domain.ReplyAnalysis, error)
}
