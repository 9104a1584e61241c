package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/attest/pkg/domain"
)

// BuildResult reduces a loop Report to the caller-facing Result.
// Every Report yields a fully populated Result.
func BuildResult(sessionID string, rep Report) *domain.Result {
	res := &domain.Result{
		SessionID:     sessionID,
		Outcome:       outcomeKind(rep),
		Compliance:    domain.Inconclusive,
		Verification:  domain.Unverifiable,
		ToolCallsMade: append([]string{}, rep.ToolCalls...),
		Iterations:    rep.Iterations,
	}

	switch o := rep.Outcome.(type) {
	case domain.Decision:
		v := o.Verdict
		res.Compliance = v.Status
		res.Verification = v.Status.Verification()
		res.Confidence = v.Confidence
		res.Explanation = v.Explanation
		if rep.ShortCircuited {
			res.ShortCircuited = true
			break
		}
		// Downstream reporting always gets an analysis, even if analyze_reply never ran.
		phrases := []string{}
		if rep.Analysis != nil {
			phrases = append(phrases, rep.Analysis.KeyPhrases...)
		}
		res.ReplyAnalysis = &domain.ReplyAnalysis{
			Status:      res.Verification,
			Confidence:  v.Confidence,
			KeyPhrases:  phrases,
			Explanation: v.Explanation,
		}

	case domain.Escalated:
		e := o.Escalation
		res.Explanation = "ESCALATED: " + e.Reason
		res.EscalatedToHuman = true
		res.EscalationReason = e.Reason
		res.EscalationPriority = e.Priority
		res.RiskIndicators = append([]string{}, e.RiskIndicators...)

	case domain.ClarificationNeeded:
		c := o.Clarification
		res.Explanation = "CLARIFICATION NEEDED: " + c.Reason
		res.ClarificationNeeded = true
		res.MissingInformation = append([]string{}, c.MissingInformation...)

	case domain.Exhausted:
		res.Explanation = exhaustedExplanation(o)

	default:
		res.Outcome = domain.OutcomeExhausted
		res.Explanation = exhaustedExplanation(domain.Exhausted{})
	}
	return res
}

func exhaustedExplanation(e domain.Exhausted) string {
	var b strings.Builder
	b.WriteString("INCONCLUSIVE: loop ended without a decision")
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	b.WriteString(".")
	return b.String()
}
