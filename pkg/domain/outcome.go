package domain

// OutcomeKind names the terminal state of a decision run.
type OutcomeKind string

const (
	OutcomeDecision      OutcomeKind = "decision"
	OutcomeEscalation    OutcomeKind = "escalation"
	OutcomeClarification OutcomeKind = "clarification"
	OutcomeExhausted     OutcomeKind = "exhausted"
	OutcomeShortCircuit  OutcomeKind = "short_circuit"
)

// Outcome is the loop's terminal state. It is produced exactly once per run.
type Outcome interface {
	Kind() OutcomeKind
}

// Decision ends the loop with a verdict from decide_compliance.
type Decision struct {
	Verdict Verdict
}

// Escalated ends the loop with a hand-off to manual review.
type Escalated struct {
	Escalation Escalation
}

// ClarificationNeeded ends the loop without a terminal tool while a
// clarification request is pending.
type ClarificationNeeded struct {
	Clarification Clarification
}

// Exhausted ends the loop without any decision.
type Exhausted struct {
	Reason string
	Err    error
}

func (Decision) Kind() OutcomeKind            { return OutcomeDecision }
func (Escalated) Kind() OutcomeKind           { return OutcomeEscalation }
func (ClarificationNeeded) Kind() OutcomeKind { return OutcomeClarification }
func (Exhausted) Kind() OutcomeKind           { return OutcomeExhausted }
