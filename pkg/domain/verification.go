package domain

import (
	"strings"
	"time"
)

// ComplianceStatus is the final verdict vocabulary.
type ComplianceStatus string

const (
	Compliant    ComplianceStatus = "COMPLIANT"
	NotCompliant ComplianceStatus = "NOT_COMPLIANT"
	Inconclusive ComplianceStatus = "INCONCLUSIVE"
)

// ParseComplianceStatus reports whether s is exactly one of the known statuses.
// Anything else, including a differently cased or padded name, is Inconclusive.
func ParseComplianceStatus(s string) (ComplianceStatus, bool) {
	switch st := ComplianceStatus(s); st {
	case Compliant, NotCompliant, Inconclusive:
		return st, true
	}
	return Inconclusive, false
}

// Verification maps a compliance status to the matching reply verification status.
func (c ComplianceStatus) Verification() VerificationStatus {
	switch c {
	case Compliant:
		return Verified
	case NotCompliant:
		return NotVerified
	}
	return Unverifiable
}

// VerificationStatus describes what the institution's reply says about the credential.
type VerificationStatus string

const (
	Verified     VerificationStatus = "VERIFIED"
	NotVerified  VerificationStatus = "NOT_VERIFIED"
	Unverifiable VerificationStatus = "INCONCLUSIVE"
)

// ParseVerificationStatus reports whether s names a known verification status.
func ParseVerificationStatus(s string) (VerificationStatus, bool) {
	switch st := VerificationStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case Verified, NotVerified, Unverifiable:
		return st, true
	}
	return Unverifiable, false
}

// TaskStatus tracks a verification request handled by a hosting surface.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
)

// Certificate holds the fields extracted from the credential under review.
type Certificate struct {
	CandidateName  string `json:"candidate_name" yaml:"candidate_name" mapstructure:"candidate_name"`
	UniversityName string `json:"university_name" yaml:"university_name" mapstructure:"university_name"`
	DegreeName     string `json:"degree_name" yaml:"degree_name" mapstructure:"degree_name"`
	IssueDate      string `json:"issue_date" yaml:"issue_date" mapstructure:"issue_date"`
}

// Reply is the issuing institution's answer to a verification request.
type Reply struct {
	ID          string    `json:"id,omitempty" yaml:"id,omitempty"`
	SenderEmail string    `json:"sender_email" yaml:"sender_email"`
	SenderName  string    `json:"sender_name" yaml:"sender_name"`
	Subject     string    `json:"subject" yaml:"subject"`
	Body        string    `json:"body" yaml:"body"`
	ReferenceID string    `json:"reference_id" yaml:"reference_id"`
	ReceivedAt  time.Time `json:"received_at,omitempty" yaml:"received_at,omitempty"`
}

// ReplyAnalysis is the structured reading of a reply.
type ReplyAnalysis struct {
	Status      VerificationStatus `json:"verification_status"`
	Confidence  float64            `json:"confidence_score"`
	KeyPhrases  []string           `json:"key_phrases"`
	Explanation string             `json:"explanation"`
}

// Result is the caller-facing outcome of one decision run.
type Result struct {
	SessionID           string             `json:"session_id"`
	Outcome             OutcomeKind        `json:"outcome"`
	Compliance          ComplianceStatus   `json:"compliance_result"`
	Verification        VerificationStatus `json:"verification_status"`
	Confidence          float64            `json:"confidence_score"`
	Explanation         string             `json:"explanation"`
	ReplyAnalysis       *ReplyAnalysis     `json:"reply_analysis,omitempty"`
	ToolCallsMade       []string           `json:"tool_calls_made"`
	Iterations          int                `json:"iterations"`
	ShortCircuited      bool               `json:"short_circuited,omitempty"`
	EscalatedToHuman    bool               `json:"escalated_to_human"`
	EscalationReason    string             `json:"escalation_reason,omitempty"`
	EscalationPriority  string             `json:"escalation_priority,omitempty"`
	RiskIndicators      []string           `json:"risk_indicators,omitempty"`
	ClarificationNeeded bool               `json:"clarification_needed"`
	MissingInformation  []string           `json:"missing_information,omitempty"`
	AuditLog            []StepRecord       `json:"audit_log,omitempty"`
}

// Summary returns the compact map stored as a session's final result.
func (r *Result) Summary() map[string]any {
	m := map[string]any{
		"outcome":             string(r.Outcome),
		"compliance_result":   string(r.Compliance),
		"verification_status": string(r.Verification),
		"confidence_score":    r.Confidence,
		"explanation":         r.Explanation,
		"tool_calls_made":     append([]string{}, r.ToolCallsMade...),
		"iterations":          r.Iterations,
	}
	if r.EscalatedToHuman {
		m["escalated_to_human"] = true
		m["escalation_priority"] = r.EscalationPriority
	}
	if r.ClarificationNeeded {
		m["clarification_needed"] = true
	}
	return m
}
