package domain

import "github.com/aretw0/attest/pkg/schema"

// Canonical tool names.
const (
	ToolAnalyzeReply         = "analyze_reply"
	ToolRequestClarification = "request_clarification"
	ToolEscalateToHuman      = "escalate_to_human"
	ToolDecideCompliance     = "decide_compliance"
)

// ToolDefinition describes a callable tool. Description is instruction text for
// the oracle; the engine never interprets it.
type ToolDefinition struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Parameters  schema.Object `json:"parameters" yaml:"-"`
	Terminal    bool          `json:"terminal" yaml:"terminal"`
}

// ToolCall is a tool invocation proposed by the oracle.
type ToolCall struct {
	ID        string         `json:"id,omitempty" mapstructure:"id"`
	Name      string         `json:"name" mapstructure:"name"`
	Args      map[string]any `json:"args,omitempty" mapstructure:"args"`
	ArgsError string         `json:"args_error,omitempty" mapstructure:"args_error"` // set when the oracle sent undecodable arguments
}

// ToolResult is the structured output of one dispatch.
type ToolResult struct {
	CallID   string         `json:"call_id,omitempty"`
	Name     string         `json:"name"`
	Output   map[string]any `json:"output,omitempty"`
	Terminal bool           `json:"terminal"`
	IsError  bool           `json:"is_error,omitempty"`
	Error    string         `json:"error,omitempty"`

	// Payload carries the typed value behind Output:
	// ReplyAnalysis, Clarification, Escalation or Verdict.
	Payload any `json:"-"`
}

// Clarification is the payload of request_clarification.
type Clarification struct {
	Reason             string   `json:"reason" mapstructure:"reason"`
	MissingInformation []string `json:"missing_information,omitempty" mapstructure:"missing_information"`
	SuggestedFollowUp  string   `json:"suggested_follow_up,omitempty" mapstructure:"suggested_follow_up"`
}

// Escalation is the payload of escalate_to_human.
type Escalation struct {
	Reason         string   `json:"reason" mapstructure:"reason"`
	Priority       string   `json:"priority" mapstructure:"priority"`
	RiskIndicators []string `json:"risk_indicators,omitempty" mapstructure:"risk_indicators"`
}

// Verdict is the payload of decide_compliance.
type Verdict struct {
	Status          ComplianceStatus `json:"status"`
	Confidence      float64          `json:"confidence_score"`
	Explanation     string           `json:"explanation"`
	EvidenceSummary string           `json:"evidence_summary,omitempty"`
	Coerced         bool             `json:"status_coerced,omitempty"`
}
