package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)

// ValidateSessionID rejects ids that cannot name a log in every store:
// they must start with a letter or digit and use only letters, digits, '_', '.', ':' and '-'.
// The returned error wraps ErrInvalidID.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// StepRecord is one entry of a session's audit log. Once persisted it is never modified.
type StepRecord struct {
	Sequence  int            `json:"sequence"`
	Step      string         `json:"step"` // zero-padded sequence + tag, e.g. "003_tool_analyze_reply"
	Tag       string         `json:"tag"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Agent     string         `json:"agent,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

// StepKey formats the lexically sortable step identifier.
func StepKey(sequence int, tag string) string {
	return fmt.Sprintf("%03d_%s", sequence, tag)
}

// TagOf strips the sequence prefix from a step identifier.
func TagOf(step string) string {
	if i := strings.IndexByte(step, '_'); i > 0 {
		return step[i+1:]
	}
	return step
}

// Session is the in-memory view of an open audit session.
type Session struct {
	ID        string
	StartedAt time.Time
	Counter   int
	Records   []StepRecord
	Ended     bool
}

// StepSummary is the per-step tuple kept in a SessionSummary.
type StepSummary struct {
	Step    string `json:"step"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
}

// SessionSummary is written once when a session ends.
type SessionSummary struct {
	SessionID   string         `json:"session_id"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
	TotalSteps  int            `json:"total_steps"`
	Success     bool           `json:"success"`
	FinalResult map[string]any `json:"final_result,omitempty"`
	Steps       []StepSummary  `json:"steps_summary"`
}

// Summarize builds the summary object for a finished record list.
func Summarize(s *Session, endedAt time.Time, success bool, final map[string]any) SessionSummary {
	steps := make([]StepSummary, len(s.Records))
	for i, r := range s.Records {
		steps[i] = StepSummary{Step: r.Step, Action: r.Action, Success: r.Success}
	}
	return SessionSummary{
		SessionID:   s.ID,
		StartedAt:   s.StartedAt,
		EndedAt:     endedAt,
		TotalSteps:  len(s.Records),
		Success:     success,
		FinalResult: final,
		Steps:       steps,
	}
}
