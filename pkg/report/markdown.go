package report

import (
	"fmt"
	"strings"
	"time"
)

// Markdown renders the report with a step table and a flowchart of the
// audit trail.
func (r *Report) Markdown() string {
	var b strings.Builder
	res := r.Result
	w := func(format string, args ...any) { fmt.Fprintf(&b, format, args...) }

	w("# Compliance Verification Report\n\n")
	w("- **Session:** `%s`\n", res.SessionID)
	w("- **Generated:** %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	w("## Decision\n\n")
	w("| Outcome | Compliance | Verification | Confidence |\n")
	w("|---|---|---|---|\n")
	w("| %s | **%s** | %s | %s |\n\n", res.Outcome, res.Compliance, res.Verification, percent(res.Confidence))
	w("> %s\n\n", cell(res.Explanation))

	if res.EscalatedToHuman {
		w("### Escalated to human review\n\n")
		w("- **Priority:** %s\n", res.EscalationPriority)
		w("- **Reason:** %s\n", res.EscalationReason)
		for _, ind := range res.RiskIndicators {
			w("- Risk: %s\n", ind)
		}
		w("\n")
	}
	if res.ClarificationNeeded {
		w("### Clarification needed\n\n")
		for _, m := range res.MissingInformation {
			w("- %s\n", m)
		}
		w("\n")
	}

	w("## Certificate\n\n")
	w("| Field | Value |\n|---|---|\n")
	w("| Candidate | %s |\n", cell(r.Certificate.CandidateName))
	w("| University | %s |\n", cell(r.Certificate.UniversityName))
	w("| Degree | %s |\n", cell(r.Certificate.DegreeName))
	w("| Issue date | %s |\n\n", cell(r.Certificate.IssueDate))

	if r.Contact != nil {
		w("## Contact\n\n%s <%s>", r.Contact.Name, r.Contact.Email)
		if r.Contact.VerificationDepartment != "" {
			w(", %s", r.Contact.VerificationDepartment)
		}
		w("\n\n")
	}

	if r.Reply != nil {
		w("## Reply\n\n")
		w("**From:** %s  \n**Subject:** %s\n\n", r.Reply.SenderEmail, r.Reply.Subject)
		for _, l := range strings.Split(r.Reply.Body, "\n") {
			w("> %s\n", l)
		}
		w("\n")
	}

	if a := res.ReplyAnalysis; a != nil {
		w("## Reply analysis\n\n")
		w("%s (%s): %s\n\n", a.Status, percent(a.Confidence), a.Explanation)
		if len(a.KeyPhrases) > 0 {
			w("Key phrases: `%s`\n\n", strings.Join(a.KeyPhrases, "`, `"))
		}
	}

	if len(res.ToolCallsMade) > 0 {
		w("## Tool calls\n\n")
		for i, name := range res.ToolCallsMade {
			w("%d. `%s`\n", i+1, name)
		}
		w("\n")
	}

	if len(res.AuditLog) > 0 {
		w("## Audit trail\n\n")
		w("| | Step | Action | Time |\n|---|---|---|---|\n")
		for _, rec := range res.AuditLog {
			w("| %s | `%s` | %s | %s |\n", mark(rec.Success), rec.Step, cell(rec.Action), rec.Timestamp.Format(time.RFC3339))
		}
		w("\n```mermaid\n%s```\n", Flowchart(res.AuditLog))
	}
	return b.String()
}

// cell keeps a value on one table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
