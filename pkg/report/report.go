// Package report renders a decision run as a compliance report for
// reviewers: a plain-text export, Markdown, and a terminal view.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/attest/pkg/contacts"
	"github.com/aretw0/attest/pkg/domain"
)

// Report gathers everything shown to a reviewer for one session.
type Report struct {
	GeneratedAt time.Time
	Certificate domain.Certificate
	Contact     *contacts.Contact
	Reply       *domain.Reply
	Result      *domain.Result
}

// Option configures a Report.
type Option func(*Report)

// WithContact adds the institution contact that was looked up.
func WithContact(c contacts.Contact) Option {
	return func(r *Report) { r.Contact = &c }
}

// WithClock overrides the generation timestamp.
func WithClock(now func() time.Time) Option {
	return func(r *Report) { r.GeneratedAt = now() }
}

// New builds a report. reply may be nil when no answer was received.
func New(res *domain.Result, cert domain.Certificate, reply *domain.Reply, opts ...Option) *Report {
	r := &Report{
		GeneratedAt: time.Now().UTC(),
		Certificate: cert,
		Reply:       reply,
		Result:      res,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const (
	heavyRule = "======================================================================"
	lightRule = "----------------------------------------------------------------------"
)

// Text is the plain export, suitable for e-mail or archival.
func (r *Report) Text() string {
	var b strings.Builder
	res := r.Result

	section := func(title string) {
		b.WriteString(lightRule + "\n" + title + "\n" + lightRule + "\n")
	}
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	line(heavyRule)
	line("COMPLIANCE VERIFICATION REPORT")
	line(heavyRule)
	line("")
	line("Session ID: %s", res.SessionID)
	line("Generated: %s", r.GeneratedAt.Format(time.RFC3339))
	line("")

	section("FINAL DECISION")
	line("Outcome: %s", res.Outcome)
	line("Compliance Result: %s", res.Compliance)
	line("Verification Status: %s", res.Verification)
	line("Confidence: %s", percent(res.Confidence))
	line("")
	line("Explanation:")
	line("%s", res.Explanation)
	line("")

	if res.EscalatedToHuman {
		section("ESCALATION")
		line("Priority: %s", res.EscalationPriority)
		line("Reason: %s", res.EscalationReason)
		if len(res.RiskIndicators) > 0 {
			line("Risk Indicators: %s", strings.Join(res.RiskIndicators, ", "))
		}
		line("")
	}
	if res.ClarificationNeeded {
		section("CLARIFICATION NEEDED")
		if len(res.MissingInformation) > 0 {
			line("Missing Information: %s", strings.Join(res.MissingInformation, ", "))
		}
		line("")
	}

	section("CERTIFICATE INFORMATION")
	line("Candidate: %s", r.Certificate.CandidateName)
	line("University: %s", r.Certificate.UniversityName)
	line("Degree: %s", r.Certificate.DegreeName)
	line("Issue Date: %s", r.Certificate.IssueDate)
	line("")

	if r.Contact != nil {
		section("UNIVERSITY CONTACT")
		line("Name: %s", r.Contact.Name)
		line("Email: %s", r.Contact.Email)
		line("Department: %s", r.Contact.VerificationDepartment)
		line("")
	}

	if r.Reply != nil {
		section("UNIVERSITY REPLY")
		line("From: %s", r.Reply.SenderEmail)
		line("Subject: %s", r.Reply.Subject)
		if r.Reply.ReferenceID != "" {
			line("Reference: %s", r.Reply.ReferenceID)
		}
		line("")
		line("Body:")
		line("%s", r.Reply.Body)
		line("")
	}

	if a := res.ReplyAnalysis; a != nil {
		section("ANALYSIS OF REPLY")
		line("Status: %s", a.Status)
		line("Confidence: %s", percent(a.Confidence))
		line("Key Phrases: %s", strings.Join(a.KeyPhrases, ", "))
		line("Explanation: %s", a.Explanation)
		line("")
	}

	section("TOOL CALLS")
	if len(res.ToolCallsMade) == 0 {
		line("(none)")
	}
	for i, name := range res.ToolCallsMade {
		line("%d. %s", i+1, name)
	}
	line("")

	section("AUDIT TRAIL")
	for _, rec := range res.AuditLog {
		line("%s [%s] %s: %s", mark(rec.Success), rec.Timestamp.Format(time.RFC3339), rec.Step, rec.Action)
	}
	line("")
	line(heavyRule)
	line("END OF REPORT")
	b.WriteString(heavyRule)
	return b.String()
}

func percent(f float64) string {
	return fmt.Sprintf("%.0f%%", f*100)
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
