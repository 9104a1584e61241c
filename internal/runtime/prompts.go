package runtime

import (
	"bytes"
	"text/template"

	"github.com/aretw0/attest/pkg/domain"
)

// Instruction is the fixed system turn that opens every conversation.
const Instruction = `You are a compliance decision agent. You read replies from universities to ` +
	`academic credential verification requests and decide whether the credential is compliant.

Tools:
- analyze_reply: read the reply closely before deciding
- request_clarification: mark the reply as incomplete or unclear
- escalate_to_human: hand suspicious or complex cases to a compliance officer
- decide_compliance: record the final compliance decision

Rules:
- A clear confirmation or denial may be decided directly with decide_compliance.
- Analyze ambiguous replies first.
- If the sender's email domain does not belong to the university, escalate.
- Escalate suspected fraud with HIGH or CRITICAL priority.
- Cite evidence from the reply when you decide.

Calling decide_compliance or escalate_to_human ends the session.`

var contextTemplate = template.Must(template.New("context").Parse(`Review this verification reply and reach a compliance decision.

## Certificate
- Candidate: {{.Certificate.CandidateName}}
- University: {{.Certificate.UniversityName}}
- Degree: {{.Certificate.DegreeName}}
- Issue date: {{.Certificate.IssueDate}}

## Reply
- From: {{.Reply.SenderEmail}}{{if .Reply.SenderName}} ({{.Reply.SenderName}}){{end}}
- Subject: {{.Reply.Subject}}
- Reference: {{.Reply.ReferenceID}}

### Body
{{.Reply.Body}}

---
Decide directly when the reply clearly confirms or denies the credential. Otherwise analyze it further, ask for clarification or escalate.`))

// ContextMessage renders the user turn describing the case. The reply body is
// included verbatim.
func ContextMessage(cert domain.Certificate, reply domain.Reply) (string, error) {
	var buf bytes.Buffer
	err := contextTemplate.Execute(&buf, struct {
		Certificate domain.Certificate
		Reply       domain.Reply
	}{cert, reply})
	return buf.String(), err
}
