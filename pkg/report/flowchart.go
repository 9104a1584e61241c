package report

import (
	"fmt"
	"strings"

	"github.com/aretw0/attest/pkg/domain"
)

// Flowchart produces a Mermaid flowchart of an audit trail. Shapes follow
// the step kind:
// - session start/end: ((Circle))
// - tool dispatch: [[Subroutine]]
// - oracle turn: [/Parallelogram/]
// - anything else: [Rectangle]
// Failed steps are styled red.
func Flowchart(records []domain.StepRecord) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var failed []string
	prev := ""
	for _, rec := range records {
		id := mermaidID(rec.Step)
		tag := rec.Tag
		if tag == "" {
			tag = domain.TagOf(rec.Step)
		}

		opener, closer := "[", "]"
		switch {
		case tag == "session_start" || tag == "session_end":
			opener, closer = "((", "))"
		case strings.HasPrefix(tag, "tool_"):
			opener, closer = "[[", "]]"
		case strings.HasPrefix(tag, "oracle_"):
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", id, opener, strings.ReplaceAll(tag, "\"", "'"), closer)

		if prev != "" {
			fmt.Fprintf(&sb, "    %s --> %s\n", prev, id)
		}
		prev = id
		if !rec.Success {
			failed = append(failed, id)
		}
	}

	if len(failed) > 0 {
		sb.WriteString("    classDef failed fill:#fee2e2,stroke:#dc2626,color:#7f1d1d\n")
		fmt.Fprintf(&sb, "    class %s failed\n", strings.Join(failed, ","))
	}
	return sb.String()
}

func mermaidID(step string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_", ":", "_")
	return "s" + r.Replace(step)
}
