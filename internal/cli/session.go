package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/report"
)

// SessionReader is the read side of a Verifier.
type SessionReader interface {
	LoadSession(ctx context.Context, id string) ([]domain.StepRecord, error)
	SessionSummary(ctx context.Context, id string) (*domain.SessionSummary, error)
	ListSessions(ctx context.Context) ([]domain.SessionSummary, error)
}

// ListSessions prints ended sessions, most recent first.
func ListSessions(ctx context.Context, v SessionReader, w io.Writer) error {
	sums, err := v.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tENDED\tOUTCOME\tCOMPLIANCE\tSTEPS")
	for _, s := range sums {
		outcome, _ := s.FinalResult["outcome"].(string)
		compliance, _ := s.FinalResult["compliance_result"].(string)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", s.SessionID, s.EndedAt.Format(time.RFC3339), outcome, compliance, s.TotalSteps)
	}
	return tw.Flush()
}

// InspectSession prints a session's records as JSON, or as a Mermaid
// flowchart when mermaid is set.
func InspectSession(ctx context.Context, v SessionReader, id string, mermaid bool, w io.Writer) error {
	recs, err := v.LoadSession(ctx, id)
	if err != nil {
		return fmt.Errorf("error loading session '%s': %w", id, err)
	}
	if mermaid {
		_, err = io.WriteString(w, report.Flowchart(recs))
		return err
	}
	return writeIndented(w, recs)
}

// SessionSummary prints the summary written when the session ended.
func SessionSummary(ctx context.Context, v SessionReader, id string, w io.Writer) error {
	sum, err := v.SessionSummary(ctx, id)
	if err != nil {
		return fmt.Errorf("error loading summary '%s': %w", id, err)
	}
	return writeIndented(w, sum)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
