package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/attest/pkg/report"
)

// Output formats for decision results.
const (
	FormatMarkdown = "markdown"
	FormatText     = "text"
	FormatJSON     = "json"
)

// RunOptions contains the configuration for the run command.
type RunOptions struct {
	CasePath      string
	Format        string
	MaxIterations int
	Out           io.Writer
	Err           io.Writer
}

// RunCase decides one case file and writes the report. A durability failure
// still prints the report, flagged as unreliable, and is returned as the error.
func RunCase(ctx *SignalContext, app *App, opts RunOptions) error {
	c, err := LoadCase(opts.CasePath)
	if err != nil {
		return err
	}

	req, contact := c.Request(app.Contacts)
	if opts.MaxIterations > 0 {
		req.MaxIterations = opts.MaxIterations
	}

	res, runErr := app.Verifier.RunDecision(ctx, req)
	if res == nil {
		return runErr
	}
	if sig := ctx.Signal(); sig != nil {
		printSystemMessage(opts.Err, "Interrupted by %s; session %s sealed as %s.", sig, res.SessionID, res.Outcome)
	}
	if runErr != nil {
		printSystemMessage(opts.Err, "WARNING: audit trail for session %s is incomplete: %v", res.SessionID, runErr)
	}

	var ropts []report.Option
	if contact != nil {
		ropts = append(ropts, report.WithContact(*contact))
	}
	rep := report.New(res, c.Certificate, c.Reply, ropts...)

	switch opts.Format {
	case FormatJSON:
		enc := json.NewEncoder(opts.Out)
		enc.SetIndent("", "  ")
		err = enc.Encode(res)
	case FormatText:
		_, err = fmt.Fprintln(opts.Out, rep.Text())
	default:
		err = report.Render(opts.Out, rep.Markdown())
	}
	if err != nil {
		return err
	}
	return runErr
}
