package main

import (
	"context"

	"github.com/aretw0/attest/internal/cli"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Review audit sessions",
	Long:  `List ended sessions, replay their audit records, or print their summaries from the configured audit store.`,
}

// withApp runs fn against a freshly wired App and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *cli.App) error) error {
	sigCtx := cli.NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	app, err := loadApp(cmd, sigCtx)
	if err != nil {
		return err
	}
	defer app.Close(context.WithoutCancel(sigCtx))
	return fn(sigCtx, app)
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List ended sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.ListSessions(ctx, app.Verifier, cmd.OutOrStdout())
		})
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Replay the audit records of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mermaid, _ := cmd.Flags().GetBool("mermaid")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.InspectSession(ctx, app.Verifier, args[0], mermaid, cmd.OutOrStdout())
		})
	},
}

var sessionSummaryCmd = &cobra.Command{
	Use:   "summary <session-id>",
	Short: "Print the summary written when a session ended",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.SessionSummary(ctx, app.Verifier, args[0], cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionSummaryCmd)
	sessionInspectCmd.Flags().Bool("mermaid", false, "Print a Mermaid flowchart instead of JSON")
}
