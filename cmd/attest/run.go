package main

import (
	"context"

	"github.com/aretw0/attest/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <case-file>",
	Short: "Decide one verification case",
	Long: `Reads a YAML or JSON case file (certificate, optional reply or reply_file
pointing at an .eml message, optional contact_found) and prints the compliance
report. The decision and every intermediate step are written to the audit log.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		maxIter, _ := cmd.Flags().GetInt("max-iterations")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		app, err := loadApp(cmd, sigCtx)
		if err != nil {
			return err
		}
		defer app.Close(context.WithoutCancel(sigCtx))

		return cli.RunCase(sigCtx, app, cli.RunOptions{
			CasePath:      args[0],
			Format:        format,
			MaxIterations: maxIter,
			Out:           cmd.OutOrStdout(),
			Err:           cmd.ErrOrStderr(),
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("format", "f", cli.FormatMarkdown, "Output format: markdown, text or json")
	runCmd.Flags().Int("max-iterations", 0, "Override the configured iteration cap")
}
