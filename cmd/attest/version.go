package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/attest"
	"github.com/aretw0/attest/internal/presentation/tui"
	"github.com/aretw0/attest/pkg/report"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of attest",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if report.IsTerminal(out) {
			tui.PrintBanner(out, strings.TrimSpace(attest.Version))
			return
		}
		fmt.Fprintf(out, "attest version %s\n", strings.TrimSpace(attest.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
