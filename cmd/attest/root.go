package main

import (
	"fmt"
	"os"

	"github.com/aretw0/attest/internal/cli"
	"github.com/aretw0/attest/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "attest",
	Short: "Attest decides credential verification cases with an auditable reasoning loop",
	Long: `Attest reads an institution's reply to a credential verification request,
lets a reasoning oracle choose among a fixed set of tools, and records every
step in an append-only audit log before returning a compliance decision.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (ATTEST_* variables override it)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log at debug level and trace loop events")
}

// loadApp reads configuration and wires the Verifier for a command.
func loadApp(cmd *cobra.Command, ctx *cli.SignalContext) (*cli.App, error) {
	path, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := cli.NewLogger(cfg, debug)
	if err != nil {
		return nil, err
	}
	return cli.Build(ctx, cfg, logger, debug)
}
