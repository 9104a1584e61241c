package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aretw0/attest/internal/cli"
	"github.com/aretw0/attest/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the Verifier to MCP clients through the run_decision, load_session,
list_sessions and list_tools tools and the attest://tools resource.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		app, err := loadApp(cmd, sigCtx)
		if err != nil {
			return err
		}
		defer app.Close(context.WithoutCancel(sigCtx))

		srv := mcp.NewServer(app.Verifier, mcp.WithContacts(app.Contacts), mcp.WithLogger(app.Logger))

		switch transport {
		case "stdio":
			// Keep stdout clean for JSON-RPC.
			log.SetOutput(os.Stderr)
			app.Logger.Info("Starting attest MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			return srv.ServeSSE(sigCtx, addr, "http://localhost"+addr)
		default:
			return fmt.Errorf("unknown transport %q (supported: stdio, sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringP("transport", "t", "stdio", "Transport: stdio or sse")
	mcpCmd.Flags().String("addr", ":8081", "Listen address for the sse transport")
}
