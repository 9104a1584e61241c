package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aretw0/attest"
	"github.com/aretw0/attest/internal/cli"
	"github.com/aretw0/attest/internal/presentation/tui"
	httpAdapter "github.com/aretw0/attest/pkg/adapters/http"
	"github.com/aretw0/attest/pkg/report"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves decisions, session review, the tool catalog, the OpenAPI document
and Prometheus metrics over HTTP. On SIGINT or SIGTERM in-flight requests are
drained and the Verifier is closed before exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		app, err := loadApp(cmd, sigCtx)
		if err != nil {
			return err
		}
		addr := app.Config.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		handler, err := httpAdapter.NewHandler(sigCtx, app.Verifier,
			httpAdapter.WithContacts(app.Contacts),
			httpAdapter.WithMetricsHandler(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})),
			httpAdapter.WithLogger(app.Logger),
		)
		if err != nil {
			_ = app.Close(context.Background())
			return err
		}
		srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

		if report.IsTerminal(cmd.OutOrStdout()) {
			tui.PrintBanner(cmd.OutOrStdout(), attest.Version)
		}

		g, ctx := errgroup.WithContext(sigCtx)
		g.Go(func() error {
			app.Logger.Info("Attest server listening", "address", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			app.Logger.Info("Shutting down", "signal", sigCtx.Signal())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
			defer cancel()
			// In-flight decisions seal their sessions before the Verifier closes.
			shutErr := srv.Shutdown(shutdownCtx)
			return errors.Join(shutErr, app.Close(shutdownCtx))
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Listen address (overrides server.addr)")
}
