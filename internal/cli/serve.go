package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pathforge/pathforge/core"
	"github.com/pathforge/pathforge/internal/server"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the learning path API over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	addConfigFlags(cmd)
	cmd.Flags().String("addr", "", "Listen address (default: from config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	var extra []core.Option
	if addr != "" {
		extra = append(extra, core.WithHTTPAddr(addr))
	}
	app, err := buildApp(cmd, extra...)
	if err != nil {
		return err
	}

	opts := server.Options{
		Runner:   app.Orchestrator,
		Tools:    app.Registry,
		Breakers: app.Resilient,
		Defaults: app.Config.Pipeline,
		Config:   app.Config.HTTP,
		Version:  cmd.Root().Version,
		Logger:   app.Logger,
	}
	// A nil *RedisSink must not become a non-nil interface.
	if store := app.TraceStore(); store != nil {
		opts.Traces = store
	}
	srv, err := server.New(opts)
	if err != nil {
		return exitError(exitConfig, "creating server: %v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(app.Config.HTTP.Addr)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn("HTTP shutdown incomplete", map[string]interface{}{
			"operation": "serve",
			"error":     err.Error(),
		})
	}
	if err := app.Close(shutdownCtx); err != nil {
		app.Logger.Warn("Trace sink close incomplete", map[string]interface{}{
			"operation": "serve",
			"error":     err.Error(),
		})
	}

	if serveErr != nil {
		return exitError(exitRuntime, "server error: %v", serveErr)
	}
	return nil
}
