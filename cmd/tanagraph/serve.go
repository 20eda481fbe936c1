package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HendryAvila/tanagraph/internal/server"
)

func newServeCmd(cl *cli) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := cl.open()
			if err != nil {
				return err
			}
			defer a.close()

			if metricsAddr == "" {
				metricsAddr = a.cfg.MetricsAddr
			}
			if metricsAddr != "" {
				stop := serveMetrics(a, metricsAddr)
				defer stop()
			}

			s := server.New(a.c)
			a.logger.Info("serving MCP over stdio",
				zap.String("version", server.Version),
				zap.String("source", a.cfg.SourcePath),
				zap.Bool("watch", a.c.Watcher != nil),
				zap.Bool("history", a.c.History != nil))

			// Graceful shutdown on interrupt.
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			stdio := mcpserver.NewStdioServer(s)
			err = stdio.Listen(ctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on host:port (default: configured metrics_addr)")
	return cmd
}

// serveMetrics exposes the collector on /metrics and returns a function
// that shuts the listener down.
func serveMetrics(a *app, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.c.Metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
