package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/malbeclabs/mindlake/api/handlers"
	"github.com/malbeclabs/mindlake/api/metrics"
	"github.com/spf13/cobra"
)

const (
	defaultReadHeaderTimeout = 30 * time.Second
	defaultShutdownTimeout   = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversational HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, os.Stdout)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, log, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := handlers.New(handlers.Config{
				Logger:             log,
				Pipeline:           a.pipeline,
				SessionTTL:         cfg.Server.SessionTTL,
				MemoryPolicy:       a.memoryPolicy(),
				MaxConcurrentTurns: cfg.Server.MaxConcurrentTurns,
				AllowedOrigins:     cfg.Server.AllowedOrigins,
			})
			if err != nil {
				return err
			}
			defer srv.Close()

			metricsServerErrCh := make(chan error, 1)
			if cfg.Server.MetricsAddr != "" {
				metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
				go func() {
					listener, err := net.Listen("tcp", cfg.Server.MetricsAddr)
					if err != nil {
						log.Error("failed to start prometheus metrics server listener", "error", err)
						metricsServerErrCh <- err
						return
					}
					log.Info("prometheus metrics server listening", "address", listener.Addr().String())
					mux := http.NewServeMux()
					mux.Handle("/metrics", metrics.Handler())
					if err := http.Serve(listener, mux); err != nil {
						metricsServerErrCh <- err
					}
				}()
			}

			listener, err := net.Listen("tcp", cfg.Server.ListenAddr)
			if err != nil {
				return fmt.Errorf("failed to create HTTP listener: %w", err)
			}
			httpServer := &http.Server{
				Handler:           srv,
				ReadHeaderTimeout: defaultReadHeaderTimeout,
			}

			serverErrCh := make(chan error, 1)
			go func() {
				log.Info("server: listening", "address", listener.Addr().String())
				if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErrCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				log.Info("server: shutting down", "reason", ctx.Err())
			case err := <-serverErrCh:
				log.Error("server: server error causing shutdown", "error", err)
				return err
			case err := <-metricsServerErrCh:
				log.Error("server: metrics server error causing shutdown", "error", err)
				return err
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			log.Info("server: stopped gracefully")
			return nil
		},
	}
}
