package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve Prometheus metrics until interrupted",
		Long: `The serve command exposes /metrics on SLOTARENA_METRICS_ADDR (or
the address given as argument) until the process is interrupted.

Example:
  slotarena serve :9090`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			addr := cfg.MetricsAddr
			if len(args) == 1 {
				addr = args[0]
			}
			if addr == "" {
				return fmt.Errorf("no metrics address: set SLOTARENA_METRICS_ADDR or pass one")
			}
			logger := newLogger(cfg)
			logger.Info().Str("address", addr).Msg("Starting metrics server")
			return serveMetrics(cmd.Context(), addr)
		},
	}
}

// serveMetrics serves the default Prometheus registry on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
