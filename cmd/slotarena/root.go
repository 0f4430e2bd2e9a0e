package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/23skdu/slotarena/internal/config"
	"github.com/23skdu/slotarena/internal/diag"
	"github.com/23skdu/slotarena/internal/logging"
	"github.com/23skdu/slotarena/internal/memory"
)

var (
	// Global flags
	envFiles []string
	profile  string
	quiet    bool
	jsonOut  bool
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slotarena",
		Short: "Plan and exercise arena-backed slot pools",
		Long: `slotarena builds arenas and fixed-capacity slot pools from configuration,
reports their layout, and drives owner-style mark/sweep cycles against them.

Configuration is read from SLOTARENA_* environment variables and optional
.env files.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Optional .env files to load")
	cmd.PersistentFlags().StringVar(&profile, "profile", "", "Override SLOTARENA_PROFILE (debug or release)")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	cmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	return cmd
}

func execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return cfg, err
	}
	if profile != "" {
		cfg.Profile = profile
		if err := config.Validate(&cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// newSink builds the diagnostic sink for the configured log backend.
func newSink(cfg config.Config, out io.Writer) (diag.Sink, func(), error) {
	lc := logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Output: out}
	if cfg.LogBackend == "zap" {
		logger, err := logging.NewZapLogger(lc)
		if err != nil {
			return nil, nil, err
		}
		return diag.NewZapSink(logger, "memory"), func() { _ = logger.Sync() }, nil
	}
	logger, err := logging.NewLogger(lc)
	if err != nil {
		return nil, nil, err
	}
	return diag.NewZerologSink(logger, "memory"), func() {}, nil
}

// newEnv wires configuration, logging and the memory environment together.
func newEnv(cfg config.Config, out io.Writer) (*memory.Env, func(), error) {
	sink, flush, err := newSink(cfg, out)
	if err != nil {
		return nil, nil, err
	}
	env, err := cfg.Env(sink)
	if err != nil {
		return nil, nil, err
	}
	return env, flush, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	logger, err := logging.NewLogger(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Output: os.Stderr})
	if err != nil {
		return logging.DiscardLogger()
	}
	return logger
}

// printInfo prints an info message if not in quiet mode
func printInfo(w io.Writer, format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
