// Package logging builds the process loggers from configuration. Every
// logger it returns counts its entries into Prometheus.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/23skdu/slotarena/internal/metrics"
)

// Config holds logger configuration options
type Config struct {
	// Format specifies the log output format: "json" or "text"
	Format string
	// Level specifies the minimum log level: "debug", "info", "warn", "error"
	Level string
	// Output specifies where logs are written (defaults to os.Stdout)
	Output io.Writer
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Format: "json",
		Level:  "info",
		Output: os.Stdout,
	}
}

// NewLogger creates a zerolog logger based on the provided configuration
func NewLogger(cfg Config) (zerolog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05.000"}
	}

	logger := zerolog.New(output).
		Level(level).
		Hook(metricsHook{}).
		With().
		Timestamp().
		Logger()
	return logger, nil
}

// DiscardLogger returns a logger that discards all output (useful for tests)
func DiscardLogger() zerolog.Logger {
	return zerolog.Nop()
}

// parseLevel converts a string level to zerolog.Level
func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// metricsHook counts every entry that passes the level filter.
type metricsHook struct{}

func (metricsHook) Run(_ *zerolog.Event, level zerolog.Level, _ string) {
	metrics.LogEntriesTotal.WithLabelValues(level.String()).Inc()
	if level >= zerolog.ErrorLevel && level < zerolog.NoLevel {
		metrics.LogErrorsTotal.Inc()
	}
}
