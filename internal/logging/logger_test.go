package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/slotarena/internal/metrics"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
		level  string
	}{
		{"JSON Info", "json", "info"},
		{"JSON Debug", "json", "debug"},
		{"JSON Error", "json", "error"},
		{"Text Info", "text", "info"},
		{"Console Warn", "console", "warn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(Config{Format: tt.format, Level: tt.level, Output: &buf})
			require.NoError(t, err)
			logger.Error().Msg("heartbeat")
			assert.Contains(t, buf.String(), "heartbeat")
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(Config{Format: "json", Level: "invalid"})
	assert.Error(t, err)
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Format: "json", Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")
	logger.Error().Msg("error message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Format: "json", Level: "info", Output: &buf})
	require.NoError(t, err)

	logger.Info().Str("arena", "frame").Msg("json test")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "json test", entry["message"])
	assert.Equal(t, "frame", entry["arena"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestDiscardLogger(t *testing.T) {
	logger := DiscardLogger()
	logger.Info().Msg("this should be discarded")
	logger.Error().Msg("this too")
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewLogger(Config{Format: "json", Level: "info", Output: &buf})
	require.NoError(t, err)

	child := base.With().Str("component", "pool").Logger()
	child.Info().Msg("message with component")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pool", entry["component"])
}

func TestLoggingMetrics(t *testing.T) {
	logger, err := NewLogger(Config{Format: "json", Level: "debug", Output: &bytes.Buffer{}})
	require.NoError(t, err)

	infoBefore := testutil.ToFloat64(metrics.LogEntriesTotal.WithLabelValues("info"))
	errorsBefore := testutil.ToFloat64(metrics.LogErrorsTotal)

	logger.Info().Msg("one")
	logger.Info().Msg("two")
	logger.Error().Msg("three")

	assert.Equal(t, infoBefore+2, testutil.ToFloat64(metrics.LogEntriesTotal.WithLabelValues("info")))
	assert.Equal(t, errorsBefore+1, testutil.ToFloat64(metrics.LogErrorsTotal))
}

func TestFilteredEntriesAreNotCounted(t *testing.T) {
	logger, err := NewLogger(Config{Format: "json", Level: "error", Output: &bytes.Buffer{}})
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.LogEntriesTotal.WithLabelValues("debug"))
	logger.Debug().Msg("filtered")
	assert.Equal(t, before, testutil.ToFloat64(metrics.LogEntriesTotal.WithLabelValues("debug")))
}

func TestNewZapLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(Config{Format: "json", Level: "warn", Output: &buf})
	require.NoError(t, err)

	warnBefore := testutil.ToFloat64(metrics.LogEntriesTotal.WithLabelValues("warn"))
	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
	assert.Equal(t, warnBefore+1, testutil.ToFloat64(metrics.LogEntriesTotal.WithLabelValues("warn")))

	_, err = NewZapLogger(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "info", cfg.Level)
	assert.NotNil(t, cfg.Output)
}
