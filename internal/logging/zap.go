package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/23skdu/slotarena/internal/metrics"
)

// NewZapLogger creates a zap logger from the same configuration vocabulary
// as NewLogger, for hosts that already run zap.
func NewZapLogger(cfg Config) (*zap.Logger, error) {
	level, err := parseZapLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	output := zapcore.AddSync(DefaultConfig().Output)
	if cfg.Output != nil {
		output = zapcore.AddSync(cfg.Output)
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := &metricsHookCore{Core: zapcore.NewCore(encoder, output, level)}
	return zap.New(core, zap.AddCaller()), nil
}

func parseZapLevel(level string) (zapcore.Level, error) {
	zl, err := parseLevel(level)
	if err != nil {
		return zapcore.InfoLevel, err
	}
	switch zl.String() {
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, nil
	}
}

// metricsHookCore wraps a zapcore.Core to add Prometheus metrics
type metricsHookCore struct {
	zapcore.Core
}

//nolint:gocritic // hugeParam: interface requires value receiver
func (c *metricsHookCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

//nolint:gocritic // hugeParam: interface requires value receiver
func (c *metricsHookCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	metrics.LogEntriesTotal.WithLabelValues(entry.Level.String()).Inc()
	if entry.Level >= zapcore.ErrorLevel {
		metrics.LogErrorsTotal.Inc()
	}
	return c.Core.Write(entry, fields)
}

func (c *metricsHookCore) With(fields []zapcore.Field) zapcore.Core {
	return &metricsHookCore{Core: c.Core.With(fields)}
}
