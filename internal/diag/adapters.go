package diag

import (
	"github.com/rs/zerolog"
	"go.uber.org/zap"
)

// ZerologSink forwards diagnostics to a zerolog logger. Verbose maps to debug.
type ZerologSink struct {
	logger zerolog.Logger
}

// NewZerologSink tags every entry with component=<component> when non-empty.
func NewZerologSink(logger zerolog.Logger, component string) *ZerologSink {
	if component != "" {
		logger = logger.With().Str("component", component).Logger()
	}
	return &ZerologSink{logger: logger}
}

func (s *ZerologSink) Log(sev Severity, msg string) {
	var ev *zerolog.Event
	switch sev {
	case Verbose:
		ev = s.logger.Debug()
	case Info:
		ev = s.logger.Info()
	case Warn:
		ev = s.logger.Warn()
	default:
		ev = s.logger.Error()
	}
	ev.Str("severity", sev.String()).Msg(msg)
}

// ZapSink forwards diagnostics to a zap logger. Verbose maps to debug.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger, component string) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if component != "" {
		logger = logger.With(zap.String("component", component))
	}
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Log(sev Severity, msg string) {
	switch sev {
	case Verbose:
		s.logger.Debug(msg)
	case Info:
		s.logger.Info(msg)
	case Warn:
		s.logger.Warn(msg)
	default:
		s.logger.Error(msg)
	}
}
