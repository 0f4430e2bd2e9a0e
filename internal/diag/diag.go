// Package diag is the diagnostic sink the allocators report through.
//
// A Sink is injected into every arena and pool via memory.Env; nothing in
// this module logs through a process-wide logger. Severities are ordered
// Verbose < Info < Warn < Error, and a Profile decides which of them reach
// the underlying sink.
package diag

import (
	"fmt"
	"strings"
)

// Severity orders diagnostic messages.
type Severity int

const (
	Verbose Severity = iota
	Info
	Warn
	Error
)

func (s Severity) String() string {
	switch s {
	case Verbose:
		return "verbose"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity converts a level name into a Severity
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "verbose", "debug", "trace":
		return Verbose, nil
	case "info":
		return Info, nil
	case "warn", "warning":
		return Warn, nil
	case "error":
		return Error, nil
	default:
		return Info, fmt.Errorf("invalid severity: %s", s)
	}
}

// Sink consumes severity-leveled diagnostic text.
type Sink interface {
	Log(sev Severity, msg string)
}

// FuncSink adapts a plain callback to Sink.
type FuncSink func(sev Severity, msg string)

func (f FuncSink) Log(sev Severity, msg string) { f(sev, msg) }

type nopSink struct{}

func (nopSink) Log(Severity, string) {}

// Nop returns a sink that drops everything.
func Nop() Sink { return nopSink{} }

// Logf formats and forwards a message. A nil sink is treated as Nop.
func Logf(s Sink, sev Severity, format string, args ...any) {
	if s == nil {
		return
	}
	s.Log(sev, fmt.Sprintf(format, args...))
}

// MinLevel drops everything below min.
func MinLevel(s Sink, min Severity) Sink {
	return FuncSink(func(sev Severity, msg string) {
		if sev >= min {
			s.Log(sev, msg)
		}
	})
}
