package diag

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimitedSink drops messages below Error once the token bucket is empty.
// Repeated soft failures (an arena running dry inside a loop) would otherwise
// flood the output.
type RateLimitedSink struct {
	next    Sink
	limiter *rate.Limiter
	dropped atomic.Int64
}

// RateLimited wraps next. rps <= 0 disables limiting and returns next unchanged.
func RateLimited(next Sink, rps float64, burst int) Sink {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &RateLimitedSink{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (s *RateLimitedSink) Log(sev Severity, msg string) {
	if sev < Error && !s.limiter.Allow() {
		s.dropped.Add(1)
		return
	}
	s.next.Log(sev, msg)
}

// Dropped returns how many messages were suppressed so far.
func (s *RateLimitedSink) Dropped() int64 {
	return s.dropped.Load()
}
