package memory

import (
	"slices"

	"github.com/23skdu/slotarena/internal/diag"
	"github.com/23skdu/slotarena/internal/errors"
	"github.com/23skdu/slotarena/internal/metrics"
)

// Env carries what every arena and pool needs from its host: where
// diagnostics go, which profile filters them, and what happens to fatal
// contract violations. Children and pools inherit the Env of the arena they
// are built on.
type Env struct {
	sink    diag.Sink
	profile diag.Profile
	policy  errors.Policy
	metrics bool

	arenas []*Arena
	pools  []*Pool
}

// NewEnv filters sink through profile and picks the profile's fatal policy:
// Debug propagates fatal errors, Release exits.
func NewEnv(sink diag.Sink, profile diag.Profile) *Env {
	policy := errors.PolicyPropagate
	if profile.Terminates() {
		policy = errors.PolicyExit
	}
	return &Env{
		sink:    diag.Filter(sink, profile),
		profile: profile,
		policy:  policy,
	}
}

// DefaultEnv drops diagnostics and propagates fatal errors.
func DefaultEnv() *Env {
	return NewEnv(diag.Nop(), diag.Debug)
}

// WithPolicy overrides the fatal policy chosen by the profile.
func (e *Env) WithPolicy(p errors.Policy) *Env {
	e.policy = p
	return e
}

// WithMetrics turns Prometheus collection on or off.
func (e *Env) WithMetrics(enabled bool) *Env {
	e.metrics = enabled
	return e
}

func (e *Env) Profile() diag.Profile { return e.profile }
func (e *Env) Policy() errors.Policy { return e.policy }

func (e *Env) logf(sev diag.Severity, format string, args ...any) {
	diag.Logf(e.sink, sev, format, args...)
}

// fatal reports a contract violation and hands it to the policy.
func (e *Env) fatal(pool string, err *errors.StructuredError) error {
	e.logf(diag.Error, "%s", err.Error())
	if e.metrics && pool != "" {
		metrics.PoolFatalTotal.WithLabelValues(pool, string(err.Type)).Inc()
	}
	return e.policy.Handle(err)
}

func (e *Env) register(a *Arena) {
	e.prune()
	e.arenas = append(e.arenas, a)
}

func (e *Env) registerPool(p *Pool) {
	e.prune()
	e.pools = append(e.pools, p)
}

// prune forgets arenas and pools that can no longer serve allocations:
// released arenas, children of a cleared parent and the pools carved from
// either.
func (e *Env) prune() {
	e.arenas = slices.DeleteFunc(e.arenas, func(a *Arena) bool { return !a.Valid() })
	e.pools = slices.DeleteFunc(e.pools, func(p *Pool) bool { return !p.Valid() })
}

// Arenas returns a snapshot of the live arenas created against this Env.
func (e *Env) Arenas() []*Arena {
	e.prune()
	out := make([]*Arena, len(e.arenas))
	copy(out, e.arenas)
	return out
}

// Pools returns a snapshot of the live pools created against this Env.
func (e *Env) Pools() []*Pool {
	e.prune()
	out := make([]*Pool, len(e.pools))
	copy(out, e.pools)
	return out
}

// PrintDebug logs one line per live arena and pool at Info.
func (e *Env) PrintDebug() {
	e.prune()
	for _, a := range e.arenas {
		a.PrintDebug()
	}
	for _, p := range e.pools {
		p.PrintDebug()
	}
}

func envOrDefault(e *Env) *Env {
	if e == nil {
		return DefaultEnv()
	}
	return e
}
