package memory

import (
	"fmt"
	"unsafe"

	"github.com/23skdu/slotarena/internal/diag"
	"github.com/23skdu/slotarena/internal/errors"
	"github.com/23skdu/slotarena/internal/metrics"
)

// Arena is a linear bump allocator over one fixed buffer.
//
// Allocation advances a cursor; the only way to reclaim memory is Clear,
// which rewinds the cursor and invalidates everything handed out so far.
// Free is a deliberate no-op. An arena is not safe for concurrent use.
//
// A child arena carved with Construct borrows its buffer from the parent.
// The borrow is tied to the parent's epoch: once the parent is cleared or
// released every operation on the child fails with errors.ErrInvalidated.
type Arena struct {
	name   string
	buf    []byte
	cursor int
	env    *Env

	// epoch moves on Clear and Release; dependents compare against it.
	epoch    uint64
	released bool
	backing  Backing
	release  func() error

	parent      *Arena
	parentEpoch uint64
}

// Option configures NewArena.
type Option func(*arenaOptions)

type arenaOptions struct {
	env     *Env
	backing Backing
}

// WithEnv sets the diagnostic environment. Defaults to DefaultEnv().
func WithEnv(env *Env) Option {
	return func(o *arenaOptions) { o.env = env }
}

// WithBacking selects heap or mmap storage. Defaults to BackingHeap.
func WithBacking(b Backing) Option {
	return func(o *arenaOptions) { o.backing = b }
}

// NewArena acquires a fresh zeroed buffer of capacity bytes. name is also the
// metrics label: arenas sharing a name, and pools sharing arena and type tag,
// report into the same series.
// Failing to obtain the buffer from the system is fatal and goes through the
// Env's policy.
func NewArena(capacity int, name string, opts ...Option) (*Arena, error) {
	o := arenaOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	env := envOrDefault(o.env)

	if capacity <= 0 {
		err := errors.Newf(errors.ErrorTypeInvalidArgument, "arena.init", name, "capacity must be positive, got %d", capacity)
		env.logf(diag.Error, "%s", err.Error())
		return nil, err
	}

	buf, release, err := acquireBuffer(capacity, o.backing)
	if err != nil {
		return nil, env.fatal("", errors.Wrap(err, errors.ErrorTypeOutOfCapacity, "arena.init", name, "system allocation failed").AsFatal())
	}

	a := &Arena{
		name:    name,
		buf:     buf,
		env:     env,
		backing: o.backing,
		release: release,
	}
	env.register(a)
	if env.metrics {
		metrics.ArenaCapacityBytes.WithLabelValues(name).Set(float64(capacity))
		metrics.ArenaUsedBytes.WithLabelValues(name).Set(0)
	}
	env.logf(diag.Verbose, "init memory %d '%s' (%s)", capacity, name, o.backing)
	return a, nil
}

// Construct carves a zeroed region of size bytes from a and returns a child
// arena over it. The child owns nothing: its memory goes away with a's next
// Clear or Release.
func (a *Arena) Construct(size int, name string) (*Arena, error) {
	if a == nil {
		return nil, errors.NewInvalidArgument("arena.construct", name, "nil parent arena")
	}
	buf, err := a.Calloc(size, name)
	if err != nil {
		return nil, err
	}
	if buf == nil {
		err := errors.NewInvalidArgument("arena.construct", name, "child arena size must be positive")
		a.env.logf(diag.Error, "%s", err.Error())
		return nil, err
	}

	child := &Arena{
		name:        name,
		buf:         buf,
		env:         a.env,
		release:     func() error { return nil },
		parent:      a,
		parentEpoch: a.epoch,
	}
	a.env.register(child)
	if a.env.metrics {
		metrics.ArenaCapacityBytes.WithLabelValues(name).Set(float64(size))
		metrics.ArenaUsedBytes.WithLabelValues(name).Set(0)
	}
	a.env.logf(diag.Info, "prepare memory %d '%s/%s'", size, a.name, name)
	return child, nil
}

// Alloc hands out the next size bytes. The returned slice is capped at size
// so appends cannot spill into neighbouring allocations.
//
// size == 0 returns (nil, nil). Running out of room is a soft failure: it is
// logged at Warn, the cursor does not move and errors.ErrOutOfCapacity is
// returned; a smaller request may still succeed afterwards. A nil arena has
// no Env to report through, so it returns errors.ErrInvalidArgument without
// logging anything.
func (a *Arena) Alloc(size int, description string) ([]byte, error) {
	return a.alloc(size, description, diag.Warn, 1)
}

// Calloc is Alloc followed by zero-filling the region. Failures log at Error.
func (a *Arena) Calloc(size int, description string) ([]byte, error) {
	b, err := a.alloc(size, description, diag.Error, 1)
	if b != nil {
		clear(b)
	}
	return b, err
}

func (a *Arena) alloc(size int, description string, failSev diag.Severity, skip int) ([]byte, error) {
	if a == nil {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument, "arena.alloc", "", "nil arena (%d bytes '%s')", size, description)
	}
	if size == 0 {
		return nil, nil
	}
	if err := a.usable("arena.alloc"); err != nil {
		a.env.logf(diag.Error, "null memory %d %s '%s': %v", size, callerSite(skip+1), description, err)
		a.countFailure("released")
		return nil, err
	}
	if size < 0 {
		err := errors.Newf(errors.ErrorTypeInvalidArgument, "arena.alloc", a.name, "negative size %d '%s'", size, description)
		a.env.logf(diag.Error, "%s", err.Error())
		return nil, err
	}
	if size > len(a.buf)-a.cursor {
		err := errors.Newf(errors.ErrorTypeOutOfCapacity, "arena.alloc", a.name,
			"out of memory %d %s '%s' (%d/%d)", size, callerSite(skip+1), description, a.cursor, len(a.buf))
		a.env.logf(failSev, "%s", err.Error())
		a.countFailure("capacity")
		return nil, err
	}

	start := a.cursor
	a.cursor += size
	a.observe()
	return a.buf[start:a.cursor:a.cursor], nil
}

// allocAligned pads the cursor so the region's address is a multiple of align
// before carving size zeroed bytes. Child arenas can start anywhere in their
// parent, so the padding is computed from the address, not the offset.
func (a *Arena) allocAligned(size, align int, description string) ([]byte, error) {
	if a == nil {
		return nil, errors.NewInvalidArgument("arena.alloc", "", "nil arena")
	}
	if err := a.usable("arena.alloc"); err != nil {
		a.env.logf(diag.Error, "null memory %d '%s': %v", size, description, err)
		return nil, err
	}
	base := int(uintptr(unsafe.Pointer(unsafe.SliceData(a.buf))) & uintptr(align-1))
	pad := alignUp(base+a.cursor, align) - (base + a.cursor)
	if pad > len(a.buf)-a.cursor {
		pad = len(a.buf) - a.cursor
	}
	saved := a.cursor
	a.cursor += pad
	b, err := a.alloc(size, description, diag.Error, 2)
	if err != nil || b == nil {
		a.cursor = saved
		a.observe()
		return nil, err
	}
	clear(b)
	return b, nil
}

// Free is intentionally a no-op. Arena memory is only reclaimed in bulk by Clear.
func (a *Arena) Free(b []byte) {}

// Clear rewinds the cursor. Every region handed out before becomes invalid,
// and so do child arenas and pools built on a. Nothing is scrubbed.
func (a *Arena) Clear() {
	if a == nil {
		return
	}
	a.cursor = 0
	a.epoch++
	if a.env.metrics {
		metrics.ArenaClearsTotal.WithLabelValues(a.name).Inc()
	}
	a.observe()
	a.env.logf(diag.Verbose, "clear memory '%s'", a.name)
}

// Release gives a fresh arena's buffer back to the system. For a child arena
// it only detaches the view. The arena is unusable afterwards.
func (a *Arena) Release() error {
	if a == nil || a.released {
		return nil
	}
	a.released = true
	a.epoch++
	a.cursor = 0
	var err error
	if a.release != nil {
		err = a.release()
	}
	a.buf = nil
	a.observe()
	return err
}

// Trim returns the whole pages above the cursor of an mmap-backed arena to
// the OS. Heap-backed and child arenas are left untouched.
func (a *Arena) Trim() error {
	if a == nil || a.parent != nil || a.usable("arena.trim") != nil {
		return nil
	}
	if a.backing != BackingMmap {
		return nil
	}
	return adviseFree(a.buf, a.cursor)
}

// usable reports why a cannot serve allocations, or nil.
func (a *Arena) usable(op string) error {
	if a.released || a.buf == nil {
		return errors.New(errors.ErrorTypeInvalidated, op, a.name, "memory is null")
	}
	if a.parent != nil {
		if a.parent.epoch != a.parentEpoch {
			return errors.Newf(errors.ErrorTypeInvalidated, op, a.name, "parent '%s' was cleared or released", a.parent.name)
		}
		if err := a.parent.usable(op); err != nil {
			return err
		}
	}
	return nil
}

// Valid reports whether a can still serve allocations.
func (a *Arena) Valid() bool {
	return a != nil && a.usable("arena.valid") == nil
}

func (a *Arena) Name() string   { return a.name }
func (a *Arena) Used() int      { return a.cursor }
func (a *Arena) Capacity() int  { return len(a.buf) }
func (a *Arena) Remaining() int { return len(a.buf) - a.cursor }
func (a *Arena) Parent() *Arena { return a.parent }
func (a *Arena) Env() *Env      { return a.env }

// Epoch changes every time a is cleared or released.
func (a *Arena) Epoch() uint64 { return a.epoch }

// DebugString renders "mem <name> <used> (<pct> %)".
func (a *Arena) DebugString() string {
	return fmt.Sprintf("mem %s %s", a.name, SizeString(a.cursor, len(a.buf)))
}

// PrintDebug logs DebugString at Info. It never changes allocator state.
func (a *Arena) PrintDebug() {
	a.env.logf(diag.Info, "%s", a.DebugString())
}

// SizeString scales size to b, K or M and appends its share of max as an
// integer percentage. max == 0 reports 100 %.
func SizeString(size, max int) string {
	const (
		kilobyte = 1024
		megabyte = 1024 * kilobyte
	)
	suffix, factor := "b", 1
	switch {
	case size >= megabyte:
		suffix, factor = "M", megabyte
	case size >= kilobyte:
		suffix, factor = "K", kilobyte
	}
	percentage := 100
	if max != 0 {
		percentage = 100 * size / max
	}
	return fmt.Sprintf("%d %s (%d %%)", size/factor, suffix, percentage)
}

func (a *Arena) observe() {
	if a.env.metrics {
		metrics.ArenaUsedBytes.WithLabelValues(a.name).Set(float64(a.cursor))
	}
}

func (a *Arena) countFailure(reason string) {
	if a.env.metrics {
		metrics.ArenaAllocFailuresTotal.WithLabelValues(a.name, reason).Inc()
	}
}
