package memory

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/slotarena/internal/metrics"
)

// arrowAlign matches the buffer alignment Arrow expects from its allocators.
const arrowAlign = 64

// ArrowAllocator lets Arrow builders carve their buffers from an Arena.
// Like the arena itself it never gives memory back: Free only adjusts the
// byte count, and everything is reclaimed by clearing the arena.
//
// memory.Allocator has no error return, so running out of arena space
// panics with the underlying error.
type ArrowAllocator struct {
	arena     *Arena
	allocated int64
}

// NewArrowAllocator wraps arena.
func NewArrowAllocator(arena *Arena) *ArrowAllocator {
	return &ArrowAllocator{arena: arena}
}

// Allocate returns size zeroed bytes aligned to 64.
func (a *ArrowAllocator) Allocate(size int) []byte {
	if size == 0 {
		return []byte{}
	}
	b, err := a.arena.allocAligned(size, arrowAlign, "arrow buffer")
	if err != nil {
		panic(fmt.Errorf("arrow allocate %d: %w", size, err))
	}
	a.track(int64(size))
	return b
}

// Reallocate shrinks in place and otherwise copies into a fresh region. The
// old region stays in the arena until it is cleared.
func (a *ArrowAllocator) Reallocate(size int, b []byte) []byte {
	if size <= len(b) {
		a.track(int64(size - len(b)))
		return b[:size]
	}
	nb := a.Allocate(size)
	copy(nb, b)
	a.track(-int64(len(b)))
	return nb
}

// Free only updates the byte count.
func (a *ArrowAllocator) Free(b []byte) {
	a.track(-int64(len(b)))
}

// Allocated returns the bytes handed to Arrow and not yet freed.
func (a *ArrowAllocator) Allocated() int64 {
	return a.allocated
}

// Arena returns the arena the allocator carves from.
func (a *ArrowAllocator) Arena() *Arena {
	return a.arena
}

// AssertSize is a test helper that returns an error if size mismatch occurs
func (a *ArrowAllocator) AssertSize(sz int) error {
	if int(a.Allocated()) != sz {
		return fmt.Errorf("allocator size mismatch: expected %d, got %d", sz, a.Allocated())
	}
	return nil
}

func (a *ArrowAllocator) track(delta int64) {
	a.allocated += delta
	if a.arena.env.metrics {
		metrics.ArrowAllocatedBytes.WithLabelValues(a.arena.name).Set(float64(a.allocated))
	}
}

var _ memory.Allocator = (*ArrowAllocator)(nil)
