package memory

import (
	"fmt"
	"unsafe"
)

// Backing selects where a fresh arena gets its buffer from.
type Backing int

const (
	// BackingHeap allocates the buffer on the Go heap.
	BackingHeap Backing = iota
	// BackingMmap maps anonymous pages outside the Go heap where the
	// platform supports it, and falls back to the heap elsewhere.
	BackingMmap
)

func (b Backing) String() string {
	switch b {
	case BackingHeap:
		return "heap"
	case BackingMmap:
		return "mmap"
	default:
		return fmt.Sprintf("backing(%d)", int(b))
	}
}

// ParseBacking converts a config string into a Backing
func ParseBacking(s string) (Backing, error) {
	switch s {
	case "heap", "":
		return BackingHeap, nil
	case "mmap":
		return BackingMmap, nil
	default:
		return BackingHeap, fmt.Errorf("invalid arena backing: %s", s)
	}
}

// baseAlign is the alignment of every fresh arena buffer and of pool slots.
const baseAlign = 16

// alignUp rounds n up to a multiple of align (a power of two).
func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// heapBuffer returns a zeroed buffer of exactly size bytes whose first byte is
// baseAlign-aligned.
func heapBuffer(size int) []byte {
	raw := make([]byte, size+baseAlign)
	off := int(uintptr(unsafe.Pointer(&raw[0])) & (baseAlign - 1))
	if off != 0 {
		off = baseAlign - off
	}
	return raw[off : off+size : off+size]
}

// acquireBuffer returns a zeroed buffer and the function that gives it back.
func acquireBuffer(size int, backing Backing) ([]byte, func() error, error) {
	if backing == BackingMmap {
		return mapBuffer(size)
	}
	return heapBuffer(size), func() error { return nil }, nil
}
