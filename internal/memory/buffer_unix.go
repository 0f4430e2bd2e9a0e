//go:build linux || darwin

package memory

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mapBuffer maps size bytes of anonymous, zero-filled memory. The pages live
// outside the Go heap, so they are never scanned by the garbage collector and
// are returned to the OS on release.
func mapBuffer(size int) ([]byte, func() error, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	release := func() error {
		if err := unix.Munmap(b); err != nil {
			return fmt.Errorf("munmap %d bytes: %w", size, err)
		}
		return nil
	}
	return b, release, nil
}

// adviseFree tells the kernel the whole pages of buf from offset from
// onwards can be reclaimed. buf must start on a page boundary, which holds
// for mapped buffers. The memory stays mapped and reads back as zeros.
func adviseFree(buf []byte, from int) error {
	start := alignUp(from, unix.Getpagesize())
	if start >= len(buf) {
		return nil
	}
	if err := unix.Madvise(buf[start:], unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("madvise(MADV_DONTNEED) failed: %w", err)
	}
	return nil
}
