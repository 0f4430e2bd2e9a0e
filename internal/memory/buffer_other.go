//go:build !linux && !darwin

package memory

// mapBuffer falls back to a heap buffer on platforms without anonymous mmap
// support in x/sys/unix.
func mapBuffer(size int) ([]byte, func() error, error) {
	return heapBuffer(size), func() error { return nil }, nil
}

func adviseFree(buf []byte, from int) error {
	return nil
}
