//go:build unix

package kernel

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// mapAnon reserves zeroed, private host memory for a simulated frame.
func mapAnon(size uint64) ([]byte, error) {
	if size > uint64(^uint(0)>>1) {
		return nil, fmt.Errorf("sim: frame too large to back (%d bytes)", size)
	}
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("sim: mmap frame: %w", err)
	}
	return b, nil
}

func unmapAnon(b []byte) error {
	err := unix.Munmap(b)
	if errors.Is(err, unix.EINVAL) {
		// Treat double-unmap as no-op for callers.
		return nil
	}
	return err
}
