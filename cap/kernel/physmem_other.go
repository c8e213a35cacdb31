//go:build !unix

package kernel

// mapAnon allocates from the Go heap when anonymous mmap is not available.
func mapAnon(size uint64) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapAnon([]byte) error { return nil }
