package format

import "math/bits"

// Alignment utilities for capability-space and physical-memory arithmetic.
// Every size handled by the allocators is a power of two, expressed either in
// bytes or as a size exponent ("size bits").

// BitsToSize returns 2^sizeBits.
//
// Example:
//
//	BitsToSize(12) = 4096
func BitsToSize(sizeBits uint) uint64 {
	return uint64(1) << sizeBits
}

// IsPowerOfTwo reports whether n is a non-zero power of two.
func IsPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// AlignUp returns n aligned up to the next multiple of align.
// align must be a power of two.
//
// Example:
//
//	AlignUp(1, 4096)    = 4096
//	AlignUp(4096, 4096) = 4096
//	AlignUp(4097, 4096) = 8192
func AlignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// AlignDown returns n aligned down to a multiple of align.
// align must be a power of two.
func AlignDown(n, align uint64) uint64 {
	return n &^ (align - 1)
}

// IsAligned reports whether n is a multiple of align (a power of two).
func IsAligned(n, align uint64) bool {
	return n&(align-1) == 0
}

// FloorLog2 returns the exponent of the largest power of two not exceeding n.
// n must be non-zero.
//
// Example:
//
//	FloorLog2(1)    = 0
//	FloorLog2(4096) = 12
//	FloorLog2(6000) = 12
func FloorLog2(n uint64) uint {
	return uint(bits.Len64(n)) - 1
}

// AlignmentBits returns the exponent of the largest power of two dividing n,
// i.e. the natural alignment of address n. Zero is aligned to everything and
// reports 64.
//
// Example:
//
//	AlignmentBits(0x1000_0000) = 28
//	AlignmentBits(0x1000_3000) = 12
func AlignmentBits(n uint64) uint {
	return uint(bits.TrailingZeros64(n))
}
