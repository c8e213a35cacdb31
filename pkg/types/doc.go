// Package types defines the small, copyable types shared by every capkit
// package: capability pointers, machine words, capability ranges, the kernel
// object-type catalog, the initial capability roles, and the typed error
// taxonomy returned by the allocators.
//
// Design goals:
//   - Plain value types (CPtr, Word, CapRange) instead of object graphs.
//   - Typed errors with stable categories (resource exhausted, invalid
//     address, other) so callers branch on intent rather than text.
//   - A distinct panic value (Fault) for broken invariants, never mixed up
//     with the recoverable error taxonomy.
//
// This package has no dependencies beyond the standard library.
package types
