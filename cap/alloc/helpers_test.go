package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/capkit/cap/arch"
	"github.com/joshuapare/capkit/cap/kernel"
	"github.com/joshuapare/capkit/pkg/types"
)

// ============================================================================
// Allocator Construction Utilities
// ============================================================================

// region is a synthetic boot untyped grant.
type region struct {
	paddr  types.Word
	bits   uint
	device bool
}

// newTestAllocator builds a simulated kernel granting the given regions and
// an allocator over it with default options.
func newTestAllocator(t testing.TB, a *arch.Arch, regions ...region) (*Allocator, *kernel.Sim) {
	t.Helper()
	return newTestAllocatorWith(t, a, kernel.SimOptions{}, nil, regions...)
}

// newTestAllocatorWith is newTestAllocator with explicit simulator and
// allocator options.
func newTestAllocatorWith(t testing.TB, a *arch.Arch, simOpts kernel.SimOptions, opts *Options, regions ...region) (*Allocator, *kernel.Sim) {
	t.Helper()

	s := kernel.NewSim(a, simOpts)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	for _, r := range regions {
		s.AddUntyped(r.paddr, r.bits, r.device)
	}

	al, err := New(s, s.BootInfo(), opts)
	require.NoError(t, err)
	return al, s
}

// ============================================================================
// Assertion Helpers
// ============================================================================

// requireFault runs fn and requires it to panic with a *types.Fault raised by
// module.
func requireFault(t testing.TB, module string, fn func()) {
	t.Helper()

	var got any
	func() {
		defer func() { got = recover() }()
		fn()
	}()

	require.NotNil(t, got, "expected a fault from %s", module)
	f, ok := got.(*types.Fault)
	require.True(t, ok, "panic value %T is not a *types.Fault", got)
	require.Equal(t, module, f.Module, "fault: %v", f)
}

// requireObject checks the simulated kernel holds an object of type typ at
// paddr in slot.
func requireObject(t testing.TB, s *kernel.Sim, slot types.CPtr, typ types.ObjectType, paddr types.Word) kernel.ObjectInfo {
	t.Helper()

	info, ok := s.Lookup(slot)
	require.True(t, ok, "slot %d is empty", slot)
	require.Equal(t, typ, info.Type, "slot %d", slot)
	require.Equal(t, paddr, info.Paddr, "slot %d at %#x, want %#x", slot, uint64(info.Paddr), uint64(paddr))
	return info
}

// classCount returns how many leftover untyped capabilities of 2^bits bytes
// the allocator holds.
func classCount(a *Allocator, bits uint) uint64 {
	for _, c := range a.Stats().Classes {
		if c.SizeBits == bits {
			return c.Count
		}
	}
	return 0
}
