package alloc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/capkit/cap/arch"
	"github.com/joshuapare/capkit/cap/kernel"
	"github.com/joshuapare/capkit/pkg/types"
)

const devBase types.Word = 0xC000_0000

func TestNewPage(t *testing.T) {
	a, s := newTestAllocator(t, arch.AArch32, region{paddr: base, bits: 20})

	var frame types.CPtr
	pm, err := a.NewPage(&frame)
	require.NoError(t, err)

	paddr, ok := s.Translate(pm.Vaddr)
	require.True(t, ok)
	assert.Equal(t, paddr, pm.Paddr)
	requireObject(t, s, frame, types.SmallPageObject, pm.Paddr)

	attrs, _ := s.MappingAttrs(pm.Vaddr)
	assert.Equal(t, types.VMDefaultAttributes, attrs)
}

func TestNewPage_AddressLookupFailure(t *testing.T) {
	a, s := newTestAllocator(t, arch.AArch32, region{paddr: base, bits: 20})

	s.FailNext(kernel.OpGetAddress, kernel.InvalidCapability)
	_, err := a.NewPage(nil)
	require.ErrorIs(t, err, ErrPhysAddr)
	assert.True(t, types.IsKind(err, types.ErrKindOther))
}

func TestNewDMAPage(t *testing.T) {
	a, s := newTestAllocator(t, arch.AArch32, region{paddr: base, bits: 20})

	var frame types.CPtr
	pm, err := a.NewDMAPage(&frame)
	require.NoError(t, err)

	paddr, ok := s.Translate(pm.Vaddr)
	require.True(t, ok)
	assert.Equal(t, paddr, pm.Paddr)

	attrs, ok := s.MappingAttrs(pm.Vaddr)
	require.True(t, ok)
	assert.False(t, attrs.Cacheable())

	// The page came from an explicit untyped: two retypes, two slots, plus
	// the page table.
	info, ok := s.Lookup(frame - 1)
	require.True(t, ok)
	assert.Equal(t, types.UntypedObject, info.Type)
	assert.Equal(t, pm.Paddr, info.Paddr)
}

func TestNewPagesAtPhysicalAddress(t *testing.T) {
	a, s := newTestAllocator(t, arch.AArch32,
		region{paddr: base, bits: 20},
		region{paddr: devBase, bits: 20, device: true},
	)

	tests := []struct {
		name  string
		paddr types.Word
		count int
	}{
		{"ram", base + 0x8000, 4},
		{"device", devBase + 0x1000, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := a.NewPagesAtPhysicalAddress(tt.paddr, tt.count, types.VMNoAttributes)
			require.NoError(t, err)
			assert.Equal(t, tt.paddr, r.Paddr)
			assert.Equal(t, tt.count, r.NumPages)
			assert.Equal(t, uint64(tt.count)*0x1000, r.Size())
			requireObject(t, s, r.FirstFrame, types.SmallPageObject, tt.paddr)

			for i := range tt.count {
				off := types.Word(i * 0x1000)
				paddr, ok := s.Translate(r.Vaddr + off)
				require.True(t, ok)
				assert.Equal(t, tt.paddr+off, paddr)
			}
		})
	}
}

func TestNewPagesAtPhysicalAddress_Unreachable(t *testing.T) {
	a, _ := newTestAllocator(t, arch.AArch32, region{paddr: base, bits: 16})

	_, err := a.NewPagesAtPhysicalAddress(0x5000_0000, 1, types.VMNoAttributes)
	require.ErrorIs(t, err, ErrNotContained)
	assert.True(t, types.IsKind(err, types.ErrKindInvalidAddress))

	// The second page would run past the region.
	_, err = a.NewPagesAtPhysicalAddress(base+0xf000, 2, types.VMNoAttributes)
	require.ErrorIs(t, err, ErrNotContained)
}

// misreportingKernel reports every frame one page above where it really is.
type misreportingKernel struct {
	*kernel.Sim
}

func (k misreportingKernel) PageGetAddress(frame types.CPtr) (types.Word, kernel.Error) {
	paddr, e := k.Sim.PageGetAddress(frame)
	return paddr + 0x1000, e
}

func TestNewPagesAtPhysicalAddress_MismatchFaults(t *testing.T) {
	s := kernel.NewSim(arch.AArch32, kernel.SimOptions{})
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	s.AddUntyped(base, 20, false)

	a, err := New(misreportingKernel{s}, s.BootInfo(), nil)
	require.NoError(t, err)

	requireFault(t, "vspace", func() {
		_, _ = a.NewPagesAtPhysicalAddress(base+0x4000, 1, types.VMNoAttributes)
	})
}

func TestDMACacheOp_Chunking(t *testing.T) {
	a, s := newTestAllocator(t, arch.AArch32, region{paddr: base, bits: 20})
	vaddr, err := a.MapPages(4, 12, types.VMNoAttributes, nil)
	require.NoError(t, err)

	a.DMACacheOp(vaddr+0x100, 0x2000, kernel.Clean)
	assert.Equal(t, []kernel.CacheCall{
		{Op: kernel.Clean, Start: vaddr + 0x100, End: vaddr + 0x1000},
		{Op: kernel.Clean, Start: vaddr + 0x1000, End: vaddr + 0x2000},
		{Op: kernel.Clean, Start: vaddr + 0x2000, End: vaddr + 0x2100},
	}, s.CacheCalls())
}

// TestDMACacheOp_CoversRangeExactly checks random ranges: the chunks are
// contiguous, each stays inside one page, and together they are exactly the
// requested range.
func TestDMACacheOp_CoversRangeExactly(t *testing.T) {
	a, s := newTestAllocator(t, arch.AArch32, region{paddr: base, bits: 20})
	vaddr, err := a.MapPages(8, 12, types.VMNoAttributes, nil)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7)) // Fixed seed for reproducibility
	ops := []kernel.CacheOp{kernel.Clean, kernel.Invalidate, kernel.CleanInvalidate}
	seen := 0

	for i := range 200 {
		start := vaddr + types.Word(rng.Intn(4*0x1000))
		size := uint64(rng.Intn(4*0x1000)) + 1
		op := ops[rng.Intn(len(ops))]

		a.DMACacheOp(start, size, op)
		calls := s.CacheCalls()[seen:]
		seen += len(calls)

		require.NotEmpty(t, calls, "step %d", i)
		cur := start
		for _, c := range calls {
			require.Equal(t, op, c.Op)
			require.Equal(t, cur, c.Start, "step %d: gap or overlap", i)
			require.Less(t, c.Start, c.End)
			require.Equal(t, c.Start>>12, (c.End-1)>>12, "step %d: chunk crosses a page", i)
			cur = c.End
		}
		require.Equal(t, start+types.Word(size), cur, "step %d", i)
	}
}

func TestDMACacheOp_Empty(t *testing.T) {
	a, s := newTestAllocator(t, arch.AArch32, region{paddr: base, bits: 20})
	vaddr, err := a.MapPages(1, 12, types.VMNoAttributes, nil)
	require.NoError(t, err)

	a.DMACacheOp(vaddr, 0, kernel.Invalidate)
	assert.Zero(t, s.Calls(kernel.OpCache))
}

func TestDMACacheOp_KernelFailureFaults(t *testing.T) {
	a, s := newTestAllocator(t, arch.AArch32, region{paddr: base, bits: 20})
	vaddr, err := a.MapPages(1, 12, types.VMNoAttributes, nil)
	require.NoError(t, err)

	s.FailNext(kernel.OpCache, kernel.RangeError)
	requireFault(t, "pmem", func() {
		a.DMACacheOp(vaddr, 0x100, kernel.CleanInvalidate)
	})
}
