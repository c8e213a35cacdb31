package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/capkit/cap/arch"
	"github.com/joshuapare/capkit/pkg/types"
)

var (
	cnode  = types.InitThreadCNode.CPtr()
	vspace = types.InitThreadVSpace.CPtr()
)

func newTestSim(t *testing.T, a *arch.Arch) *Sim {
	t.Helper()
	s := NewSim(a, SimOptions{})
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestSim_BootInfo(t *testing.T) {
	s := newTestSim(t, arch.AArch32)
	ut := s.AddUntyped(0x1000_0000, 16, false)
	dev := s.AddUntyped(0xC000_0000, 20, true)

	bi := s.BootInfo()
	assert.Equal(t, types.CPtr(types.NumInitialCaps), ut)
	assert.Equal(t, ut+1, dev)
	assert.Equal(t, types.CapRange{First: dev + 1, Count: 4096 - uint64(dev+1)}, bi.Empty)
	require.Len(t, bi.Untyped, 2)
	require.NoError(t, bi.Validate(256))
}

func TestSim_RetypeAdvancesWatermarkWithAlignment(t *testing.T) {
	s := newTestSim(t, arch.AArch32)
	ut := s.AddUntyped(0x1000_0000, 16, false)

	// An endpoint (16 bytes) first, then a page must be aligned to 4 KiB.
	require.Equal(t, NoError, s.Retype(ut, types.EndpointObject, 0, cnode, 0, 0, 100, 1))
	require.Equal(t, NoError, s.Retype(ut, types.SmallPageObject, 0, cnode, 0, 0, 101, 1))

	ep, ok := s.Lookup(100)
	require.True(t, ok)
	assert.Equal(t, types.Word(0x1000_0000), ep.Paddr)

	page, ok := s.Lookup(101)
	require.True(t, ok)
	assert.Equal(t, types.Word(0x1000_1000), page.Paddr)
	assert.Equal(t, types.SmallPageObject, page.Type)
}

func TestSim_RetypeErrors(t *testing.T) {
	s := newTestSim(t, arch.AArch32)
	ut := s.AddUntyped(0x1000_0000, 12, false)
	dev := s.AddUntyped(0xC000_0000, 12, true)

	assert.Equal(t, InvalidCapability, s.Retype(cnode, types.EndpointObject, 0, cnode, 0, 0, 100, 1))
	assert.Equal(t, InvalidArgument, s.Retype(ut, types.HugePageObject, 0, cnode, 0, 0, 100, 1))
	assert.Equal(t, RangeError, s.Retype(ut, types.UntypedObject, 3, cnode, 0, 0, 100, 1))
	assert.Equal(t, InvalidArgument, s.Retype(dev, types.TCBObject, 0, cnode, 0, 0, 100, 1))
	assert.Equal(t, DeleteFirst, s.Retype(ut, types.EndpointObject, 0, cnode, 0, 0, ut, 1))
	assert.Equal(t, RangeError, s.Retype(ut, types.EndpointObject, 0, cnode, 0, 0, 4096, 1))
	assert.Equal(t, FailedLookup, s.Retype(ut, types.EndpointObject, 0, cnode, vspace, 32, 100, 1))
	assert.Equal(t, NotEnoughMemory, s.Retype(ut, types.LargePageObject, 0, cnode, 0, 0, 100, 1))

	// Resolving the table through its own capability is accepted.
	require.Equal(t, NoError, s.Retype(ut, types.SmallPageObject, 0, cnode, cnode, 32, 100, 1))
	assert.Equal(t, NotEnoughMemory, s.Retype(ut, types.EndpointObject, 0, cnode, 0, 0, 101, 1))

	// Device memory can back frames.
	require.Equal(t, NoError, s.Retype(dev, types.SmallPageObject, 0, cnode, 0, 0, 102, 1))
	info, _ := s.Lookup(102)
	assert.True(t, info.Device)
}

func TestSim_RetypeMultipleObjects(t *testing.T) {
	s := newTestSim(t, arch.AArch32)
	ut := s.AddUntyped(0x2000_0000, 16, false)

	require.Equal(t, NoError, s.Retype(ut, types.UntypedObject, 15, cnode, 0, 0, 200, 2))
	lo, _ := s.Lookup(200)
	hi, _ := s.Lookup(201)
	assert.Equal(t, types.Word(0x2000_0000), lo.Paddr)
	assert.Equal(t, types.Word(0x2000_8000), hi.Paddr)
	assert.Equal(t, uint(15), hi.SizeBits)
}

func TestSim_MapPageNeedsPageTable(t *testing.T) {
	s := newTestSim(t, arch.AArch32)
	ut := s.AddUntyped(0x1000_0000, 16, false)
	require.Equal(t, NoError, s.Retype(ut, types.SmallPageObject, 0, cnode, 0, 0, 100, 1))
	require.Equal(t, NoError, s.Retype(ut, types.PageTableObject, 0, cnode, 0, 0, 101, 1))

	const vaddr = types.Word(0x1000_0000)
	assert.Equal(t, FailedLookup, s.MapPage(100, vspace, vaddr, types.RightsAll, types.VMDefaultAttributes))
	require.Equal(t, NoError, s.MapPageTable(101, vspace, vaddr, types.VMDefaultAttributes))
	require.Equal(t, NoError, s.MapPage(100, vspace, vaddr, types.RightsAll, types.VMDefaultAttributes))

	assert.True(t, s.IsMapped(vaddr+0xFFF))
	assert.False(t, s.IsMapped(vaddr+0x1000))
	pa, ok := s.Translate(vaddr + 0x10)
	require.True(t, ok)
	assert.Equal(t, types.Word(0x1000_0010), pa)
	assert.Equal(t, []types.Word{0x1000_0000}, s.Tables(0))

	// Remapping the same frame or mapping over it is refused.
	assert.Equal(t, InvalidArgument, s.MapPage(100, vspace, vaddr+0x1000, types.RightsAll, 0))
	require.Equal(t, NoError, s.Retype(ut, types.SmallPageObject, 0, cnode, 0, 0, 102, 1))
	assert.Equal(t, DeleteFirst, s.MapPage(102, vspace, vaddr, types.RightsAll, 0))
	assert.Equal(t, AlignmentError, s.MapPage(102, vspace, vaddr+0x10, types.RightsAll, 0))
	assert.Equal(t, InvalidCapability, s.MapPage(101, vspace, vaddr+0x2000, types.RightsAll, 0))
}

func TestSim_AArch64LevelChain(t *testing.T) {
	s := newTestSim(t, arch.AArch64)
	ut := s.AddUntyped(0x4000_0000, 20, false)
	for i, typ := range []types.ObjectType{types.PageTableObject, types.PageDirectoryObject, types.PageUpperDirectoryObject} {
		require.Equal(t, NoError, s.Retype(ut, typ, 0, cnode, 0, 0, types.CPtr(100+i), 1))
	}

	const vaddr = types.Word(0x1000_0000)
	assert.Equal(t, FailedLookup, s.MapPageTable(100, vspace, vaddr, 0), "page directory missing")
	assert.Equal(t, FailedLookup, s.MapPageTable(101, vspace, vaddr, 0), "upper directory missing")
	require.Equal(t, NoError, s.MapPageTable(102, vspace, vaddr, 0))
	require.Equal(t, NoError, s.MapPageTable(101, vspace, vaddr, 0))
	require.Equal(t, NoError, s.MapPageTable(100, vspace, vaddr, 0))
}

func TestSim_CacheOpsStayInsideOnePage(t *testing.T) {
	s := newTestSim(t, arch.AArch32)
	ut := s.AddUntyped(0x1000_0000, 16, false)
	require.Equal(t, NoError, s.Retype(ut, types.PageTableObject, 0, cnode, 0, 0, 100, 1))
	require.Equal(t, NoError, s.Retype(ut, types.SmallPageObject, 0, cnode, 0, 0, 101, 1))
	require.Equal(t, NoError, s.MapPageTable(100, vspace, 0x1000_0000, 0))
	require.Equal(t, NoError, s.MapPage(101, vspace, 0x1000_0000, types.RightsAll, 0))

	require.Equal(t, NoError, CacheMaintenance(s, Clean, vspace, 0x1000_0010, 0x1000_0100))
	assert.Equal(t, RangeError, CacheMaintenance(s, Invalidate, vspace, 0x1000_0010, 0x1000_1010))
	assert.Equal(t, FailedLookup, CacheMaintenance(s, CleanInvalidate, vspace, 0x1000_1000, 0x1000_1010))
	assert.Equal(t, InvalidArgument, CacheMaintenance(s, Clean, vspace, 0x1000_0010, 0x1000_0010))
	assert.Equal(t, InvalidArgument, CacheMaintenance(s, CacheOp(9), vspace, 0x1000_0010, 0x1000_0020))

	assert.Equal(t, []CacheCall{{Op: Clean, Start: 0x1000_0010, End: 0x1000_0100}}, s.CacheCalls())
}

func TestSim_PutWordThroughMapping(t *testing.T) {
	s := newTestSim(t, arch.AArch32)
	ut := s.AddUntyped(0x1000_0000, 16, false)
	require.Equal(t, NoError, s.Retype(ut, types.PageTableObject, 0, cnode, 0, 0, 100, 1))
	require.Equal(t, NoError, s.Retype(ut, types.SmallPageObject, 0, cnode, 0, 0, 101, 1))
	require.Equal(t, NoError, s.MapPageTable(100, vspace, 0x2000_0000, 0))
	require.Equal(t, NoError, s.MapPage(101, vspace, 0x2000_0000, types.RightsAll, 0))

	require.NoError(t, s.PutWord(0x2000_01E4, 0x2000_0000))
	got, err := s.Word(0x2000_01E4)
	require.NoError(t, err)
	assert.Equal(t, types.Word(0x2000_0000), got)

	require.Error(t, s.PutWord(0x3000_0000, 1), "unmapped")
	require.Error(t, s.PutWord(0x2000_0FFE, 1), "crosses frame end")
}

func TestSim_MintCopiesWithBadge(t *testing.T) {
	s := newTestSim(t, arch.AArch32)
	ut := s.AddUntyped(0x1000_0000, 12, false)
	require.Equal(t, NoError, s.Retype(ut, types.EndpointObject, 0, cnode, 0, 0, 100, 1))

	require.Equal(t, NoError, s.Mint(cnode, 101, 32, cnode, 100, 32, types.RightsAll, 0xBEEF))
	info, ok := s.Lookup(101)
	require.True(t, ok)
	assert.Equal(t, types.EndpointObject, info.Type)
	assert.Equal(t, types.Word(0xBEEF), info.Badge)

	assert.Equal(t, DeleteFirst, s.Mint(cnode, 101, 32, cnode, 100, 32, types.RightsAll, 1))
	assert.Equal(t, FailedLookup, s.Mint(cnode, 102, 32, cnode, 999, 32, types.RightsAll, 1))
	assert.Equal(t, RangeError, s.Mint(cnode, 102, 12, cnode, 100, 32, types.RightsAll, 1))
}

func TestSim_FailNext(t *testing.T) {
	s := newTestSim(t, arch.AArch32)
	ut := s.AddUntyped(0x1000_0000, 12, false)

	s.FailNext(OpRetype, NotEnoughMemory)
	assert.Equal(t, NotEnoughMemory, s.Retype(ut, types.EndpointObject, 0, cnode, 0, 0, 100, 1))
	assert.Equal(t, NoError, s.Retype(ut, types.EndpointObject, 0, cnode, 0, 0, 100, 1))
	assert.Equal(t, 2, s.Calls(OpRetype))

	s.FailNext(OpGetAddress, IllegalOperation)
	_, e := s.PageGetAddress(types.InitBootInfoFrame.CPtr())
	assert.Equal(t, IllegalOperation, e)
}

func TestError_String(t *testing.T) {
	assert.Equal(t, "kernel: FailedLookup", FailedLookup.Error())
	assert.Equal(t, "kernel: error 99", Error(99).Error())
	assert.True(t, NoError.OK())
	assert.Equal(t, "clean+invalidate", CleanInvalidate.String())
}
