package alloc

import (
	"github.com/joshuapare/capkit/cap/kernel"
	"github.com/joshuapare/capkit/internal/format"
	"github.com/joshuapare/capkit/pkg/types"
)

// PMem is a mapped page with a known physical address.
type PMem struct {
	Vaddr types.Word
	Paddr types.Word
}

// Region is a mapped, physically contiguous run of frames.
type Region struct {
	Vaddr      types.Word
	Paddr      types.Word
	NumPages   int
	SizeBits   uint
	FirstFrame types.CPtr
}

// Size returns the region size in bytes.
func (r Region) Size() uint64 { return uint64(r.NumPages) * format.BitsToSize(r.SizeBits) }

func (a *Allocator) frameAddress(frame types.CPtr) (types.Word, error) {
	paddr, e := a.k.PageGetAddress(frame)
	if !e.OK() {
		return 0, ErrPhysAddr.Wrapf("frame %d: %w", frame, e)
	}
	return paddr, nil
}

// NewPage maps one small page with the default attributes and reports where
// it lives physically. The frame capability goes to out when out is non-nil.
func (a *Allocator) NewPage(out *types.CPtr) (PMem, error) {
	var frame types.CPtr
	vaddr, err := a.MapPages(1, a.arch.PageBits, a.opts.DefaultAttributes, &frame)
	if err != nil {
		return PMem{}, err
	}
	if out != nil {
		*out = frame
	}
	paddr, err := a.frameAddress(frame)
	if err != nil {
		return PMem{}, err
	}
	return PMem{Vaddr: vaddr, Paddr: paddr}, nil
}

// NewDMAPage maps one small page for device access, using
// Options.DMAAttributes (uncached by default).
func (a *Allocator) NewDMAPage(out *types.CPtr) (PMem, error) {
	ut, err := a.AllocUntyped(a.arch.PageBits)
	if err != nil {
		return PMem{}, err
	}
	frame, err := a.AllocSlot()
	if err != nil {
		return PMem{}, err
	}
	if err := a.retype(ut.Cap, types.SmallPageObject, 0, frame); err != nil {
		return PMem{}, err
	}

	page := a.arch.PageSize()
	vaddr := a.reserve(page, page)
	if err := a.mapPage(frame, vaddr, a.arch.PageBits, a.opts.DMAAttributes); err != nil {
		return PMem{}, err
	}
	if out != nil {
		*out = frame
	}
	paddr, err := a.frameAddress(frame)
	if err != nil {
		return PMem{}, err
	}
	return PMem{Vaddr: vaddr, Paddr: paddr}, nil
}

// NewPagesAtPhysicalAddress maps count small pages backed by the physical
// range starting at paddr, typically device registers or a DMA window.
func (a *Allocator) NewPagesAtPhysicalAddress(paddr types.Word, count int, attrs types.VMAttributes) (Region, error) {
	var first types.CPtr
	vaddr, err := a.MapPagesAt(paddr, count, a.arch.PageBits, attrs, &first)
	if err != nil {
		return Region{}, err
	}
	return Region{
		Vaddr:      vaddr,
		Paddr:      paddr,
		NumPages:   count,
		SizeBits:   a.arch.PageBits,
		FirstFrame: first,
	}, nil
}

// DMACacheOp applies a data-cache maintenance operation to [vaddr,
// vaddr+size). The kernel only accepts ranges inside one page, so the range
// is issued page by page. A kernel failure is unrecoverable: the device
// would observe stale data.
func (a *Allocator) DMACacheOp(vaddr types.Word, size uint64, op kernel.CacheOp) {
	page := a.arch.PageSize()
	end := vaddr + types.Word(size)
	for cur := vaddr; cur < end; {
		top := min(types.Word(format.AlignUp(uint64(cur)+1, page)), end)
		if e := kernel.CacheMaintenance(a.k, op, a.pageDirectory, cur, top); !e.OK() {
			types.Faultf("pmem", "%s of [%#x, %#x): %v", op, uint64(cur), uint64(top), e)
		}
		cur = top
	}
}
