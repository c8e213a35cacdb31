package alloc

import (
	"fmt"

	"github.com/joshuapare/capkit/cap/kernel"
	"github.com/joshuapare/capkit/internal/format"
	"github.com/joshuapare/capkit/pkg/types"
)

const mapRights = types.RightRead | types.RightWrite

// BootstrapVSpace records the vspace root and resets the mapping cursor to
// Options.VSpaceStart. New calls it; the root can only be set once.
func (a *Allocator) BootstrapVSpace(root types.CPtr) {
	if a.pageDirectory != types.NullCap {
		types.Faultf("vspace", "root already set to %d", a.pageDirectory)
	}
	a.pageDirectory = root
	a.lastAllocated = a.opts.VSpaceStart
}

// Root returns the vspace root capability.
func (a *Allocator) Root() types.CPtr { return a.pageDirectory }

// Cursor returns the next virtual address the manager will consider.
func (a *Allocator) Cursor() types.Word { return a.lastAllocated }

// reserve claims size bytes of address space aligned to align. The cursor
// only moves forward; reserved space is never handed out twice, even when
// the mapping that follows fails.
func (a *Allocator) reserve(size, align uint64) types.Word {
	vaddr := types.Word(format.AlignUp(uint64(a.lastAllocated), align))
	a.lastAllocated = vaddr + types.Word(size)
	return vaddr
}

func (a *Allocator) checkPages(count int, sizeBits uint) (types.ObjectType, error) {
	if count <= 0 {
		return 0, ErrPageCount.Wrapf("%d", count)
	}
	if count > a.opts.MaxPagesPerCall {
		return 0, ErrTooManyPages.Wrapf("%d pages, limit %d", count, a.opts.MaxPagesPerCall)
	}
	t, ok := a.arch.FrameType(sizeBits)
	if !ok {
		return 0, ErrPageSize.Wrapf("%d bits on %s", sizeBits, a.arch.Name)
	}
	return t, nil
}

// MapPages allocates count frames of 2^sizeBits bytes and maps them at
// consecutive virtual addresses. It returns the address of the first page
// and stores the first frame's capability in out when out is non-nil.
func (a *Allocator) MapPages(count int, sizeBits uint, attrs types.VMAttributes, out *types.CPtr) (types.Word, error) {
	t, err := a.checkPages(count, sizeBits)
	if err != nil {
		return 0, err
	}
	var buf [maxPagesPerCallLimit]types.CPtr
	frames := buf[:count]
	for i := range frames {
		if frames[i], err = a.Allocate(t, 0); err != nil {
			return 0, err
		}
	}
	return a.mapFrames(frames, sizeBits, attrs, out)
}

// MapPagesAt is MapPages for frames backed by the physically contiguous
// range starting at paddr.
func (a *Allocator) MapPagesAt(paddr types.Word, count int, sizeBits uint, attrs types.VMAttributes, out *types.CPtr) (types.Word, error) {
	t, err := a.checkPages(count, sizeBits)
	if err != nil {
		return 0, err
	}
	size := format.BitsToSize(sizeBits)
	var buf [maxPagesPerCallLimit]types.CPtr
	frames := buf[:count]
	for i := range frames {
		if frames[i], err = a.AllocateAt(t, 0, paddr+types.Word(uint64(i)*size)); err != nil {
			return 0, err
		}
	}

	vaddr, err := a.mapFrames(frames, sizeBits, attrs, out)
	if err != nil {
		return 0, err
	}
	got, e := a.k.PageGetAddress(frames[0])
	if !e.OK() {
		return 0, ErrPhysAddr.Wrapf("frame %d: %w", frames[0], e)
	}
	if got != paddr {
		types.Faultf("vspace", "frame %d at %#x, wanted %#x", frames[0], uint64(got), uint64(paddr))
	}
	return vaddr, nil
}

// MapFrame maps an already allocated frame of 2^sizeBits bytes at the
// cursor and returns its address.
func (a *Allocator) MapFrame(frame types.CPtr, sizeBits uint, attrs types.VMAttributes) (types.Word, error) {
	if _, ok := a.arch.FrameType(sizeBits); !ok {
		return 0, ErrPageSize.Wrapf("%d bits on %s", sizeBits, a.arch.Name)
	}
	return a.mapFrames([]types.CPtr{frame}, sizeBits, attrs, nil)
}

// mapFrames reserves address space for frames and maps them in order.
func (a *Allocator) mapFrames(frames []types.CPtr, sizeBits uint, attrs types.VMAttributes, out *types.CPtr) (types.Word, error) {
	size := format.BitsToSize(sizeBits)
	vaddr := a.reserve(size*uint64(len(frames)), size)
	for i, f := range frames {
		if err := a.mapPage(f, vaddr+types.Word(uint64(i)*size), sizeBits, attrs); err != nil {
			return 0, err
		}
	}
	if out != nil {
		*out = frames[0]
	}
	return vaddr, nil
}

// frameLevel returns the paging level holding entries for frames of
// 2^sizeBits bytes, or -1 when they sit directly in the root.
func (a *Allocator) frameLevel(sizeBits uint) int {
	for i, l := range a.arch.Levels {
		if l.CoverBits > sizeBits {
			return i
		}
	}
	return -1
}

// mapPage maps one frame, creating the paging structures the kernel reports
// missing.
func (a *Allocator) mapPage(frame types.CPtr, vaddr types.Word, sizeBits uint, attrs types.VMAttributes) error {
	e := a.k.MapPage(frame, a.pageDirectory, vaddr, mapRights, attrs)
	if e == kernel.FailedLookup {
		level := a.frameLevel(sizeBits)
		if level < 0 {
			return ErrMap.Wrapf("frame %d at %#x: %w", frame, uint64(vaddr), e)
		}
		if err := a.ensureTable(level, vaddr); err != nil {
			return err
		}
		e = a.k.MapPage(frame, a.pageDirectory, vaddr, mapRights, attrs)
	}
	if !e.OK() {
		return ErrMap.Wrapf("frame %d at %#x: %w", frame, uint64(vaddr), e)
	}
	a.stats.PagesMapped++
	return nil
}

// ensureTable creates and installs the paging structure of the given level
// covering vaddr. When the kernel reports the next level up missing as well,
// that one is installed first.
func (a *Allocator) ensureTable(level int, vaddr types.Word) error {
	lv := a.arch.Levels[level]
	table, err := a.Allocate(lv.Type, 0)
	if err != nil {
		return err
	}
	e := a.k.MapPageTable(table, a.pageDirectory, vaddr, a.opts.DefaultAttributes)
	if e == kernel.FailedLookup && level+1 < len(a.arch.Levels) {
		if err := a.ensureTable(level+1, vaddr); err != nil {
			return err
		}
		e = a.k.MapPageTable(table, a.pageDirectory, vaddr, a.opts.DefaultAttributes)
	}
	if !e.OK() {
		return ErrMap.Wrapf("%s %d at %#x: %w", lv.Type, table, uint64(vaddr), e)
	}
	if level == 0 {
		a.pageTable = table
	}
	a.stats.PageTables++
	a.log.Debug("paging structure installed",
		"type", lv.Type.String(),
		"cap", table,
		"vaddr", fmt.Sprintf("%#x", uint64(vaddr)))
	return nil
}

// NewStack maps nPages small pages of stack below an unmapped guard page
// and returns the initial stack pointer (the top of the mapping).
func (a *Allocator) NewStack(nPages int) (types.Word, error) {
	page := a.arch.PageSize()
	size := uint64(max(nPages, 0)) * page
	if size < format.MinStackSize {
		types.Faultf("vspace", "stack of %d bytes is below the %d byte minimum", size, format.MinStackSize)
	}
	align := format.StackAlignment(a.arch.WordBits)
	if !format.IsAligned(size, align) {
		types.Faultf("vspace", "stack of %d bytes is not %d byte aligned", size, align)
	}

	guard := a.reserve(page, page)
	base, err := a.MapPages(nPages, a.arch.PageBits, a.opts.DefaultAttributes, nil)
	if err != nil {
		return 0, err
	}
	top := base + types.Word(size)
	if !format.IsAligned(uint64(top), align) {
		types.Faultf("vspace", "stack top %#x is not %d byte aligned", uint64(top), align)
	}
	a.log.Debug("stack mapped",
		"guard", fmt.Sprintf("%#x", uint64(guard)),
		"base", fmt.Sprintf("%#x", uint64(base)),
		"top", fmt.Sprintf("%#x", uint64(top)))
	return top, nil
}

// NewIPCBuffer maps one page for use as an IPC buffer and stores the page's
// own address in its userData word, where the kernel's IPC buffer lookup
// expects it. The frame capability goes to out when out is non-nil.
func (a *Allocator) NewIPCBuffer(out *types.CPtr) (types.Word, error) {
	vaddr, err := a.MapPages(1, a.arch.PageBits, a.opts.DefaultAttributes, out)
	if err != nil {
		return 0, err
	}
	at := vaddr + types.Word(format.IPCBufferUserDataOffset(a.arch.WordBytes()))
	if err := a.mem.PutWord(at, vaddr); err != nil {
		return 0, ErrIPCBuffer.Wrap(err)
	}
	return vaddr, nil
}
