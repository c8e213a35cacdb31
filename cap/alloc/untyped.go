package alloc

import (
	"fmt"

	"github.com/joshuapare/capkit/internal/format"
	"github.com/joshuapare/capkit/pkg/types"
)

// UntypedItem describes one untyped capability.
type UntypedItem struct {
	Cap      types.CPtr
	SizeBits uint
	Paddr    types.Word
	IsDevice bool
}

// Size returns the region size in bytes.
func (u UntypedItem) Size() uint64 { return format.BitsToSize(u.SizeBits) }

// ItemState is the lifecycle state of a boot untyped item. States only move
// forward.
type ItemState uint8

const (
	StateFree      ItemState = iota // nothing retyped yet
	StateCarving                    // objects carved front to back
	StateSplit                      // front split into siblings by an address walk
	StateExhausted                  // no bytes left past the watermark
)

func (s ItemState) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateCarving:
		return "carving"
	case StateSplit:
		return "split"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("ItemState(%d)", uint8(s))
	}
}

// InitUntypedItem is a boot untyped region together with how much of it has
// been consumed. The watermark mirrors the kernel's own: the offset of the
// first byte not yet handed to an object.
type InitUntypedItem struct {
	UntypedItem
	state     ItemState
	watermark uint64
}

// State returns the item's lifecycle state.
func (it *InitUntypedItem) State() ItemState { return it.state }

// IsFree reports whether nothing has been retyped from the item.
func (it *InitUntypedItem) IsFree() bool { return it.state == StateFree }

// Watermark returns the number of bytes consumed from the item's base.
func (it *InitUntypedItem) Watermark() uint64 { return it.watermark }

// Remaining returns the bytes past the watermark.
func (it *InitUntypedItem) Remaining() uint64 { return it.Size() - it.watermark }

func (it *InitUntypedItem) transition(to ItemState) {
	if to < it.state {
		types.Faultf("untyped", "item %d: illegal transition %s -> %s", it.Cap, it.state, to)
	}
	it.state = to
}

// advance moves the watermark to off and settles the state for work of the
// given kind.
func (it *InitUntypedItem) advance(off uint64, kind ItemState) {
	if off < it.watermark || off > it.Size() {
		types.Faultf("untyped", "item %d: watermark %#x -> %#x outside region of %#x bytes",
			it.Cap, it.watermark, off, it.Size())
	}
	it.watermark = off
	if off == it.Size() {
		it.transition(StateExhausted)
		return
	}
	it.transition(max(it.state, kind))
}

// fitOffset returns the offset where an object of objSize bytes would land,
// and whether it fits.
func (it *InitUntypedItem) fitOffset(objSize uint64) (uint64, bool) {
	if it.state == StateExhausted {
		return 0, false
	}
	off := format.AlignUp(it.watermark, objSize)
	return off, off >= it.watermark && off+objSize <= it.Size()
}

func (a *Allocator) addRootUntyped(u UntypedItem) {
	a.initUntyped[a.numInitUntyped] = InitUntypedItem{UntypedItem: u}
	a.numInitUntyped++
}

// Untyped returns a copy of the boot inventory.
func (a *Allocator) Untyped() []InitUntypedItem {
	return append([]InitUntypedItem(nil), a.initUntyped[:a.numInitUntyped]...)
}

// ContainedPaddr returns the index of the boot untyped item whose region
// covers paddr.
func (a *Allocator) ContainedPaddr(paddr types.Word) (int, bool) {
	for i := range a.numInitUntyped {
		it := &a.initUntyped[i]
		if paddr >= it.Paddr && uint64(paddr-it.Paddr) < it.Size() {
			return i, true
		}
	}
	return -1, false
}

// -----------------------------------------------------------------------------
// Allocate
// -----------------------------------------------------------------------------

type sourceKind uint8

const (
	fromBucket sourceKind = iota
	fromItem
	fromHalving
)

// source is a planned place to retype from. Planning never mutates the
// allocator, so a request that cannot be met leaves no trace.
type source struct {
	kind     sourceKind
	item     int    // fromItem
	offset   uint64 // fromItem: where the object lands
	sizeBits uint   // fromHalving: class of the capability to halve
}

// bestFit picks the smallest non-device item with room for an object of
// objSize bytes. Items already being carved win ties over untouched ones so
// that whole regions stay available for large requests.
func (a *Allocator) bestFit(objSize uint64) (int, uint64, bool) {
	best, bestOff := -1, uint64(0)
	for i := range a.numInitUntyped {
		it := &a.initUntyped[i]
		if it.IsDevice {
			continue
		}
		off, ok := it.fitOffset(objSize)
		if !ok {
			continue
		}
		if best >= 0 {
			b := &a.initUntyped[best]
			if it.SizeBits > b.SizeBits {
				continue
			}
			if it.SizeBits == b.SizeBits && (it.IsFree() || !b.IsFree()) {
				continue
			}
		}
		best, bestOff = i, off
	}
	return best, bestOff, best >= 0
}

func (a *Allocator) planSource(utBits uint) (source, error) {
	if b := a.bucketFor(utBits); b != nil && !b.empty() {
		return source{kind: fromBucket}, nil
	}
	if i, off, ok := a.bestFit(format.BitsToSize(utBits)); ok {
		return source{kind: fromItem, item: i, offset: off}, nil
	}
	if utBits >= MinUntypedSize {
		for bits := utBits + 1; bits <= MaxUntypedSize; bits++ {
			if !a.bucketFor(bits).empty() {
				return source{kind: fromHalving, sizeBits: bits}, nil
			}
		}
	}
	return source{}, ErrNoUntyped.Wrapf("%d-bit object", utBits)
}

// Allocate retypes one object of type t into a fresh slot and returns the
// slot. sizeBits only matters for variable-sized objects (untyped, capability
// tables).
//
// The object comes from an exact-size untyped left over by an earlier split,
// else from the best-fitting boot untyped region, else from halving a larger
// leftover. Device regions are never used here.
func (a *Allocator) Allocate(t types.ObjectType, sizeBits uint) (types.CPtr, error) {
	utBits := a.arch.ObjectSizeBits(t, sizeBits)

	src, err := a.planSource(utBits)
	if err != nil {
		return types.NullCap, err
	}

	switch src.kind {
	case fromBucket:
		slot, err := a.AllocSlot()
		if err != nil {
			return types.NullCap, err
		}
		ut, _ := a.bucketFor(utBits).pop()
		if err := a.retype(ut, t, sizeBits, slot); err != nil {
			return types.NullCap, err
		}
		return slot, nil

	case fromItem:
		slot, err := a.AllocSlot()
		if err != nil {
			return types.NullCap, err
		}
		it := &a.initUntyped[src.item]
		if err := a.retype(it.Cap, t, sizeBits, slot); err != nil {
			return types.NullCap, err
		}
		it.advance(src.offset+format.BitsToSize(utBits), StateCarving)
		return slot, nil

	default:
		return a.allocateHalving(t, sizeBits, utBits, src.sizeBits)
	}
}

// allocateHalving splits a leftover untyped of 2^from bytes in two until a
// half of 2^utBits bytes remains, filing every other half under its size
// class, then retypes the object from that last half.
func (a *Allocator) allocateHalving(t types.ObjectType, sizeBits, utBits, from uint) (types.CPtr, error) {
	need := 2*uint64(from-utBits) + 1
	if a.FreeSlots() < need {
		return types.NullCap, ErrNoSlots.Wrapf("halving %d-bit untyped needs %d slots, %d free", from, need, a.FreeSlots())
	}

	ut, _ := a.bucketFor(from).pop()
	for bits := from; bits > utBits; bits-- {
		halves, err := a.AllocSlotRange(2)
		if err != nil {
			return types.NullCap, err
		}
		path := a.MakePath(halves)
		if e := a.k.Retype(ut, types.UntypedObject, bits-1, path.Root, path.Dest, path.DestDepth, path.Offset, 2); !e.OK() {
			a.stats.LostSplits++
			a.log.Debug("halving failed", "untyped", ut, "size_bits", bits, "err", e)
			return types.NullCap, ErrRetype.Wrapf("halving %d-bit untyped %d: %w", bits, ut, e)
		}
		a.stats.Retypes++
		a.stats.Halvings++
		a.stash(halves+1, bits-1)
		ut = halves
	}

	slot, err := a.AllocSlot()
	if err != nil {
		return types.NullCap, err
	}
	if err := a.retype(ut, t, sizeBits, slot); err != nil {
		return types.NullCap, err
	}
	return slot, nil
}

// -----------------------------------------------------------------------------
// AllocateAt
// -----------------------------------------------------------------------------

// splitStep returns the size exponent of the next sibling to carve at offset
// pos with rem bytes left before the target.
func splitStep(pos, rem uint64) uint {
	return min(format.FloorLog2(rem), format.AlignmentBits(pos))
}

// AllocateAt retypes one object of type t whose physical address is exactly
// paddr.
//
// The boot untyped item covering paddr is walked from its watermark up to
// paddr by retyping power-of-two untyped siblings off the front, each as
// large as both the remaining distance and the current alignment allow. The
// siblings of ordinary memory are kept for later Allocate calls. Every
// precondition is checked before the first kernel call.
func (a *Allocator) AllocateAt(t types.ObjectType, sizeBits uint, paddr types.Word) (types.CPtr, error) {
	objBits := a.arch.ObjectSizeBits(t, sizeBits)
	objSize := format.BitsToSize(objBits)

	idx, ok := a.ContainedPaddr(paddr)
	if !ok {
		return types.NullCap, ErrNotContained.Wrapf("%#x", uint64(paddr))
	}
	it := &a.initUntyped[idx]

	if it.state == StateExhausted {
		return types.NullCap, ErrUnsplittable.Wrapf("%#x: region %d is exhausted", uint64(paddr), it.Cap)
	}
	if it.IsDevice && !t.IsFrame() && t != types.UntypedObject {
		return types.NullCap, ErrDeviceObject.Wrapf("%s at %#x", t, uint64(paddr))
	}
	if !format.IsAligned(uint64(paddr), objSize) {
		return types.NullCap, ErrUnsplittable.Wrapf("%#x not aligned to %d-bit %s", uint64(paddr), objBits, t)
	}
	off := uint64(paddr - it.Paddr)
	if off+objSize > it.Size() {
		return types.NullCap, ErrUnsplittable.Wrapf("%d-bit %s at %#x overruns region %d", objBits, t, uint64(paddr), it.Cap)
	}
	if off < it.watermark {
		return types.NullCap, ErrUnsplittable.Wrapf("%#x below watermark %#x of region %d",
			uint64(paddr), uint64(it.Paddr)+it.watermark, it.Cap)
	}
	rem := off - it.watermark
	if rem%format.BitsToSize(MinUntypedSize) != 0 {
		return types.NullCap, ErrUnsplittable.Wrapf("%#x: distance %#x from watermark is not a multiple of %d",
			uint64(paddr), rem, format.BitsToSize(MinUntypedSize))
	}

	steps := uint64(0)
	for pos, left := it.watermark, rem; left > 0; steps++ {
		n := format.BitsToSize(splitStep(pos, left))
		pos += n
		left -= n
	}
	if a.FreeSlots() < steps+1 {
		return types.NullCap, ErrNoSlots.Wrapf("walk to %#x needs %d slots, %d free", uint64(paddr), steps+1, a.FreeSlots())
	}

	for it.watermark < off {
		bits := splitStep(it.watermark, off-it.watermark)
		slot, err := a.AllocSlot()
		if err != nil {
			return types.NullCap, err
		}
		if err := a.retype(it.Cap, types.UntypedObject, bits, slot); err != nil {
			return types.NullCap, err
		}
		a.log.Debug("split step",
			"region", it.Cap,
			"paddr", fmt.Sprintf("%#x", uint64(it.Paddr)+it.watermark),
			"size_bits", bits,
			"slot", slot)
		it.advance(it.watermark+format.BitsToSize(bits), StateSplit)
		a.stats.Splits++
		if !it.IsDevice {
			a.stash(slot, bits)
		}
	}

	slot, err := a.AllocSlot()
	if err != nil {
		return types.NullCap, err
	}
	if err := a.retype(it.Cap, t, sizeBits, slot); err != nil {
		return types.NullCap, err
	}
	it.advance(off+objSize, StateCarving)
	return slot, nil
}
