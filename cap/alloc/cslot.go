package alloc

import "github.com/joshuapare/capkit/pkg/types"

// CSpacePath names one slot for a kernel invocation: the capability table to
// resolve against, the slot index and the depth to resolve it to, plus the
// retype destination triple (node, depth, offset) for the same slot.
type CSpacePath struct {
	Root     types.CPtr
	CapPtr   types.CPtr
	CapDepth uint

	Dest      types.CPtr
	DestDepth uint
	Offset    types.CPtr
	Window    uint
}

// AllocSlot returns the next unused slot of the free window. Slots come out
// in increasing order.
func (a *Allocator) AllocSlot() (types.CPtr, error) {
	if a.cslots.Empty() {
		return types.NullCap, ErrNoSlots
	}
	slot := a.cslots.First
	a.cslots.First++
	a.cslots.Count--
	a.numSlotsUsed++
	return slot, nil
}

// AllocSlotRange reserves n contiguous slots and returns the first one.
func (a *Allocator) AllocSlotRange(n uint64) (types.CPtr, error) {
	if n == 0 {
		return types.NullCap, ErrNoSlots.Wrapf("empty slot range requested")
	}
	if a.cslots.Count < n {
		return types.NullCap, ErrNoSlots.Wrapf("need %d slots, %d free", n, a.cslots.Count)
	}
	first := a.cslots.First
	a.cslots.First += types.CPtr(n)
	a.cslots.Count -= n
	a.numSlotsUsed += n
	return first, nil
}

// FreeSlot hands a slot back to the window. The caller must already have
// deleted whatever the slot held.
//
// Only the most recently allocated slot can be returned, which keeps the
// window a single contiguous run. Any other slot is kept allocated and the
// call is logged.
func (a *Allocator) FreeSlot(slot types.CPtr) {
	if a.numSlotsUsed > 0 && slot+1 == a.cslots.First {
		a.cslots.First--
		a.cslots.Count++
		a.numSlotsUsed--
		return
	}
	a.stats.IgnoredFrees++
	a.log.Warn("slot not reclaimed", "slot", slot, "next_free", a.cslots.First)
}

// MakePath returns the path addressing slot in the root capability table.
func (a *Allocator) MakePath(slot types.CPtr) CSpacePath {
	return CSpacePath{
		Root:      a.rootCNode,
		CapPtr:    slot,
		CapDepth:  a.rootCNodeDepth,
		Dest:      a.rootCNode,
		DestDepth: a.rootCNodeDepth,
		Offset:    slot,
		Window:    1,
	}
}

// FreeSlots returns the number of slots left in the window.
func (a *Allocator) FreeSlots() uint64 { return a.cslots.Count }

// UsedSlots returns the number of slots handed out so far.
func (a *Allocator) UsedSlots() uint64 { return a.numSlotsUsed }

// Mint allocates a slot and fills it with a copy of src carrying the given
// rights and badge.
func (a *Allocator) Mint(src types.CPtr, rights types.CapRights, badge types.Word) (types.CPtr, error) {
	slot, err := a.AllocSlot()
	if err != nil {
		return types.NullCap, err
	}
	dst := a.MakePath(slot)
	from := a.MakePath(src)
	if e := a.k.Mint(dst.Root, dst.CapPtr, dst.CapDepth, from.Root, from.CapPtr, from.CapDepth, rights, badge); !e.OK() {
		return types.NullCap, ErrMint.Wrapf("copy of %d into %d: %w", src, slot, e)
	}
	a.stats.Minted++
	a.log.Debug("minted", "src", src, "dest", slot, "badge", uint64(badge))
	return slot, nil
}
