package alloc

import (
	"github.com/joshuapare/capkit/pkg/types"
)

// ItemStats describes one boot untyped item.
type ItemStats struct {
	Cap       types.CPtr `json:"cap"`
	SizeBits  uint       `json:"size_bits"`
	Paddr     types.Word `json:"paddr"`
	Device    bool       `json:"device"`
	State     string     `json:"state"`
	Watermark uint64     `json:"watermark"`
}

// ClassStats describes one non-empty size-class bucket.
type ClassStats struct {
	SizeBits uint   `json:"size_bits"`
	Count    uint64 `json:"count"`
	Runs     int    `json:"runs"`
}

// Stats is a point-in-time snapshot of allocator state.
type Stats struct {
	Arch string `json:"arch"`

	// Slot window
	FreeWindow   types.CapRange `json:"free_window"`
	UsedSlots    uint64         `json:"used_slots"`
	FreeSlots    uint64         `json:"free_slots"`
	IgnoredFrees int            `json:"ignored_frees"`

	// Untyped memory
	Untyped    []ItemStats  `json:"untyped"`
	Classes    []ClassStats `json:"classes"`
	LostSplits int          `json:"lost_splits"`

	// VSpace
	Root          types.CPtr `json:"root"`
	Cursor        types.Word `json:"cursor"`
	LastPageTable types.CPtr `json:"last_page_table"`

	// Kernel activity
	Retypes     int `json:"retypes"`
	Splits      int `json:"splits"`
	Halvings    int `json:"halvings"`
	PageTables  int `json:"page_tables"`
	PagesMapped int `json:"pages_mapped"`
	Minted      int `json:"minted"`
}

// Stats returns a snapshot of the allocator's bookkeeping.
func (a *Allocator) Stats() Stats {
	s := Stats{
		Arch:          a.arch.Name,
		FreeWindow:    a.cslots,
		UsedSlots:     a.numSlotsUsed,
		FreeSlots:     a.cslots.Count,
		IgnoredFrees:  a.stats.IgnoredFrees,
		LostSplits:    a.stats.LostSplits,
		Root:          a.pageDirectory,
		Cursor:        a.lastAllocated,
		LastPageTable: a.pageTable,
		Retypes:       a.stats.Retypes,
		Splits:        a.stats.Splits,
		Halvings:      a.stats.Halvings,
		PageTables:    a.stats.PageTables,
		PagesMapped:   a.stats.PagesMapped,
		Minted:        a.stats.Minted,
	}
	for i := range a.numInitUntyped {
		it := &a.initUntyped[i]
		s.Untyped = append(s.Untyped, ItemStats{
			Cap:       it.Cap,
			SizeBits:  it.SizeBits,
			Paddr:     it.Paddr,
			Device:    it.IsDevice,
			State:     it.state.String(),
			Watermark: it.watermark,
		})
	}
	for i := range a.untypedItems {
		b := &a.untypedItems[i]
		if b.empty() {
			continue
		}
		s.Classes = append(s.Classes, ClassStats{
			SizeBits: uint(i) + MinUntypedSize,
			Count:    b.count(),
			Runs:     b.n,
		})
	}
	return s
}
