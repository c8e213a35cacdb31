package alloc

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/capkit/cap/arch"
	"github.com/joshuapare/capkit/cap/bootinfo"
	"github.com/joshuapare/capkit/cap/kernel"
	"github.com/joshuapare/capkit/pkg/types"
)

const (
	// MinUntypedSize is the smallest untyped size exponent tracked by the
	// size-class buckets.
	MinUntypedSize = 4

	// MaxUntypedSize is the largest untyped size exponent tracked by the
	// size-class buckets.
	MaxUntypedSize = 32

	// MaxUntypedItems is the capacity of the boot untyped inventory.
	MaxUntypedItems = 256

	numSizeClasses = MaxUntypedSize - MinUntypedSize + 1
)

// Allocator owns every piece of process-wide allocation state: the slot
// window, the boot untyped inventory, the size-class buckets and the vspace
// cursor. Create one with New and pass it explicitly; there is no global
// instance.
//
// NOT thread-safe. See the package documentation.
type Allocator struct {
	k    kernel.Kernel
	mem  kernel.Memory
	arch *arch.Arch
	opts Options
	log  *slog.Logger

	// Root page directory for our vspace and the most recently created
	// page table.
	pageDirectory types.CPtr
	pageTable     types.CPtr
	lastAllocated types.Word

	// Capability table we allocate from.
	rootCNode      types.CPtr
	rootCNodeDepth uint

	// Range of free slots in the root capability table.
	cslots       types.CapRange
	numSlotsUsed uint64

	// Boot untyped inventory.
	numInitUntyped int
	initUntyped    [MaxUntypedItems]InitUntypedItem

	// Untyped capabilities created by splits, by size exponent.
	untypedItems [numSizeClasses]bucket

	stats allocatorStats
}

// allocatorStats holds internal allocator statistics.
type allocatorStats struct {
	Retypes      int // successful retypes issued
	Splits       int // untyped siblings created while walking to an address
	Halvings     int // bucket capabilities halved to reach a smaller class
	PageTables   int // paging structures created on demand
	PagesMapped  int // frames mapped
	Minted       int // badged copies minted
	IgnoredFrees int // FreeSlot calls that could not return the slot
	LostSplits   int // split siblings that fit no bucket
}

// New creates an allocator from the boot description. The kernel is used for
// every capability invocation; opts may be nil for defaults.
func New(k kernel.Kernel, bi *bootinfo.BootInfo, opts *Options) (*Allocator, error) {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	o = o.withDefaults(k, bi.Arch)
	if err := o.validate(); err != nil {
		return nil, err
	}
	if err := bi.Validate(MaxUntypedItems); err != nil {
		return nil, err
	}

	a := &Allocator{
		k:              k,
		mem:            o.Memory,
		arch:           o.Arch,
		opts:           o,
		log:            o.Logger,
		rootCNode:      bi.InitCap(types.InitThreadCNode),
		rootCNodeDepth: o.Arch.WordBits,
		cslots:         bi.Empty,
	}
	for _, d := range bi.Untyped {
		a.addRootUntyped(UntypedItem{Cap: d.Cap, SizeBits: d.SizeBits, Paddr: d.Paddr, IsDevice: d.IsDevice})
	}
	a.BootstrapVSpace(o.VSpaceRoot)

	a.log.Debug("allocator ready",
		"arch", a.arch.Name,
		"slots", a.cslots.String(),
		"untyped", a.numInitUntyped,
		"vspace_start", fmt.Sprintf("%#x", uint64(a.lastAllocated)))
	return a, nil
}

// Arch returns the architecture descriptor in use.
func (a *Allocator) Arch() *arch.Arch { return a.arch }

// retype issues a single-object retype of ut into dest and counts it.
func (a *Allocator) retype(ut types.CPtr, t types.ObjectType, sizeBits uint, dest types.CPtr) error {
	path := a.MakePath(dest)
	if e := a.k.Retype(ut, t, sizeBits, path.Root, path.Dest, path.DestDepth, path.Offset, 1); !e.OK() {
		a.log.Debug("retype failed", "untyped", ut, "type", t.String(), "size_bits", sizeBits, "dest", dest, "err", e)
		return ErrRetype.Wrapf("%s (%d bits) from untyped %d into slot %d: %w", t, sizeBits, ut, dest, e)
	}
	a.stats.Retypes++
	return nil
}
