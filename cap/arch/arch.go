// Package arch describes the architecture-dependent half of the kernel ABI
// that the allocators need: word width, page and paging-structure sizes, and
// the untyped size each kernel object type consumes.
//
// The object catalog is closed. Asking for the size of an object type the
// architecture does not know is a configuration defect and raises a
// *types.Fault rather than returning an error.
package arch

import (
	"github.com/joshuapare/capkit/pkg/types"
)

// Level is one paging structure below the vspace root, listed from the
// lowest level (the page table that holds frame entries) upwards.
type Level struct {
	// Type is the object type the kernel expects for this level.
	Type types.ObjectType
	// CoverBits is log2 of the virtual span one object of this level maps.
	CoverBits uint
}

// Arch is an immutable architecture descriptor.
type Arch struct {
	Name     string
	WordBits uint

	SlotBits         uint
	TCBBits          uint
	EndpointBits     uint
	NotificationBits uint

	PageBits      uint
	LargePageBits uint
	HugePageBits  uint // 0 when the architecture has no huge pages

	PageTableBits     uint
	PageDirBits       uint
	PageUpperDirBits  uint // 0 on AArch32
	PageGlobalDirBits uint // 0 on AArch32

	// RootType is the object type of the vspace root.
	RootType types.ObjectType

	// Levels lists the paging structures created on demand, lowest first.
	Levels []Level
}

// AArch32 is the 32-bit ARM descriptor: a page directory root whose entries
// point at 1 MiB page tables.
var AArch32 = &Arch{
	Name:     "aarch32",
	WordBits: 32,

	SlotBits:         4,
	TCBBits:          9,
	EndpointBits:     4,
	NotificationBits: 4,

	PageBits:      12,
	LargePageBits: 16,

	PageTableBits: 10,
	PageDirBits:   14,

	RootType: types.PageDirectoryObject,
	Levels: []Level{
		{Type: types.PageTableObject, CoverBits: 20},
	},
}

// AArch64 is the 64-bit ARM descriptor with a four-level translation tree
// rooted at a page global directory.
var AArch64 = &Arch{
	Name:     "aarch64",
	WordBits: 64,

	SlotBits:         5,
	TCBBits:          11,
	EndpointBits:     4,
	NotificationBits: 5,

	PageBits:      12,
	LargePageBits: 21,
	HugePageBits:  30,

	PageTableBits:     12,
	PageDirBits:       12,
	PageUpperDirBits:  12,
	PageGlobalDirBits: 12,

	RootType: types.PageGlobalDirectoryObject,
	Levels: []Level{
		{Type: types.PageTableObject, CoverBits: 21},
		{Type: types.PageDirectoryObject, CoverBits: 30},
		{Type: types.PageUpperDirectoryObject, CoverBits: 39},
	},
}

// ByName resolves "aarch32"/"arm" and "aarch64"/"arm64".
func ByName(name string) (*Arch, bool) {
	switch name {
	case "aarch32", "arm":
		return AArch32, true
	case "aarch64", "arm64":
		return AArch64, true
	}
	return nil, false
}

// WordBytes returns the machine word size in bytes.
func (a *Arch) WordBytes() uint64 { return uint64(a.WordBits / 8) }

// PageSize returns the smallest page size in bytes.
func (a *Arch) PageSize() uint64 { return uint64(1) << a.PageBits }

// LookupObjectSizeBits returns the untyped size exponent needed to create an
// object of type t. For untyped objects sizeBits is the object size itself;
// for capability tables it is the table size exponent (number of slots).
// ok is false for object types the architecture does not provide.
func (a *Arch) LookupObjectSizeBits(t types.ObjectType, sizeBits uint) (bits uint, ok bool) {
	switch t {
	case types.UntypedObject:
		return sizeBits, true
	case types.TCBObject:
		return a.TCBBits, true
	case types.EndpointObject:
		return a.EndpointBits, true
	case types.NotificationObject:
		return a.NotificationBits, true
	case types.CapTableObject:
		return a.SlotBits + sizeBits, true
	}
	return a.archObjectSizeBits(t)
}

func (a *Arch) archObjectSizeBits(t types.ObjectType) (uint, bool) {
	var bits uint
	switch t {
	case types.SmallPageObject:
		bits = a.PageBits
	case types.LargePageObject:
		bits = a.LargePageBits
	case types.HugePageObject:
		bits = a.HugePageBits
	case types.PageTableObject:
		bits = a.PageTableBits
	case types.PageDirectoryObject:
		bits = a.PageDirBits
	case types.PageUpperDirectoryObject:
		bits = a.PageUpperDirBits
	case types.PageGlobalDirectoryObject:
		bits = a.PageGlobalDirBits
	}
	return bits, bits != 0
}

// ObjectSizeBits is LookupObjectSizeBits for callers that only ever ask about
// catalogued types. An unknown combination raises a *types.Fault.
func (a *Arch) ObjectSizeBits(t types.ObjectType, sizeBits uint) uint {
	bits, ok := a.LookupObjectSizeBits(t, sizeBits)
	if !ok {
		types.Faultf("arch", "%s: unknown object type %s", a.Name, t)
	}
	return bits
}

// FrameType returns the frame object type for a page of 2^sizeBits bytes.
func (a *Arch) FrameType(sizeBits uint) (types.ObjectType, bool) {
	switch {
	case sizeBits == a.PageBits:
		return types.SmallPageObject, true
	case sizeBits == a.LargePageBits:
		return types.LargePageObject, true
	case a.HugePageBits != 0 && sizeBits == a.HugePageBits:
		return types.HugePageObject, true
	}
	return 0, false
}

// LevelOf returns the index in Levels of a paging structure type.
func (a *Arch) LevelOf(t types.ObjectType) (int, bool) {
	for i, l := range a.Levels {
		if l.Type == t {
			return i, true
		}
	}
	return 0, false
}
