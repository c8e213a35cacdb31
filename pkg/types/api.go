package types

import "fmt"

// -----------------------------------------------------------------------------
// Core Identifiers
// -----------------------------------------------------------------------------

// CPtr is a capability pointer: an index into the process's capability table.
type CPtr uint64

// Word is a machine word as understood by the kernel ABI. It is wide enough
// for both 32-bit and 64-bit targets; arch.Arch describes the real width.
type Word uint64

// NullCap is the capability pointer that never names an object.
const NullCap CPtr = 0

// CapRange is a contiguous run of capability slots [First, First+Count).
//
// It describes the free-slot window of the slot allocator and, inside the
// untyped allocator, a run of same-sized untyped capabilities created by a
// single retype.
type CapRange struct {
	First CPtr   `json:"first"`
	Count uint64 `json:"count"`
}

// Empty reports whether the range holds no slots.
func (r CapRange) Empty() bool { return r.Count == 0 }

// End returns the first slot past the range.
func (r CapRange) End() CPtr { return r.First + CPtr(r.Count) }

// Contains reports whether slot lies inside the range.
func (r CapRange) Contains(slot CPtr) bool {
	return slot >= r.First && slot < r.End()
}

func (r CapRange) String() string {
	return fmt.Sprintf("[%d..%d)", r.First, r.End())
}

// CapRights is the access-rights mask passed to map and mint invocations.
type CapRights uint8

const (
	RightWrite CapRights = 1 << iota
	RightRead
	RightGrant
	RightGrantReply
)

// RightsAll grants read, write and grant, matching seL4_AllRights for the
// three rights the allocators ever hand out.
const RightsAll = RightWrite | RightRead | RightGrant

// VMAttributes are the architecture cache/execute attributes applied to a
// mapping.
type VMAttributes uint32

const (
	// VMNoAttributes maps memory uncached.
	VMNoAttributes VMAttributes = 0
	// VMPageCacheable marks the mapping cacheable.
	VMPageCacheable VMAttributes = 1 << 0
	// VMParityEnabled enables parity checking (AArch32 only).
	VMParityEnabled VMAttributes = 1 << 1
	// VMExecuteNever forbids instruction fetch from the mapping.
	VMExecuteNever VMAttributes = 1 << 2

	// VMDefaultAttributes matches seL4_ARM_Default_VMAttributes.
	VMDefaultAttributes = VMPageCacheable | VMParityEnabled
)

// Cacheable reports whether the attributes request a cached mapping.
func (a VMAttributes) Cacheable() bool { return a&VMPageCacheable != 0 }
