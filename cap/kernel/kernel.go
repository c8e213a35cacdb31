// Package kernel defines the capability-invocation boundary between the
// allocators and the microkernel.
//
// The allocators never call the kernel directly. Every primitive they need
// (retype, map, mint, cache maintenance, physical address lookup) goes
// through the Kernel interface, which returns the kernel's own error code.
// Real deployments bind Kernel to system-call stubs; tests and the capctl
// tool use Sim, an in-process model of the same semantics.
package kernel

import (
	"fmt"

	"github.com/joshuapare/capkit/pkg/types"
)

// Error is a kernel invocation result code. NoError means success.
// The values follow the kernel ABI's error enumeration.
type Error uint

const (
	NoError Error = iota
	InvalidArgument
	InvalidCapability
	IllegalOperation
	RangeError
	AlignmentError
	FailedLookup
	TruncatedMessage
	DeleteFirst
	RevokeFirst
	NotEnoughMemory
)

var errorNames = [...]string{
	NoError:           "NoError",
	InvalidArgument:   "InvalidArgument",
	InvalidCapability: "InvalidCapability",
	IllegalOperation:  "IllegalOperation",
	RangeError:        "RangeError",
	AlignmentError:    "AlignmentError",
	FailedLookup:      "FailedLookup",
	TruncatedMessage:  "TruncatedMessage",
	DeleteFirst:       "DeleteFirst",
	RevokeFirst:       "RevokeFirst",
	NotEnoughMemory:   "NotEnoughMemory",
}

func (e Error) Error() string {
	if int(e) < len(errorNames) {
		return "kernel: " + errorNames[e]
	}
	return fmt.Sprintf("kernel: error %d", uint(e))
}

// OK reports whether the invocation succeeded.
func (e Error) OK() bool { return e == NoError }

// CacheOp selects a data-cache maintenance operation.
type CacheOp int

const (
	Clean CacheOp = iota
	Invalidate
	CleanInvalidate
)

func (op CacheOp) String() string {
	switch op {
	case Clean:
		return "clean"
	case Invalidate:
		return "invalidate"
	case CleanInvalidate:
		return "clean+invalidate"
	default:
		return fmt.Sprintf("CacheOp(%d)", int(op))
	}
}

// Kernel is the opaque capability-invocation interface. Each method maps to
// exactly one kernel invocation; none of them block, and a failure may still
// have consumed kernel-side state, so callers never retry blindly.
type Kernel interface {
	// Retype creates numObjects objects of type t from the untyped
	// capability ut. The new capabilities land in consecutive slots starting
	// at nodeOffset of the capability table found by resolving nodeIndex to
	// nodeDepth bits in root (nodeDepth 0 selects root itself).
	Retype(ut types.CPtr, t types.ObjectType, sizeBits uint, root types.CPtr,
		nodeIndex types.CPtr, nodeDepth uint, nodeOffset types.CPtr, numObjects uint) Error

	// MapPage maps a frame into the vspace rooted at vspace.
	MapPage(frame, vspace types.CPtr, vaddr types.Word, rights types.CapRights, attrs types.VMAttributes) Error

	// MapPageTable installs a paging structure (page table or any
	// intermediate directory) covering vaddr.
	MapPageTable(table, vspace types.CPtr, vaddr types.Word, attrs types.VMAttributes) Error

	// Mint copies the capability at srcIndex into destIndex with reduced
	// rights and the given badge.
	Mint(destRoot, destIndex types.CPtr, destDepth uint,
		srcRoot, srcIndex types.CPtr, srcDepth uint, rights types.CapRights, badge types.Word) Error

	// CleanData, InvalidateData and CleanInvalidateData perform data-cache
	// maintenance over [start, end), which must lie inside one mapped page.
	CleanData(vspace types.CPtr, start, end types.Word) Error
	InvalidateData(vspace types.CPtr, start, end types.Word) Error
	CleanInvalidateData(vspace types.CPtr, start, end types.Word) Error

	// PageGetAddress returns the physical address backing a frame.
	PageGetAddress(frame types.CPtr) (types.Word, Error)
}

// Memory writes words into the caller's own mapped address space. The IPC
// buffer set-up needs it to store the buffer's address inside the buffer.
type Memory interface {
	PutWord(vaddr types.Word, value types.Word) error
}

// CacheMaintenance dispatches op to the matching Kernel method.
func CacheMaintenance(k Kernel, op CacheOp, vspace types.CPtr, start, end types.Word) Error {
	switch op {
	case Clean:
		return k.CleanData(vspace, start, end)
	case Invalidate:
		return k.InvalidateData(vspace, start, end)
	case CleanInvalidate:
		return k.CleanInvalidateData(vspace, start, end)
	}
	return InvalidArgument
}
