package alloc

import "github.com/joshuapare/capkit/pkg/types"

var (
	// ErrNoSlots indicates the free capability-slot window is empty or too
	// small for the request.
	ErrNoSlots = &types.Error{Kind: types.ErrKindResourceExhausted, Msg: "alloc: no free capability slots"}

	// ErrNoUntyped indicates no untyped region is large enough for the request.
	ErrNoUntyped = &types.Error{Kind: types.ErrKindResourceExhausted, Msg: "alloc: no untyped region large enough"}

	// ErrUnsplittable indicates an untyped region contains the requested
	// physical address but cannot be carved up to it.
	ErrUnsplittable = &types.Error{Kind: types.ErrKindResourceExhausted, Msg: "alloc: untyped region cannot be split to address"}

	// ErrRetype indicates the kernel refused a retype.
	ErrRetype = &types.Error{Kind: types.ErrKindResourceExhausted, Msg: "alloc: retype failed"}

	// ErrTooManyPages indicates a mapping request larger than the per-call
	// frame buffer.
	ErrTooManyPages = &types.Error{Kind: types.ErrKindResourceExhausted, Msg: "alloc: too many pages for one mapping"}

	// ErrNotContained indicates a physical address outside every boot
	// untyped region.
	ErrNotContained = &types.Error{Kind: types.ErrKindInvalidAddress, Msg: "alloc: physical address not in any untyped region"}

	// ErrMap indicates the kernel refused to map a page or paging structure.
	ErrMap = &types.Error{Kind: types.ErrKindOther, Msg: "alloc: mapping failed"}

	// ErrMint indicates the kernel refused to mint a capability.
	ErrMint = &types.Error{Kind: types.ErrKindOther, Msg: "alloc: mint failed"}

	// ErrPhysAddr indicates the kernel could not report a frame's address.
	ErrPhysAddr = &types.Error{Kind: types.ErrKindOther, Msg: "alloc: physical address lookup failed"}

	// ErrPageSize indicates a page size the architecture cannot map.
	ErrPageSize = &types.Error{Kind: types.ErrKindOther, Msg: "alloc: unsupported page size"}

	// ErrPageCount indicates a non-positive page count.
	ErrPageCount = &types.Error{Kind: types.ErrKindOther, Msg: "alloc: page count must be positive"}

	// ErrDeviceObject indicates an attempt to back a non-frame object with
	// device memory.
	ErrDeviceObject = &types.Error{Kind: types.ErrKindOther, Msg: "alloc: device memory can only back frames and untyped"}

	// ErrIPCBuffer indicates the IPC buffer's self pointer could not be stored.
	ErrIPCBuffer = &types.Error{Kind: types.ErrKindOther, Msg: "alloc: cannot initialise IPC buffer"}
)
