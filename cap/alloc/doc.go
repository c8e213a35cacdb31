// Package alloc turns the fixed set of capabilities a microkernel grants the
// initial thread into working resources: capability slots, typed kernel
// objects, mapped virtual pages and physically addressed DMA memory.
//
// # Overview
//
// The kernel only provides primitive, irreversible operations (retype an
// untyped capability, map a page, mint a badged copy). This package adds the
// allocation policy and bookkeeping on top of them. Four components share one
// Allocator record:
//
//   - Slot allocator: bump allocation over the empty capability-table window
//   - Untyped allocator: carves typed objects out of boot untyped regions,
//     including address-targeted carving for DMA and device memory
//   - VSpace manager: a monotonically increasing mapping cursor with page
//     tables created on demand
//   - Physical/DMA layer: pages with a known physical address and cache
//     maintenance over virtual ranges
//
// # Usage Example
//
//	a, err := alloc.New(k, bootInfo, nil)
//	if err != nil {
//	    return err
//	}
//
//	// Allocate an endpoint
//	ep, err := a.AllocEndpoint()
//
//	// Map four pages of stack with a guard page below them
//	top, err := a.NewStack(4)
//
//	// Map a DMA buffer at a device-visible physical address
//	region, err := a.NewPagesAtPhysicalAddress(0x1000_4000, 2, types.VMNoAttributes)
//
// # Untyped Carving
//
// Every boot untyped item is carved front to back, like a bump allocator: an
// object of 2^n bytes is placed at the next 2^n-aligned offset past the
// item's watermark, exactly where the kernel's retype will put it. Address-
// targeted requests first walk the watermark up to the target by retyping
// power-of-two untyped siblings off the front; those siblings are kept in
// size-class buckets and reused by later allocations of the same size.
//
// Allocation prefers, in order: an exact-size bucket capability, the
// smallest non-device inventory item with room (items already being carved
// before untouched ones), and finally halving a larger bucket capability.
//
// # Errors and Faults
//
// Recoverable failures are *types.Error values with kind ResourceExhausted,
// InvalidAddress or Other. Broken invariants (physical address mismatch after
// a targeted mapping, undersized or misaligned stacks, unknown object types,
// failed cache maintenance) panic with a *types.Fault. Nothing is retried: a
// failed kernel invocation may still have consumed kernel-side state.
//
// # Thread Safety
//
// Allocator instances are not thread-safe. The allocator is owned by the
// bootstrap thread; concurrent callers must hold one lock around every
// operation, since slot allocation, retype and mapping are separate kernel
// calls with observable intermediate state.
package alloc
