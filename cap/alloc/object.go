package alloc

import "github.com/joshuapare/capkit/pkg/types"

// Object is a kernel object created by the allocator.
type Object struct {
	Cap      types.CPtr
	Type     types.ObjectType
	SizeBits uint // log2 of the object's footprint in bytes
}

// AllocObject creates one object of type t. sizeBits is the object size for
// untyped objects and the slot count exponent for capability tables; other
// types ignore it.
func (a *Allocator) AllocObject(t types.ObjectType, sizeBits uint) (Object, error) {
	slot, err := a.Allocate(t, sizeBits)
	if err != nil {
		return Object{}, err
	}
	return Object{Cap: slot, Type: t, SizeBits: a.arch.ObjectSizeBits(t, sizeBits)}, nil
}

// AllocUntyped creates an untyped object of 2^sizeBits bytes.
func (a *Allocator) AllocUntyped(sizeBits uint) (Object, error) {
	return a.AllocObject(types.UntypedObject, sizeBits)
}

// AllocFrame creates an unmapped frame of 2^sizeBits bytes.
func (a *Allocator) AllocFrame(sizeBits uint) (Object, error) {
	t, ok := a.arch.FrameType(sizeBits)
	if !ok {
		return Object{}, ErrPageSize.Wrapf("%d bits on %s", sizeBits, a.arch.Name)
	}
	return a.AllocObject(t, 0)
}

// AllocFrameAt creates an unmapped frame of 2^sizeBits bytes at paddr.
func (a *Allocator) AllocFrameAt(paddr types.Word, sizeBits uint) (Object, error) {
	t, ok := a.arch.FrameType(sizeBits)
	if !ok {
		return Object{}, ErrPageSize.Wrapf("%d bits on %s", sizeBits, a.arch.Name)
	}
	slot, err := a.AllocateAt(t, 0, paddr)
	if err != nil {
		return Object{}, err
	}
	return Object{Cap: slot, Type: t, SizeBits: sizeBits}, nil
}

// AllocPageTable creates a last-level page table.
func (a *Allocator) AllocPageTable() (Object, error) {
	return a.AllocObject(a.arch.Levels[0].Type, 0)
}

// AllocTCB creates a thread control block.
func (a *Allocator) AllocTCB() (Object, error) {
	return a.AllocObject(types.TCBObject, 0)
}

// AllocEndpoint creates an IPC endpoint.
func (a *Allocator) AllocEndpoint() (Object, error) {
	return a.AllocObject(types.EndpointObject, 0)
}

// AllocNotification creates a notification object.
func (a *Allocator) AllocNotification() (Object, error) {
	return a.AllocObject(types.NotificationObject, 0)
}

// AllocCNode creates a capability table with 2^slotBits slots.
func (a *Allocator) AllocCNode(slotBits uint) (Object, error) {
	return a.AllocObject(types.CapTableObject, slotBits)
}
