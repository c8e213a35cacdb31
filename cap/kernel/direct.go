package kernel

import (
	"unsafe"

	"github.com/joshuapare/capkit/pkg/types"
)

// Direct is the Memory implementation for code running inside the vspace it
// allocates into: the virtual address is simply dereferenced.
type Direct struct{}

// PutWord stores value at vaddr as a native machine word.
func (Direct) PutWord(vaddr types.Word, value types.Word) error {
	*(*uintptr)(unsafe.Pointer(uintptr(vaddr))) = uintptr(value)
	return nil
}
