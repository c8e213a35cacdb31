package types

import "fmt"

// InitCap names the well-known capability slots the kernel populates in the
// initial thread's capability table before it starts running.
type InitCap CPtr

const (
	InitNull InitCap = iota
	InitThreadTCB
	InitThreadCNode
	InitThreadVSpace
	InitIRQControl
	InitASIDControl
	InitThreadASIDPool
	InitIOPortControl
	InitIOSpace
	InitBootInfoFrame
	InitThreadIPCBuffer
	InitDomain

	// NumInitialCaps is the number of slots reserved for initial capabilities.
	// The first free slot of a fresh capability table is never below it.
	NumInitialCaps = int(InitDomain) + 1
)

var initCapNames = [...]string{
	InitNull:            "Null",
	InitThreadTCB:       "InitThreadTCB",
	InitThreadCNode:     "InitThreadCNode",
	InitThreadVSpace:    "InitThreadVSpace",
	InitIRQControl:      "IRQControl",
	InitASIDControl:     "ASIDControl",
	InitThreadASIDPool:  "InitThreadASIDPool",
	InitIOPortControl:   "IOPortControl",
	InitIOSpace:         "IOSpace",
	InitBootInfoFrame:   "BootInfoFrame",
	InitThreadIPCBuffer: "InitThreadIPCBuffer",
	InitDomain:          "Domain",
}

// CPtr returns the slot index of the initial capability.
func (c InitCap) CPtr() CPtr { return CPtr(c) }

// String implements the Stringer interface for InitCap.
func (c InitCap) String() string {
	if int(c) < len(initCapNames) {
		return initCapNames[c]
	}
	return fmt.Sprintf("InitCap(%d)", uint64(c))
}
