// Package format holds the low-level arithmetic and ABI layout constants the
// allocators share: power-of-two alignment helpers and the fixed offsets the
// kernel expects inside structures such as the IPC buffer.
package format

const (
	// MsgMaxLength is the number of message registers in an IPC buffer.
	MsgMaxLength = 120

	// ipcBufferUserDataWord is the word index of the userData field:
	// one tag word followed by MsgMaxLength message words.
	ipcBufferUserDataWord = 1 + MsgMaxLength

	// MinStackSize is the smallest stack, in bytes, a thread may be given.
	MinStackSize = 512

	// PageBits4K is the size exponent of the smallest page on every
	// supported architecture.
	PageBits4K = 12

	// PageSize4K is the size of the smallest page in bytes.
	PageSize4K = 1 << PageBits4K
)

// IPCBufferUserDataOffset returns the byte offset of the IPC buffer's userData
// field for a target with the given word size in bytes. The kernel's IPC
// buffer discovery protocol expects the buffer's own virtual address there.
func IPCBufferUserDataOffset(wordBytes uint64) uint64 {
	return ipcBufferUserDataWord * wordBytes
}

// StackAlignment returns the required stack-pointer alignment in bytes for a
// target with the given word size in bits: two machine words.
//
// Example:
//
//	StackAlignment(32) = 8
//	StackAlignment(64) = 16
func StackAlignment(wordBits uint) uint64 {
	return uint64(wordBits/8) * 2
}
