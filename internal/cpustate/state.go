// Package cpustate declares the thread-state ("CPU state frame") layout
// shared by the JIT driver and the generated code, per spec.md §6.2.
// Field order is fixed and must not be reordered: generated code
// indexes into this struct by byte offset, computed once at module
// init via unsafe.Offsetof, exactly as the original C-ABI struct is
// indexed from emitted AArch64 loads/stores.
package cpustate

import "unsafe"

// NumEFlagBits is the number of individually-addressable x86 flag
// bits the frame carries one byte each for (spec.md §6.2 flags field).
const NumEFlagBits = 32

// FunctionTable is the function-pointer table every generated block
// reaches through `pointers.common.*` (spec.md §6.2): the dispatcher
// loop top, the exit-function linker, and per-op fallback handlers.
// Concrete function identity belongs to the embedding runtime; this
// package only fixes the slot layout generated code depends on.
type FunctionTable struct {
	DispatcherLoopTop   uintptr
	ExitFunctionLinker  uintptr
	SyscallHandler      uintptr
	CPUIDHandler        uintptr
	FallbackHandlers    uintptr // base of a HandlerID-indexed array
	NamedVectorConstants uintptr
}

// Frame is the C-ABI thread-state struct (spec.md §6.2 table). Mandatory
// fields only; the embedding runtime may grow it with trailing fields
// the JIT never touches, but must never reorder what's here.
type Frame struct {
	RIP uint64

	// Gregs holds the 16 64-bit (or 8 32-bit, selected by the
	// embedding runtime's mode) general-purpose guest registers.
	Gregs [16]uint64

	// XMM holds the 16 vector guest registers, 2x64-bit lanes each
	// (AVX mode widens this to 4 lanes; the embedding runtime selects
	// the layout and this field is sized for the common SSE/AVX-128
	// case).
	XMM [16][2]uint64

	Flags [NumEFlagBits]uint8

	FCW uint16
	FTW uint16

	Pointers FunctionTable

	// InterruptFaultPage is the page a pending-interrupt probe writes to;
	// zero-sized/unused when the host doesn't need the probe. The
	// prologue emitted by internal/jit does not write to it.
	InterruptFaultPage uintptr

	// InlineJITBlockHeader is the slot the prologue updates with the
	// current block's JITCodeHeader address (spec.md §6.2, §4.5 step
	// 3), needed for in-flight signal-handler RIP reconstruction.
	InlineJITBlockHeader uintptr
}

// Offsets of every mandatory field, computed once, for the JIT driver
// to emit loads/stores against without repeating unsafe.Offsetof calls
// at every call site.
var (
	OffsetRIP                  = unsafe.Offsetof(Frame{}.RIP)
	OffsetGregs                = unsafe.Offsetof(Frame{}.Gregs)
	OffsetXMM                  = unsafe.Offsetof(Frame{}.XMM)
	OffsetFlags                = unsafe.Offsetof(Frame{}.Flags)
	OffsetFCW                  = unsafe.Offsetof(Frame{}.FCW)
	OffsetFTW                  = unsafe.Offsetof(Frame{}.FTW)
	OffsetPointers             = unsafe.Offsetof(Frame{}.Pointers)
	OffsetInterruptFaultPage   = unsafe.Offsetof(Frame{}.InterruptFaultPage)
	OffsetInlineJITBlockHeader = unsafe.Offsetof(Frame{}.InlineJITBlockHeader)
)

// GregOffset returns the byte offset of guest GPR index i within Frame.
func GregOffset(i int) uintptr {
	return OffsetGregs + uintptr(i)*8
}

// XMMOffset returns the byte offset of guest vector register index i.
func XMMOffset(i int) uintptr {
	return OffsetXMM + uintptr(i)*16
}
