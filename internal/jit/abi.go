package jit

import (
	"unsafe"

	"github.com/FEX-Emu/FEX-sub016/internal/arm64"
	"github.com/FEX-Emu/FEX-sub016/internal/cpustate"
	"github.com/FEX-Emu/FEX-sub016/internal/ir"
)

// fallbackHandlersFieldOffset is FunctionTable.FallbackHandlers' byte
// offset within cpustate.FunctionTable, computed once so EmitCall can
// reach the handler table base through cpustate.OffsetPointers without
// a second hand-maintained constant.
var fallbackHandlersFieldOffset = unsafe.Offsetof(cpustate.FunctionTable{}.FallbackHandlers)

// ABI implements the fallback path (spec.md §4.4, §6.5 "FABI_* table"):
// an IR op with no native AArch64 lowering instead spills every
// statically-allocated (SRA) guest register to the thread-state frame,
// branches-with-link to a host handler selected by Op.FallbackHandlerID
// — an opaque index into FunctionTable.FallbackHandlers (DESIGN.md Open
// Question decision: the handler identity and calling convention are
// owned by the embedding runtime, not this package) — then fills the
// SRA registers back from the frame and moves a GPR result out of X0.
type ABI struct {
	fns cpustate.FunctionTable
}

// NewABI binds an ABI to a thread's function table.
func NewABI(fns cpustate.FunctionTable) *ABI {
	return &ABI{fns: fns}
}

// EmitCall lowers one fallback op: spill, call, fill.
func (a *ABI) EmitCall(asm *arm64.Buffer, stateReg arm64.Register, op ir.Op, ra *ir.RegisterAllocationData) {
	a.spillSRA(asm, stateReg, ra)

	handlerTableOffset := uint32(cpustate.OffsetPointers) + uint32(fallbackHandlersFieldOffset)
	asm.LDR(arm64.Size64, scratch1.R(), stateReg, handlerTableOffset)
	asm.LDR(arm64.Size64, scratch2.R(), scratch1.R(), uint32(op.FallbackHandlerID)*8)
	asm.BLR(scratch2.R())

	a.fillAfterCall(asm, stateReg, op, ra)
}

// spillSRA stores every SRA-pinned guest register to its Gregs slot
// before the call, since the host handler may read the frame directly
// rather than receiving operands in registers (spec.md §4.4 "spill").
func (a *ABI) spillSRA(asm *arm64.Buffer, stateReg arm64.Register, ra *ir.RegisterAllocationData) {
	for ssa, fixed := range ra.Fixed {
		if !fixed {
			continue
		}
		phys := ra.PhysicalRegisterOf(ssa)
		asm.STR(arm64.Size64, arm64.X(phys).R(), stateReg, uint32(cpustate.GregOffset(int(phys))))
	}
}

// fillAfterCall restores every SRA register from the frame (the
// handler may have updated it) and, if this op produces a GPR result,
// moves it out of the AAPCS64 return register (spec.md §4.4 "fill").
func (a *ABI) fillAfterCall(asm *arm64.Buffer, stateReg arm64.Register, op ir.Op, ra *ir.RegisterAllocationData) {
	for ssa, fixed := range ra.Fixed {
		if !fixed || ssa == op.ResultSSA {
			continue
		}
		phys := ra.PhysicalRegisterOf(ssa)
		asm.LDR(arm64.Size64, arm64.X(phys).R(), stateReg, uint32(cpustate.GregOffset(int(phys))))
	}

	switch op.ResultCls {
	case ir.RegClassGPR, ir.RegClassGPRFixed:
		dst := arm64.X(ra.PhysicalRegisterOf(op.ResultSSA))
		asm.MOV(sizeFor(op.SizeBits), dst.R(), arm64.X(0).R())
	}
}
