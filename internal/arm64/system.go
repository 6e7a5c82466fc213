package arm64

// System-register and cache-maintenance encoders. The JIT driver
// doesn't typically need to self-emit ICache maintenance (the host
// provides a syscall/libc primitive, see internal/codebuffer), but a
// few system instructions are needed directly by the prologue/epilogue
// (interrupt fault probe, barriers) and by fallback ABI trampolines.

// SVC #imm16 — supervisor call, used by the syscall-dispatch
// collaborator (out of scope here; emitted on its behalf when IR
// lowering requests a raw syscall trampoline).
func (b *Buffer) SVC(imm16 uint16) {
	b.EmitU32(0xD4000001 | (uint32(imm16) << 5))
}

// ISB — instruction synchronization barrier.
func (b *Buffer) ISB() { b.EmitU32(0xD5033FDF) }

// DSB ISH — full inner-shareable data synchronization barrier.
func (b *Buffer) DSBISH() { b.EmitU32(0xD5033B9F) }

// MRS Xt, <system-reg> — read a system register, encoded by its raw
// op0:op1:CRn:CRm:op2 field (the tables of legal system registers live
// with the CPU-state/fault-probe collaborator, out of scope here).
func (b *Buffer) MRS(rt Register, sysreg uint32) {
	b.EmitU32(0xD5300000 | ((sysreg & 0x7FFF) << 5) | rt.Idx())
}

// MSR <system-reg>, Xt.
func (b *Buffer) MSR(sysreg uint32, rt Register) {
	b.EmitU32(0xD5100000 | ((sysreg & 0x7FFF) << 5) | rt.Idx())
}

// HINT #imm — generic hint encoding; NOP (imm=0) is exposed separately
// in alu.go.
func (b *Buffer) HINT(imm uint32) {
	b.EmitU32(0xD503201F | ((imm & 0x7F) << 5))
}

// DC CVAU, Xt / IC IVAU, Xt — cache maintenance by
// virtual address, used when the host's instruction-cache invalidation
// primitive is itself emitted inline rather than called as a libc
// function.
func (b *Buffer) DCCVAU(rt Register) { b.EmitU32(0xD50B7B20 | rt.Idx()) }
func (b *Buffer) ICIVAU(rt Register) { b.EmitU32(0xD50B7520 | rt.Idx()) }
