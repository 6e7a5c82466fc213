package arm64

import "fmt"

// AddrMode selects the addressing mode for LDR/STR immediate-offset
// forms.
type AddrMode uint8

const (
	AddrOffset  AddrMode = iota // [Xn, #imm] — no writeback
	AddrPreIdx                  // [Xn, #imm]! — writeback before access
	AddrPostIdx                 // [Xn], #imm — writeback after access
)

func checkScaledImm9(imm int32) {
	if imm < -256 || imm > 255 {
		panic(fmt.Sprintf("arm64: unscaled 9-bit immediate %d out of range", imm))
	}
}

// LDR/STR Rt, [Rn, #imm] (unsigned scaled 12-bit immediate, AddrOffset
// only; pre/post-index forms use the 9-bit unscaled encoding below).
func (b *Buffer) ldstUImm(sz Size, opc uint32, rt, rn Register, imm12 uint32) {
	scale := uint32(2)
	if sz == Size64 {
		scale = 3
	}
	if imm12&((1<<scale)-1) != 0 {
		panic("arm64: LDR/STR immediate not naturally aligned")
	}
	scaled := imm12 >> scale
	if scaled > 0xFFF {
		panic("arm64: LDR/STR immediate exceeds 12-bit scaled range")
	}
	size := uint32(0b10)
	if sz == Size64 {
		size = 0b11
	}
	word := (size << 30) | 0x39000000 | (opc << 22) | (scaled << 10) | (rn.Idx() << 5) | rt.Idx()
	b.EmitU32(word)
}

func (b *Buffer) LDR(sz Size, rt, rn Register, imm uint32) { b.ldstUImm(sz, 0b01, rt, rn, imm) }
func (b *Buffer) STR(sz Size, rt, rn Register, imm uint32) { b.ldstUImm(sz, 0b00, rt, rn, imm) }

// ldstUnscaled emits the 9-bit-signed-immediate pre/post-index forms.
func (b *Buffer) ldstUnscaled(sz Size, opc uint32, rt, rn Register, imm int32, mode AddrMode) {
	checkScaledImm9(imm)
	size := uint32(0b10)
	if sz == Size64 {
		size = 0b11
	}
	idx := uint32(0b01) // post-index
	if mode == AddrPreIdx {
		idx = 0b11
	}
	word := (size << 30) | 0x38000400 | (opc << 22) | ((uint32(imm) & 0x1FF) << 12) | (idx << 10) | (rn.Idx() << 5) | rt.Idx()
	b.EmitU32(word)
}

func (b *Buffer) LDRIdx(sz Size, rt, rn Register, imm int32, mode AddrMode) {
	b.ldstUnscaled(sz, 0b01, rt, rn, imm, mode)
}
func (b *Buffer) STRIdx(sz Size, rt, rn Register, imm int32, mode AddrMode) {
	b.ldstUnscaled(sz, 0b00, rt, rn, imm, mode)
}

// LDP/STP Rt1, Rt2, [Rn, #imm]! / [Rn], #imm / [Rn, #imm] — signed
// imm7 scaled by access size. Used for the JIT prologue's frame-pointer
// pair push (grounded on tinyrange-rtg aarch64.go emitStp).
func (b *Buffer) ldstp(sz Size, opc uint32, rt1, rt2, rn Register, imm7 int32, mode AddrMode) {
	scale := uint32(2)
	if sz == Size64 {
		scale = 3
	}
	if imm7&((1<<scale)-1) != 0 {
		panic("arm64: LDP/STP immediate not naturally aligned")
	}
	scaled := imm7 >> scale
	if scaled < -64 || scaled > 63 {
		panic("arm64: LDP/STP immediate out of range")
	}
	size := uint32(0b00)
	if sz == Size64 {
		size = 0b10
	}
	idxBits := uint32(0b010) // offset, no writeback
	switch mode {
	case AddrPreIdx:
		idxBits = 0b011
	case AddrPostIdx:
		idxBits = 0b001
	}
	word := (size << 30) | 0x28000000 | (idxBits << 23) | (opc << 22) | ((uint32(scaled) & 0x7F) << 15) | (rt2.Idx() << 10) | (rn.Idx() << 5) | rt1.Idx()
	b.EmitU32(word)
}

func (b *Buffer) STP(sz Size, rt1, rt2, rn Register, imm7 int32, mode AddrMode) {
	b.ldstp(sz, 0b00, rt1, rt2, rn, imm7, mode)
}
func (b *Buffer) LDP(sz Size, rt1, rt2, rn Register, imm7 int32, mode AddrMode) {
	b.ldstp(sz, 0b01, rt1, rt2, rn, imm7, mode)
}

// --- TSO-sensitive ordered variants ---
//
// The paranoid-vs-relaxed x86 TSO lowering choice is left to an external
// subsystem; this package exposes both a plain and an acquire/release
// pair so that subsystem can choose per memory op rather than this
// package imposing a default.

// LDAR Rt, [Rn] — load-acquire, for paranoid TSO lowering of a guest
// load that must not be reordered with later memory ops.
func (b *Buffer) LDAR(sz Size, rt, rn Register) {
	size := uint32(0b10)
	if sz == Size64 {
		size = 0b11
	}
	b.EmitU32((size << 30) | 0x08DFFC00 | (rn.Idx() << 5) | rt.Idx())
}

// STLR Rt, [Rn] — store-release.
func (b *Buffer) STLR(sz Size, rt, rn Register) {
	size := uint32(0b10)
	if sz == Size64 {
		size = 0b11
	}
	b.EmitU32((size << 30) | 0x089FFC00 | (rn.Idx() << 5) | rt.Idx())
}

// DMB ISH — full inner-shareable data memory barrier, for relaxed-TSO
// lowerings that batch ordering at block boundaries instead of per-op.
func (b *Buffer) DMBISH() { b.EmitU32(0xD5033BBF) }
