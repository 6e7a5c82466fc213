package arm64

import "fmt"

// SVE encoders. Predicate registers carry their own merge/zero
// governing mode (PReg.Mod()); this file never infers the element size
// from a predicate, it always takes both explicitly (SPEC_FULL.md, §3
// data model supplement from original_source/).

func sveSizeBits(s SubRegSize) uint32 {
	switch s {
	case Size8B:
		return 0b00
	case Size16B:
		return 0b01
	case Size32B:
		return 0b10
	case Size64B:
		return 0b11
	default:
		panic(fmt.Sprintf("arm64: invalid SVE element size %v", s))
	}
}

// PredicatePattern selects how many elements of a predicate-generating
// instruction (PTRUE, WHILELT, ...) are active; every pattern value
// must round-trip through the disassembler.
type PredicatePattern uint32

const (
	PatPow2   PredicatePattern = 0
	PatVL1    PredicatePattern = 1
	PatVL2    PredicatePattern = 2
	PatVL4    PredicatePattern = 3
	PatVL8    PredicatePattern = 4
	PatVL16   PredicatePattern = 5
	PatVL32   PredicatePattern = 6
	PatVL64   PredicatePattern = 7
	PatVL128  PredicatePattern = 8
	PatVL256  PredicatePattern = 9
	PatMul4   PredicatePattern = 29
	PatMul3   PredicatePattern = 30
	PatAll    PredicatePattern = 31
)

// PTRUE Pd.T, pattern — predicate-create.
func (b *Buffer) PTRUE(size SubRegSize, pd PReg, pattern PredicatePattern) {
	word := 0x2518E000 | (sveSizeBits(size) << 22) | (uint32(pattern) << 5) | pd.Idx()
	b.EmitU32(word)
}

// predModeBit returns a governing predicate's merge/zero mode as one
// bit (1 for zeroing, 0 for merging); each encoder shifts it into its
// own M/Z field position (bit 14 for CPYScalar).
func predModeBit(p PReg) uint32 {
	if p.Mod() == PredZero {
		return 1
	}
	return 0
}

// ADD Zd.T, Pg/M, Zd.T, Zn.T — predicated integer add, destructive
// (Zd is both a source and the destination, matching the SVE
// predicated-ALU instruction shape).
func (b *Buffer) SVEAdd(size SubRegSize, zd ZReg, pg PReg, zn ZReg) {
	word := 0x04000000 | (sveSizeBits(size) << 22) | (pg.Idx() << 10) | (zn.Idx() << 5) | zd.Idx()
	b.EmitU32(word)
}

// SUB Zd.T, Pg/M, Zd.T, Zn.T.
func (b *Buffer) SVESub(size SubRegSize, zd ZReg, pg PReg, zn ZReg) {
	word := 0x04010000 | (sveSizeBits(size) << 22) | (pg.Idx() << 10) | (zn.Idx() << 5) | zd.Idx()
	b.EmitU32(word)
}

// SVE unpredicated ADD Zd.T, Zn.T, Zm.T.
func (b *Buffer) SVEAddUnpred(size SubRegSize, zd, zn, zm ZReg) {
	word := 0x04200000 | (sveSizeBits(size) << 22) | (zm.Idx() << 16) | (zn.Idx() << 5) | zd.Idx()
	b.EmitU32(word)
}

// LD1W/ST1W {Zt.S}, Pg/Z, [Xn, Xm, LSL #2] — SVE contiguous
// scalar+scalar gather-style load/store; this is the scalar+scalar
// addressing-mode constructor, one of several per instruction.
func (b *Buffer) SVELD1W(zt ZReg, pg PReg, rn, rm Register) {
	word := 0x85200000 | (rm.Idx() << 16) | (pg.Idx() << 10) | (rn.Idx() << 5) | zt.Idx()
	b.EmitU32(word)
}

func (b *Buffer) SVEST1W(zt ZReg, pg PReg, rn, rm Register) {
	word := 0xE5204000 | (rm.Idx() << 16) | (pg.Idx() << 10) | (rn.Idx() << 5) | zt.Idx()
	b.EmitU32(word)
}

// LD1W {Zt.S}, Pg/Z, [Xn, #imm, MUL VL] — scalar+imm addressing mode.
func (b *Buffer) SVELD1WImm(zt ZReg, pg PReg, rn Register, imm int32) {
	if imm < -32 || imm > 31 {
		panic("arm64: SVE scalar+imm offset out of range")
	}
	word := 0x85A04000 | ((uint32(imm) & 0x3F) << 16) | (pg.Idx() << 10) | (rn.Idx() << 5) | zt.Idx()
	b.EmitU32(word)
}

// WHILELT Pd.T, Xn, Xm — predicate-create from a scalar compare,
// commonly used to build a loop's governing predicate.
func (b *Buffer) WHILELT(size SubRegSize, pd PReg, rn, rm Register) {
	word := 0x25201400 | (sveSizeBits(size) << 22) | (rm.Idx() << 16) | (rn.Idx() << 5) | pd.Idx()
	b.EmitU32(word)
}

// CPY Zd.T, Pg/M, Rn — copy a scalar GPR into every active lane,
// honoring the predicate's merge/zero mode via predModeBit.
func (b *Buffer) CPYScalar(size SubRegSize, zd ZReg, pg PReg, rn Register) {
	word := 0x05208000 | (sveSizeBits(size) << 22) | (predModeBit(pg) << 14) | (pg.Idx() << 10) | (rn.Idx() << 5) | zd.Idx()
	b.EmitU32(word)
}
