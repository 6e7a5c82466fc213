package arm64

// Size selects the 32- vs 64-bit form of a size-polymorphic ALU
// operation, encoded directly into the instruction's `sf` bit. The
// size is taken as a runtime argument rather than chosen per static
// call site, so a CSEL can pick the size-appropriate form without a
// branch.
type Size uint8

const (
	Size32 Size = 0
	Size64 Size = 1
)

func (s Size) sf() uint32 { return uint32(s) }

// ShiftType is the shift applied to the second ALU operand.
type ShiftType uint32

const (
	ShiftLSL ShiftType = 0
	ShiftLSR ShiftType = 1
	ShiftASR ShiftType = 2
	ShiftROR ShiftType = 3
)

// ExtendedType is the extend mode used by ADD/SUB (extended register form).
type ExtendedType uint32

const (
	ExtUXTB ExtendedType = 0
	ExtUXTH ExtendedType = 1
	ExtUXTW ExtendedType = 2
	ExtUXTX ExtendedType = 3
	ExtSXTB ExtendedType = 4
	ExtSXTH ExtendedType = 5
	ExtSXTW ExtendedType = 6
	ExtSXTX ExtendedType = 7
)

// Condition is an AArch64 condition code, used by B.cond, CSEL, CSET.
type Condition uint32

const (
	CondEQ Condition = 0x0
	CondNE Condition = 0x1
	CondCS Condition = 0x2
	CondCC Condition = 0x3
	CondMI Condition = 0x4
	CondPL Condition = 0x5
	CondVS Condition = 0x6
	CondVC Condition = 0x7
	CondHI Condition = 0x8
	CondLS Condition = 0x9
	CondGE Condition = 0xA
	CondLT Condition = 0xB
	CondGT Condition = 0xC
	CondLE Condition = 0xD
	CondAL Condition = 0xE
	CondNV Condition = 0xF
)

func checkShiftAmount(sz Size, amount uint32) {
	max := uint32(31)
	if sz == Size64 {
		max = 63
	}
	if amount > max {
		panic("arm64: shift amount out of range for register size")
	}
}

// ADD Rd, Rn, Rm (shifted register form, shift amount 0 when unused).
func (b *Buffer) ADD(sz Size, rd, rn, rm Register) {
	word := (sz.sf() << 31) | 0x0B000000 | (rm.Idx() << 16) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// ADDExtended Rd, Rn, Rm, <extend> #amount — extended-register form,
// used when lowering an x86 address computation that widens a 32-bit
// index; every ExtendedType must be representable here.
func (b *Buffer) ADDExtended(sz Size, rd, rn, rm Register, ext ExtendedType, amount uint32) {
	if amount > 4 {
		panic("arm64: ADD extended-register shift amount out of range")
	}
	word := (sz.sf() << 31) | 0x0B200000 | (rm.Idx() << 16) | (uint32(ext) << 13) | (amount << 10) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// SUBExtended Rd, Rn, Rm, <extend> #amount.
func (b *Buffer) SUBExtended(sz Size, rd, rn, rm Register, ext ExtendedType, amount uint32) {
	if amount > 4 {
		panic("arm64: SUB extended-register shift amount out of range")
	}
	word := (sz.sf() << 31) | 0x4B200000 | (rm.Idx() << 16) | (uint32(ext) << 13) | (amount << 10) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// ADDShifted Rd, Rn, Rm, <shift> #amount.
func (b *Buffer) ADDShifted(sz Size, rd, rn, rm Register, shift ShiftType, amount uint32) {
	checkShiftAmount(sz, amount)
	word := (sz.sf() << 31) | 0x0B000000 | (uint32(shift) << 22) | (rm.Idx() << 16) | (amount << 10) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// SUB Rd, Rn, Rm.
func (b *Buffer) SUB(sz Size, rd, rn, rm Register) {
	word := (sz.sf() << 31) | 0x4B000000 | (rm.Idx() << 16) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// SUBS Rd, Rn, Rm (flag-setting subtract, used for CMP Rn, Rm when Rd = ZR).
func (b *Buffer) SUBS(sz Size, rd, rn, rm Register) {
	word := (sz.sf() << 31) | 0x6B000000 | (rm.Idx() << 16) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// CMP Rn, Rm is SUBS XZR, Rn, Rm.
func (b *Buffer) CMP(sz Size, rn, rm Register) {
	b.SUBS(sz, ZR.R(), rn, rm)
}

// ADDImm Rd, Rn, #imm12 (optionally LSL #12 when shift12 is true).
func (b *Buffer) ADDImm(sz Size, rd, rn Register, imm12 uint32, shift12 bool) {
	if imm12 > 0xFFF {
		panic("arm64: ADD immediate exceeds 12 bits")
	}
	sh := uint32(0)
	if shift12 {
		sh = 1
	}
	word := (sz.sf() << 31) | 0x11000000 | (sh << 22) | ((imm12 & 0xFFF) << 10) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// SUBImm Rd, Rn, #imm12 (optionally LSL #12 when shift12 is true).
func (b *Buffer) SUBImm(sz Size, rd, rn Register, imm12 uint32, shift12 bool) {
	if imm12 > 0xFFF {
		panic("arm64: SUB immediate exceeds 12 bits")
	}
	sh := uint32(0)
	if shift12 {
		sh = 1
	}
	word := (sz.sf() << 31) | 0x51000000 | (sh << 22) | ((imm12 & 0xFFF) << 10) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// MOVZ Rd, #imm16, LSL #shift (shift in {0,16,32,48}, 48 only for X-form).
func (b *Buffer) MOVZ(sz Size, rd Register, imm16 uint16, shift uint32) {
	hw := shift / 16
	word := (sz.sf() << 31) | 0x52800000 | (hw << 21) | (uint32(imm16) << 5) | rd.Idx()
	b.EmitU32(word)
}

// MOVK Rd, #imm16, LSL #shift — keeps other halfwords, inserts this one.
func (b *Buffer) MOVK(sz Size, rd Register, imm16 uint16, shift uint32) {
	hw := shift / 16
	word := (sz.sf() << 31) | 0x72800000 | (hw << 21) | (uint32(imm16) << 5) | rd.Idx()
	b.EmitU32(word)
}

// MOVN Rd, #imm16, LSL #shift — move wide with NOT, for constants that
// are mostly ones.
func (b *Buffer) MOVN(sz Size, rd Register, imm16 uint16, shift uint32) {
	hw := shift / 16
	word := (sz.sf() << 31) | 0x12800000 | (hw << 21) | (uint32(imm16) << 5) | rd.Idx()
	b.EmitU32(word)
}

// LoadImm64 materializes a 64-bit constant in exactly 4 instructions
// (MOVZ + 3×MOVK), always the same length so the sequence is patchable
// in place (grounded on tinyrange-rtg aarch64.go emitLoadImm64).
func (b *Buffer) LoadImm64(rd Register, val uint64) {
	b.MOVZ(Size64, rd, uint16(val), 0)
	b.MOVK(Size64, rd, uint16(val>>16), 16)
	b.MOVK(Size64, rd, uint16(val>>32), 32)
	b.MOVK(Size64, rd, uint16(val>>48), 48)
}

// LoadImm64Compact materializes a 64-bit constant with a single MOVN when
// the inverted value fits in the low halfword, otherwise with a MOVZ
// followed by one MOVK per further non-zero halfword. Shifted MOVN forms
// are not tried, so this is not always the shortest sequence. Variable
// length: never use on a site that must remain patchable.
func (b *Buffer) LoadImm64Compact(rd Register, val uint64) {
	if val == 0 {
		b.MOVZ(Size64, rd, 0, 0)
		return
	}
	inv := ^val
	if inv&0xFFFF == inv {
		b.MOVN(Size64, rd, uint16(inv), 0)
		return
	}
	first := true
	for shift := uint32(0); shift < 64; shift += 16 {
		chunk := uint16(val >> shift)
		if chunk != 0 || shift == 0 {
			if first {
				b.MOVZ(Size64, rd, chunk, shift)
				first = false
			} else {
				b.MOVK(Size64, rd, chunk, shift)
			}
		}
	}
}

// AND/ORR/EOR (shifted register). base selects the opcode bits.
func (b *Buffer) logical(sz Size, base uint32, rd, rn, rm Register) {
	word := (sz.sf() << 31) | base | (rm.Idx() << 16) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

func (b *Buffer) AND(sz Size, rd, rn, rm Register) { b.logical(sz, 0x0A000000, rd, rn, rm) }
func (b *Buffer) ORR(sz Size, rd, rn, rm Register) { b.logical(sz, 0x2A000000, rd, rn, rm) }
func (b *Buffer) EOR(sz Size, rd, rn, rm Register) { b.logical(sz, 0x4A000000, rd, rn, rm) }
func (b *Buffer) ANDS(sz Size, rd, rn, rm Register) { b.logical(sz, 0x6A000000, rd, rn, rm) }

// MOV Rd, Rn (ORR Rd, ZR, Rn alias).
func (b *Buffer) MOV(sz Size, rd, rn Register) {
	b.ORR(sz, rd, ZR.R(), rn)
}

// MUL Rd, Rn, Rm (MADD Rd, Rn, Rm, ZR alias).
func (b *Buffer) MUL(sz Size, rd, rn, rm Register) {
	word := (sz.sf() << 31) | 0x1B000000 | (rm.Idx() << 16) | (ZR.Idx() << 10) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// SDIV / UDIV Rd, Rn, Rm.
func (b *Buffer) SDIV(sz Size, rd, rn, rm Register) {
	word := (sz.sf() << 31) | 0x1AC00C00 | (rm.Idx() << 16) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

func (b *Buffer) UDIV(sz Size, rd, rn, rm Register) {
	word := (sz.sf() << 31) | 0x1AC00800 | (rm.Idx() << 16) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// LSLV / LSRV / ASRV / RORV Rd, Rn, Rm (variable shift).
func (b *Buffer) LSLV(sz Size, rd, rn, rm Register) { b.variableShift(sz, 0x1AC02000, rd, rn, rm) }
func (b *Buffer) LSRV(sz Size, rd, rn, rm Register) { b.variableShift(sz, 0x1AC02400, rd, rn, rm) }
func (b *Buffer) ASRV(sz Size, rd, rn, rm Register) { b.variableShift(sz, 0x1AC02800, rd, rn, rm) }
func (b *Buffer) RORV(sz Size, rd, rn, rm Register) { b.variableShift(sz, 0x1AC02C00, rd, rn, rm) }

func (b *Buffer) variableShift(sz Size, base uint32, rd, rn, rm Register) {
	word := (sz.sf() << 31) | base | (rm.Idx() << 16) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// CSEL Rd, Rn, Rm, cond — the branch-free select used
// as the payoff of size-polymorphic encoding (no branch at the use
// site for an x86 cmov-style lowering).
func (b *Buffer) CSEL(sz Size, rd, rn, rm Register, cond Condition) {
	word := (sz.sf() << 31) | 0x1A800000 | (rm.Idx() << 16) | (uint32(cond) << 12) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// CSET Rd, cond (CSINC Rd, ZR, ZR, invert(cond) alias).
func (b *Buffer) CSET(sz Size, rd Register, cond Condition) {
	word := (sz.sf() << 31) | 0x1A9F07E0 | (uint32(cond^1) << 12) | rd.Idx()
	b.EmitU32(word)
}

// NOP.
func (b *Buffer) NOP() { b.EmitU32(0xD503201F) }

// RET Rn (default LR).
func (b *Buffer) RET(rn Register) {
	b.EmitU32(0xD65F0000 | (rn.Idx() << 5))
}

// BRK #imm16 — debug trap, used for "unreachable" fallback paths.
func (b *Buffer) BRK(imm16 uint16) {
	b.EmitU32(0xD4200000 | (uint32(imm16) << 5))
}
