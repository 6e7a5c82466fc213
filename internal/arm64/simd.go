package arm64

import "fmt"

// ASIMD (NEON) encoders. Element size is carried as a SubRegSize value
// rather than as distinct Go register types (encoders
// choose behavior by the operation, not by the argument type").

func subRegSizeBits(s SubRegSize) uint32 {
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
		panic(fmt.Sprintf("arm64: invalid SubRegSize %v", s))
	}
}

// vecALU3 emits a three-register ASIMD op of the form
// 0|Q|U|01110|size|1|Rm|opcode|1|Rn|Rd, full 128-bit (Q=1) vectors.
func (b *Buffer) vecALU3(u uint32, size SubRegSize, opcode uint32, rd, rn, rm FPR) {
	word := 0x4E200400 | (u << 29) | (subRegSizeBits(size) << 22) | (rm.Idx() << 16) | (opcode << 11) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

// ADD Vd.T, Vn.T, Vm.T (integer, full 128-bit vector).
func (b *Buffer) VADD(size SubRegSize, rd, rn, rm FPR) { b.vecALU3(0, size, 0b10000, rd, rn, rm) }

// SUB Vd.T, Vn.T, Vm.T.
func (b *Buffer) VSUB(size SubRegSize, rd, rn, rm FPR) { b.vecALU3(1, size, 0b10000, rd, rn, rm) }

// MUL Vd.T, Vn.T, Vm.T — integer multiply, not valid for Size64B.
func (b *Buffer) VMUL(size SubRegSize, rd, rn, rm FPR) {
	if size == Size64B {
		panic("arm64: VMUL has no 64-bit-element form")
	}
	b.vecALU3(0, size, 0b10011, rd, rn, rm)
}

// AND/ORR/EOR Vd.16B, Vn.16B, Vm.16B — bitwise, size-independent.
func (b *Buffer) VAND(rd, rn, rm FPR) { b.vecALU3(0, Size8B, 0b00011, rd, rn, rm) }
func (b *Buffer) VORR(rd, rn, rm FPR) { b.vecALU3(0, Size32B, 0b00011, rd, rn, rm) }
func (b *Buffer) VEOR(rd, rn, rm FPR) { b.vecALU3(1, Size8B, 0b00011, rd, rn, rm) }

// scalar FP three-register ops: FADD/FSUB/FMUL/FDIV Sd/Dd, Sn/Dn, Sm/Dm.
func scalarFPTypeBits(sz ScalarSize) uint32 {
	switch sz {
	case FPHalf:
		return 0b11
	case FPSingle:
		return 0b00
	case FPDouble:
		return 0b01
	default:
		panic(fmt.Sprintf("arm64: invalid scalar FP size %v", sz))
	}
}

func (b *Buffer) scalarFP3(sz ScalarSize, opcode uint32, rd, rn, rm FPR) {
	word := 0x1E200800 | (scalarFPTypeBits(sz) << 22) | (rm.Idx() << 16) | (opcode << 12) | (rn.Idx() << 5) | rd.Idx()
	b.EmitU32(word)
}

func (b *Buffer) FADD(sz ScalarSize, rd, rn, rm FPR) { b.scalarFP3(sz, 0b0010, rd, rn, rm) }
func (b *Buffer) FSUB(sz ScalarSize, rd, rn, rm FPR) { b.scalarFP3(sz, 0b0011, rd, rn, rm) }
func (b *Buffer) FMUL(sz ScalarSize, rd, rn, rm FPR) { b.scalarFP3(sz, 0b0000, rd, rn, rm) }
func (b *Buffer) FDIV(sz ScalarSize, rd, rn, rm FPR) { b.scalarFP3(sz, 0b0001, rd, rn, rm) }

// LDR/STR (SIMD&FP), unsigned scaled 12-bit immediate. bits selects
// register width: 32 for S, 64 for D, 128 for Q (via opc high bit).
func (b *Buffer) vecLdSt(bits int, opc uint32, rt FPR, rn Register, imm12 uint32) {
	var size, scale uint32
	switch bits {
	case 32:
		size, scale = 0b10, 2
	case 64:
		size, scale = 0b11, 3
	case 128:
		size, scale = 0b00, 4
		opc |= 0b10
	default:
		panic("arm64: unsupported vector load/store width")
	}
	if imm12&((1<<scale)-1) != 0 {
		panic("arm64: vector LDR/STR immediate not naturally aligned")
	}
	scaled := imm12 >> scale
	if scaled > 0xFFF {
		panic("arm64: vector LDR/STR immediate exceeds 12-bit scaled range")
	}
	word := (size << 30) | 0x3D000000 | (opc << 22) | (scaled << 10) | (rn.Idx() << 5) | rt.Idx()
	b.EmitU32(word)
}

func (b *Buffer) VLDR(bits int, rt FPR, rn Register, imm12 uint32) { b.vecLdSt(bits, 0b01, rt, rn, imm12) }
func (b *Buffer) VSTR(bits int, rt FPR, rn Register, imm12 uint32) { b.vecLdSt(bits, 0b00, rt, rn, imm12) }

// LDP/STP (SIMD&FP) Qt1, Qt2, [Rn, #imm] — used to spill/fill a pair
// of 128-bit guest vector registers in one instruction (internal/jit
// fallback ABI marshalling).
func (b *Buffer) vecLdStp(bits int, opc uint32, rt1, rt2 FPR, rn Register, imm7 int32, mode AddrMode) {
	var size, scale uint32
	switch bits {
	case 32:
		size, scale = 0b00, 2
	case 64:
		size, scale = 0b01, 3
	case 128:
		size, scale = 0b10, 4
	default:
		panic("arm64: unsupported vector pair width")
	}
	if imm7&((1<<scale)-1) != 0 {
		panic("arm64: vector LDP/STP immediate not naturally aligned")
	}
	scaled := imm7 >> scale
	if scaled < -64 || scaled > 63 {
		panic("arm64: vector LDP/STP immediate out of range")
	}
	idxBits := uint32(0b010)
	switch mode {
	case AddrPreIdx:
		idxBits = 0b011
	case AddrPostIdx:
		idxBits = 0b001
	}
	word := (size << 30) | 0x2C000000 | (idxBits << 23) | (opc << 22) | ((uint32(scaled) & 0x7F) << 15) | (rt2.Idx() << 10) | (rn.Idx() << 5) | rt1.Idx()
	b.EmitU32(word)
}

func (b *Buffer) VSTP(bits int, rt1, rt2 FPR, rn Register, imm7 int32, mode AddrMode) {
	b.vecLdStp(bits, 0b00, rt1, rt2, rn, imm7, mode)
}
func (b *Buffer) VLDP(bits int, rt1, rt2 FPR, rn Register, imm7 int32, mode AddrMode) {
	b.vecLdStp(bits, 0b01, rt1, rt2, rn, imm7, mode)
}

// DUP Vd.T, Rn — broadcast a GPR into every lane.
func (b *Buffer) DUPGeneral(size SubRegSize, rd FPR, rn Register) {
	var imm5 uint32
	switch size {
	case Size8B:
		imm5 = 0b00001
	case Size16B:
		imm5 = 0b00010
	case Size32B:
		imm5 = 0b00100
	case Size64B:
		imm5 = 0b01000
	}
	b.EmitU32(0x0E000C00 | (imm5 << 16) | (rn.Idx() << 5) | rd.Idx())
}
