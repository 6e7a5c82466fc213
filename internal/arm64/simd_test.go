package arm64

import "testing"

func TestVADDEverySubRegSize(t *testing.T) {
	for _, sz := range []SubRegSize{Size8B, Size16B, Size32B, Size64B} {
		buf := NewBuffer(make([]byte, 16))
		buf.VADD(sz, V(0), V(1), V(2))
		word := buf.ReadU32(0)
		got := SubRegSize((word >> 22) & 0x3)
		if got != sz {
			t.Fatalf("SubRegSize not encoded: got %d want %d", got, sz)
		}
	}
}

func TestPTRUEEveryPattern(t *testing.T) {
	patterns := []PredicatePattern{
		PatPow2, PatVL1, PatVL2, PatVL4, PatVL8, PatVL16, PatVL32, PatVL64,
		PatVL128, PatVL256, PatMul4, PatMul3, PatAll,
	}
	for _, p := range patterns {
		buf := NewBuffer(make([]byte, 16))
		buf.PTRUE(Size32B, P(0), p)
		word := buf.ReadU32(0)
		got := PredicatePattern((word >> 5) & 0x1F)
		if got != p {
			t.Fatalf("pattern not encoded: got %d want %d", got, p)
		}
	}
}

// TestVLDRVSTRFullWordOracle checks the complete 32-bit word against
// fixed oracles for the scaled SIMD&FP immediate load/store forms, per
// spec.md §8 property 1. Sub-field-only assertions (as elsewhere in
// this file) can't catch a wrong base opcode class, which is exactly
// what slipped through before: the V=1/size=00/opc=1x "SIMD&FP
// unsigned-scaled" discriminator bit has to be checked as part of the
// whole word, not reconstructed from extracted fields.
func TestVLDRVSTRFullWordOracle(t *testing.T) {
	cases := []struct {
		name string
		emit func(b *Buffer)
		want uint32
	}{
		{"STR D0, [X1]", func(b *Buffer) { b.VSTR(64, V(0), X(1).R(), 0) }, 0xFD000020},
		{"LDR D0, [X1]", func(b *Buffer) { b.VLDR(64, V(0), X(1).R(), 0) }, 0xFD400020},
		{"STR Q0, [SP]", func(b *Buffer) { b.VSTR(128, V(0), SP.R(), 0) }, 0x3D8003E0},
		{"LDR Q2, [X3, #16]", func(b *Buffer) { b.VLDR(128, V(2), X(3).R(), 16) }, 0x3DC00462},
	}
	for _, c := range cases {
		buf := NewBuffer(make([]byte, 16))
		c.emit(buf)
		if got := buf.ReadU32(0); got != c.want {
			t.Fatalf("%s: word = %#08x, want %#08x", c.name, got, c.want)
		}
	}
}

func TestPRegMergeZeroModeIndependentOfIndex(t *testing.T) {
	p := P(3)
	if p.Mod() != PredMerge {
		t.Fatalf("P() default should be merge mode")
	}
	if p.Zero().Mod() != PredZero || p.Zero().Idx() != 3 {
		t.Fatalf("Zero() must preserve index and flip mode")
	}
	if p.Zero().Merge().Mod() != PredMerge {
		t.Fatalf("Merge() must flip mode back")
	}
}
