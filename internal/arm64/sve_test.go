package arm64

import "testing"

func TestPTRUEEncodesPatternAndSize(t *testing.T) {
	buf := NewBuffer(make([]byte, 16))
	buf.PTRUE(Size32B, P(2), PatVL8)
	word := buf.ReadU32(0)
	if got := word & 0x1F; got != 2 {
		t.Fatalf("PTRUE pd = %d, want 2", got)
	}
	if got := (word >> 5) & 0x1F; got != uint32(PatVL8) {
		t.Fatalf("PTRUE pattern = %d, want %d", got, PatVL8)
	}
	if got := (word >> 22) & 0x3; got != sveSizeBits(Size32B) {
		t.Fatalf("PTRUE size bits = %d, want %d", got, sveSizeBits(Size32B))
	}
}

func TestSVEAddEverySize(t *testing.T) {
	for _, sz := range []SubRegSize{Size8B, Size16B, Size32B, Size64B} {
		buf := NewBuffer(make([]byte, 16))
		buf.SVEAdd(sz, Z(1), P(3), Z(4))
		word := buf.ReadU32(0)
		if got := (word >> 22) & 0x3; got != sveSizeBits(sz) {
			t.Fatalf("SVEAdd(%v) size bits = %d, want %d", sz, got, sveSizeBits(sz))
		}
		if got := word & 0x1F; got != 1 {
			t.Fatalf("SVEAdd zd = %d, want 1", got)
		}
		if got := (word >> 5) & 0x1F; got != 4 {
			t.Fatalf("SVEAdd zn = %d, want 4", got)
		}
		if got := (word >> 10) & 0x7; got != 3 {
			t.Fatalf("SVEAdd pg = %d, want 3", got)
		}
	}
}

func TestSVEAddUnpredEncodesAllThreeRegs(t *testing.T) {
	buf := NewBuffer(make([]byte, 16))
	buf.SVEAddUnpred(Size64B, Z(5), Z(6), Z(7))
	word := buf.ReadU32(0)
	if got := word & 0x1F; got != 5 {
		t.Fatalf("zd = %d, want 5", got)
	}
	if got := (word >> 5) & 0x1F; got != 6 {
		t.Fatalf("zn = %d, want 6", got)
	}
	if got := (word >> 16) & 0x1F; got != 7 {
		t.Fatalf("zm = %d, want 7", got)
	}
}

func TestSVELD1WImmRejectsOutOfRangeOffset(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range immediate")
		}
	}()
	buf := NewBuffer(make([]byte, 16))
	buf.SVELD1WImm(Z(0), P(0), X(1).R(), 32)
}

func TestSVELD1WImmEncodesNegativeOffset(t *testing.T) {
	buf := NewBuffer(make([]byte, 16))
	buf.SVELD1WImm(Z(2), P(1), X(3).R(), -1)
	word := buf.ReadU32(0)
	if got := (word >> 16) & 0x3F; got != 0x3F {
		t.Fatalf("imm field = %#x, want 0x3f (-1 as 6-bit two's complement)", got)
	}
}

func TestWHILELTEncodesOperands(t *testing.T) {
	buf := NewBuffer(make([]byte, 16))
	buf.WHILELT(Size32B, P(4), X(1).R(), X(2).R())
	word := buf.ReadU32(0)
	if got := word & 0x1F; got != 4 {
		t.Fatalf("pd = %d, want 4", got)
	}
	if got := (word >> 5) & 0x1F; got != 1 {
		t.Fatalf("rn = %d, want 1", got)
	}
	if got := (word >> 16) & 0x1F; got != 2 {
		t.Fatalf("rm = %d, want 2", got)
	}
}

func TestCPYScalarHonorsPredicateMode(t *testing.T) {
	buf := NewBuffer(make([]byte, 16))
	buf.CPYScalar(Size64B, Z(0), P(0).Zero(), X(5).R())
	word := buf.ReadU32(0)
	if got := (word >> 14) & 0x1; got != 1 {
		t.Fatalf("zeroing predicate bit = %d, want 1", got)
	}

	buf2 := NewBuffer(make([]byte, 16))
	buf2.CPYScalar(Size64B, Z(0), P(0).Merge(), X(5).R())
	word2 := buf2.ReadU32(0)
	if got := (word2 >> 14) & 0x1; got != 0 {
		t.Fatalf("merging predicate bit = %d, want 0", got)
	}
}
