package arm64

import "testing"

func TestADDExtendedEveryExtendType(t *testing.T) {
	exts := []ExtendedType{ExtUXTB, ExtUXTH, ExtUXTW, ExtUXTX, ExtSXTB, ExtSXTH, ExtSXTW, ExtSXTX}
	for _, e := range exts {
		buf := NewBuffer(make([]byte, 16))
		buf.ADDExtended(Size64, X(0).R(), X(1).R(), X(2).R(), e, 0)
		word := buf.ReadU32(0)
		got := ExtendedType((word >> 13) & 0x7)
		if got != e {
			t.Fatalf("extend type not encoded: got %d want %d", got, e)
		}
	}
}

func TestCBZAndTBZForwardPatching(t *testing.T) {
	buf := NewBuffer(make([]byte, 64))
	var l ForwardLabel
	buf.CBZForward(Size64, X(0).R(), &l)
	buf.NOP()
	l.Bind(buf, buf.Cursor())

	word := buf.ReadU32(0)
	imm := int32(word<<8) >> 13 // sign-extend 19-bit field at [23:5]
	if imm != 2 {
		t.Fatalf("CBZ immediate = %d, want 2", imm)
	}

	buf2 := NewBuffer(make([]byte, 64))
	var l2 ForwardLabel
	buf2.TBZForward(X(1).R(), 40, &l2)
	buf2.NOP()
	l2.Bind(buf2, buf2.Cursor())
	word2 := buf2.ReadU32(0)
	if (word2>>31)&1 != 1 {
		t.Fatalf("TBZ bit 40 should set b5, got %#x", word2)
	}
}

func TestBranchOutOfRangeIsFatal(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("B beyond ±128MiB must panic")
		}
	}()
	buf := NewBuffer(make([]byte, 16))
	buf.B(1 << 28)
}
