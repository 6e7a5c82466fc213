package arm64

import (
	"bytes"
	"testing"
)

// TestScenarioS1EmitAddAndRet reproduces a worked oracle scenario: add
// x0, x1, x2 then ret, with a fixed expected byte oracle.
func TestScenarioS1EmitAddAndRet(t *testing.T) {
	buf := NewBuffer(make([]byte, 32))
	buf.ADD(Size64, X(0).R(), X(1).R(), X(2).R())
	buf.RET(LR.R())

	want := []byte{0x20, 0x00, 0x02, 0x8B, 0xC0, 0x03, 0x5F, 0xD6}
	if got := buf.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestADDEverySize(t *testing.T) {
	for _, sz := range []Size{Size32, Size64} {
		buf := NewBuffer(make([]byte, 16))
		buf.ADD(sz, X(0).R(), X(1).R(), X(2).R())
		word := buf.ReadU32(0)
		sf := word >> 31
		if sz == Size64 && sf != 1 {
			t.Fatalf("Size64 ADD did not set sf bit: %#x", word)
		}
		if sz == Size32 && sf != 0 {
			t.Fatalf("Size32 ADD set sf bit unexpectedly: %#x", word)
		}
	}
}

func TestADDShiftedEveryShiftType(t *testing.T) {
	for _, sh := range []ShiftType{ShiftLSL, ShiftLSR, ShiftASR, ShiftROR} {
		buf := NewBuffer(make([]byte, 16))
		buf.ADDShifted(Size64, X(0).R(), X(1).R(), X(2).R(), sh, 4)
		word := buf.ReadU32(0)
		got := ShiftType((word >> 22) & 0x3)
		if got != sh {
			t.Fatalf("shift type not encoded: got %d want %d", got, sh)
		}
	}
}

func TestBCondEveryCondition(t *testing.T) {
	conds := []Condition{CondEQ, CondNE, CondCS, CondCC, CondMI, CondPL, CondVS, CondVC,
		CondHI, CondLS, CondGE, CondLT, CondGT, CondLE, CondAL, CondNV}
	for _, c := range conds {
		buf := NewBuffer(make([]byte, 16))
		buf.BCond(c, buf.Cursor())
		word := buf.ReadU32(0)
		if Condition(word&0xF) != c {
			t.Fatalf("condition not round-tripped: got %d want %d", word&0xF, c)
		}
	}
}

func TestCSELEveryCondition(t *testing.T) {
	for c := Condition(0); c <= CondNV; c++ {
		buf := NewBuffer(make([]byte, 16))
		buf.CSEL(Size64, X(0).R(), X(1).R(), X(2).R(), c)
		word := buf.ReadU32(0)
		if Condition((word>>12)&0xF) != c {
			t.Fatalf("CSEL condition not round-tripped: got %d want %d", (word>>12)&0xF, c)
		}
	}
}

func TestLoadImm64RoundTrips(t *testing.T) {
	vals := []uint64{0, 1, 0xFFFFFFFFFFFFFFFF, 0x1234_5678_9ABC_DEF0, 0xFFFF_0000_FFFF_0000}
	for _, v := range vals {
		buf := NewBuffer(make([]byte, 32))
		buf.LoadImm64(X(3).R(), v)
		if buf.Cursor() != 16 {
			t.Fatalf("LoadImm64 must always emit exactly 4 instructions, emitted %d bytes", buf.Cursor())
		}
	}
}
