package arm64

import "testing"

func TestSVCEncodesImm16(t *testing.T) {
	buf := NewBuffer(make([]byte, 16))
	buf.SVC(0x1234)
	word := buf.ReadU32(0)
	if got := uint16((word >> 5) & 0xFFFF); got != 0x1234 {
		t.Fatalf("SVC imm16 = %#x, want 0x1234", got)
	}
}

func TestBarriersAreFixedEncodings(t *testing.T) {
	cases := []struct {
		name string
		emit func(b *Buffer)
		want uint32
	}{
		{"ISB", func(b *Buffer) { b.ISB() }, 0xD5033FDF},
		{"DSBISH", func(b *Buffer) { b.DSBISH() }, 0xD5033B9F},
		{"DMBISH", func(b *Buffer) { b.DMBISH() }, 0xD5033BBF},
	}
	for _, c := range cases {
		buf := NewBuffer(make([]byte, 16))
		c.emit(buf)
		if got := buf.ReadU32(0); got != c.want {
			t.Fatalf("%s = %#x, want %#x", c.name, got, c.want)
		}
	}
}

func TestMRSMSRRoundTripSystemRegAndRt(t *testing.T) {
	const sysreg = 0x4321

	buf := NewBuffer(make([]byte, 16))
	buf.MRS(X(5).R(), sysreg)
	word := buf.ReadU32(0)
	if rt := word & 0x1F; rt != 5 {
		t.Fatalf("MRS rt = %d, want 5", rt)
	}
	if got := (word >> 5) & 0x7FFF; got != sysreg&0x7FFF {
		t.Fatalf("MRS sysreg field = %#x, want %#x", got, sysreg&0x7FFF)
	}

	buf2 := NewBuffer(make([]byte, 16))
	buf2.MSR(sysreg, X(7).R())
	word2 := buf2.ReadU32(0)
	if rt := word2 & 0x1F; rt != 7 {
		t.Fatalf("MSR rt = %d, want 7", rt)
	}
}

func TestCacheMaintenanceEncodesRt(t *testing.T) {
	buf := NewBuffer(make([]byte, 16))
	buf.DCCVAU(X(3).R())
	if rt := buf.ReadU32(0) & 0x1F; rt != 3 {
		t.Fatalf("DCCVAU rt = %d, want 3", rt)
	}

	buf2 := NewBuffer(make([]byte, 16))
	buf2.ICIVAU(X(9).R())
	if rt := buf2.ReadU32(0) & 0x1F; rt != 9 {
		t.Fatalf("ICIVAU rt = %d, want 9", rt)
	}
}

func TestHINTEncodesImm(t *testing.T) {
	buf := NewBuffer(make([]byte, 16))
	buf.HINT(0x7F)
	if got := (buf.ReadU32(0) >> 5) & 0x7F; got != 0x7F {
		t.Fatalf("HINT imm = %#x, want 0x7f", got)
	}
}
