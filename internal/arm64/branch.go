package arm64

import "fmt"

// Branch encoders come in two flavors: direct-to-offset (used once the
// target address is already known, i.e. a backward branch) and
// forward-referencing (used before the target is known; they emit a
// zero placeholder immediate and record a patch site on a ForwardLabel,
// each recording an (emit_site, patch_style) pair).

func rangeCheckB(delta int64) {
	min, max := PatchB.byteRange()
	if delta < min || delta > max {
		panic(fmt.Sprintf("arm64: B target out of range: delta=%d", delta))
	}
}

// B emits an unconditional branch to a known (already emitted) offset.
func (b *Buffer) B(targetOffset int) {
	delta := int64(targetOffset - b.Cursor())
	rangeCheckB(delta)
	imm := uint32(delta/4) & 0x3FFFFFF
	b.EmitU32(0x14000000 | imm)
}

// BForward emits a placeholder unconditional branch and registers the
// site on l, to be patched when l is bound.
func (b *Buffer) BForward(l *ForwardLabel) {
	off := b.Cursor()
	b.EmitU32(0x14000000)
	l.addSite(site{offset: off, style: PatchB})
}

// BL targetOffset — branch with link to a known offset.
func (b *Buffer) BL(targetOffset int) {
	delta := int64(targetOffset - b.Cursor())
	rangeCheckB(delta)
	imm := uint32(delta/4) & 0x3FFFFFF
	b.EmitU32(0x94000000 | imm)
}

// BR/BLR Rn — branch (with link) through register.
func (b *Buffer) BR(rn Register)  { b.EmitU32(0xD61F0000 | (rn.Idx() << 5)) }
func (b *Buffer) BLR(rn Register) { b.EmitU32(0xD63F0000 | (rn.Idx() << 5)) }

// BCond emits a conditional branch to a known offset.
func (b *Buffer) BCond(cond Condition, targetOffset int) {
	delta := int64(targetOffset - b.Cursor())
	min, max := PatchBC.byteRange()
	if delta < min || delta > max {
		panic(fmt.Sprintf("arm64: B.cond target out of range: delta=%d", delta))
	}
	imm := (uint32(delta/4) & 0x7FFFF) << 5
	b.EmitU32(0x54000000 | imm | uint32(cond))
}

// BCondForward emits a placeholder conditional branch and registers the
// forward site.
func (b *Buffer) BCondForward(cond Condition, l *ForwardLabel) {
	off := b.Cursor()
	b.EmitU32(0x54000000 | uint32(cond))
	l.addSite(site{offset: off, style: PatchBC})
}

// CBZ/CBNZ Rt, target — compare-and-branch, load-relative patch style.
func (b *Buffer) cbz(sz Size, rt Register, base uint32, targetOffset int) {
	delta := int64(targetOffset - b.Cursor())
	min, max := PatchBC.byteRange()
	if delta < min || delta > max {
		panic(fmt.Sprintf("arm64: CBZ/CBNZ target out of range: delta=%d", delta))
	}
	imm := (uint32(delta/4) & 0x7FFFF) << 5
	b.EmitU32((sz.sf() << 31) | base | imm | rt.Idx())
}

func (b *Buffer) CBZ(sz Size, rt Register, targetOffset int)  { b.cbz(sz, rt, 0x34000000, targetOffset) }
func (b *Buffer) CBNZ(sz Size, rt Register, targetOffset int) { b.cbz(sz, rt, 0x35000000, targetOffset) }

func (b *Buffer) cbzForward(sz Size, rt Register, base uint32, l *ForwardLabel) {
	off := b.Cursor()
	b.EmitU32((sz.sf() << 31) | base | rt.Idx())
	l.addSite(site{offset: off, style: PatchBC})
}

func (b *Buffer) CBZForward(sz Size, rt Register, l *ForwardLabel)  { b.cbzForward(sz, rt, 0x34000000, l) }
func (b *Buffer) CBNZForward(sz Size, rt Register, l *ForwardLabel) { b.cbzForward(sz, rt, 0x35000000, l) }

// TBZ/TBNZ Rt, #bit, target — test single bit and branch, ±32 KiB.
func (b *Buffer) tbz(rt Register, bit uint32, base uint32, targetOffset int) {
	if bit > 63 {
		panic("arm64: TBZ/TBNZ bit index out of range")
	}
	delta := int64(targetOffset - b.Cursor())
	min, max := PatchTBZ.byteRange()
	if delta < min || delta > max {
		panic(fmt.Sprintf("arm64: TBZ/TBNZ target out of range: delta=%d", delta))
	}
	b5 := (bit >> 5) << 31
	b40 := (bit & 0x1F) << 19
	imm := (uint32(delta/4) & 0x3FFF) << 5
	b.EmitU32(base | b5 | b40 | imm | rt.Idx())
}

func (b *Buffer) TBZ(rt Register, bit uint32, targetOffset int)  { b.tbz(rt, bit, 0x36000000, targetOffset) }
func (b *Buffer) TBNZ(rt Register, bit uint32, targetOffset int) { b.tbz(rt, bit, 0x37000000, targetOffset) }

func (b *Buffer) tbzForward(rt Register, bit uint32, base uint32, l *ForwardLabel) {
	if bit > 63 {
		panic("arm64: TBZ/TBNZ bit index out of range")
	}
	off := b.Cursor()
	b5 := (bit >> 5) << 31
	b40 := (bit & 0x1F) << 19
	b.EmitU32(base | b5 | b40 | rt.Idx())
	l.addSite(site{offset: off, style: PatchTBZ})
}

func (b *Buffer) TBZForward(rt Register, bit uint32, l *ForwardLabel) {
	b.tbzForward(rt, bit, 0x36000000, l)
}
func (b *Buffer) TBNZForward(rt Register, bit uint32, l *ForwardLabel) {
	b.tbzForward(rt, bit, 0x37000000, l)
}

// ADR Rd, target — PC-relative address of a known offset, ±1 MiB
// unscaled.
func (b *Buffer) ADR(rd Register, targetOffset int) {
	delta := int64(targetOffset - b.Cursor())
	min, max := PatchADR.byteRange()
	if delta < min || delta > max {
		panic(fmt.Sprintf("arm64: ADR target out of range: delta=%d", delta))
	}
	b.EmitU32(encodeADR(rd.Idx(), uint32(delta)&0x1FFFFF))
}

// ADRForward emits a placeholder ADR and registers the forward site.
func (b *Buffer) ADRForward(rd Register, l *ForwardLabel) {
	off := b.Cursor()
	b.EmitU32(encodeADR(rd.Idx(), 0))
	l.addSite(site{offset: off, style: PatchADR, rd: rd.Idx()})
}

// ADRP Rd, pageOffset — PC-page-relative address, ±4 GiB at 4 KiB
// granularity.
func (b *Buffer) ADRP(rd Register, targetOffset int) {
	pageDelta := (int64(targetOffset) >> 12) - (int64(b.Cursor()) >> 12)
	byteDelta := pageDelta << 12
	min, max := PatchADRP.byteRange()
	if byteDelta < min || byteDelta > max {
		panic(fmt.Sprintf("arm64: ADRP target out of range: delta=%d", byteDelta))
	}
	b.EmitU32(encodeADRP(rd.Idx(), uint32(pageDelta)&0x1FFFFF))
}

// ADRPForward emits a placeholder ADRP and registers the forward site.
func (b *Buffer) ADRPForward(rd Register, l *ForwardLabel) {
	off := b.Cursor()
	b.EmitU32(encodeADRP(rd.Idx(), 0))
	l.addSite(site{offset: off, style: PatchADRP, rd: rd.Idx()})
}

// LongAddressGen reserves a two-instruction placeholder pair that will,
// at bind time, become either ADRP+ADD or NOP+ADR depending on whether
// the target is reachable from the second instruction slot via ADR
// (long-address generation). The destination register is
// recovered from the first placeholder word by the binder, so no extra
// bookkeeping is required at the call site beyond the ForwardLabel.
func (b *Buffer) LongAddressGen(rd Register, l *ForwardLabel) {
	off := b.Cursor()
	b.EmitU32(encodeADRP(rd.Idx(), 0)) // placeholder; may become NOP
	b.EmitU32(encodeAddImm(rd.Idx(), rd.Idx(), 0))
	l.addSite(site{offset: off, style: PatchLongAddress, rd: rd.Idx()})
}
