package arm64

import "fmt"

// PatchStyle identifies the immediate-field shape a forward reference
// must be spliced into at bind time. Each style has its own width,
// signedness, scale, and range.
type PatchStyle uint8

const (
	// PatchB is an unconditional branch: 26-bit signed, scaled by 4,
	// so ±128 MiB.
	PatchB PatchStyle = iota
	// PatchBC is a conditional branch / CBZ / CBNZ / load-relative
	// instruction: 19-bit signed, scaled by 4, ±1 MiB.
	PatchBC
	// PatchTBZ is TBZ/TBNZ: 14-bit signed, scaled by 4, ±32 KiB.
	PatchTBZ
	// PatchADR is ADR: 21-bit signed, unscaled, ±1 MiB.
	PatchADR
	// PatchADRP is ADRP: 21-bit signed, scaled by 4 KiB, ±4 GiB,
	// relative to the 4 KiB-aligned instruction page.
	PatchADRP
	// PatchLongAddress marks the two-instruction ADRP+ADD or NOP+ADR
	// pair emitted by LongAddressGen; binding rewrites both words.
	PatchLongAddress
)

// range, in bytes, as (min, max) inclusive signed offsets.
func (s PatchStyle) byteRange() (min, max int64) {
	switch s {
	case PatchB:
		return -(1 << 27), (1 << 27) - 4
	case PatchBC:
		return -(1 << 20), (1 << 20) - 4
	case PatchTBZ:
		return -(1 << 15), (1 << 15) - 4
	case PatchADR:
		return -(1 << 20), (1 << 20) - 1
	case PatchADRP:
		return -(1 << 32), (1 << 32) - 4096
	case PatchLongAddress:
		return -(1 << 63), (1 << 63) - 1
	default:
		panic("arm64: unknown patch style")
	}
}

// site is one forward reference: the instruction word offset that needs
// patching, and how to patch it.
type site struct {
	offset int
	style  PatchStyle
	// rd is the destination register passed at emit time for ADR/ADRP
	// and long-address sites. For long-address sites the same index is
	// also encoded in the first placeholder instruction, and the binder
	// recovers it from that word rather than from this field.
	rd uint32
}

// BackwardLabel names an address already emitted. Bound exactly once,
// before its first use: location is non-null iff the label is bound.
type BackwardLabel struct {
	bound    bool
	location int
}

// Bind records the already-emitted address this label refers to.
func (l *BackwardLabel) Bind(offset int) {
	if l.bound {
		panic("arm64: backward label bound twice")
	}
	l.bound = true
	l.location = offset
}

// Location returns the bound offset. Panics if unbound.
func (l *BackwardLabel) Location() int {
	if !l.bound {
		panic("arm64: backward label used before bind")
	}
	return l.location
}

// ForwardLabel collects referring instruction sites, each tagged with
// its patch style, for a target not yet emitted. The first site is
// stored inline so the overwhelmingly common single-use label costs no
// heap allocation.
type ForwardLabel struct {
	bound    bool
	n        int // number of sites recorded; sites after the first go to spill
	first    site
	spill    []site
}

// addSite records one referring site without allocating until the
// second use.
func (l *ForwardLabel) addSite(s site) {
	if l.bound {
		panic("arm64: forward label referenced after bind")
	}
	switch l.n {
	case 0:
		l.first = s
	default:
		l.spill = append(l.spill, s)
	}
	l.n++
}

// sites iterates all recorded referring sites in recording order.
func (l *ForwardLabel) sites(yield func(site)) {
	if l.n == 0 {
		return
	}
	yield(l.first)
	for _, s := range l.spill {
		yield(s)
	}
}

// Bound reports whether Bind has already been called.
func (l *ForwardLabel) Bound() bool { return l.bound }

// Bind patches every recorded referring site so its branch/address
// targets `target`, then marks the label bound. Binding twice is fatal
// (binding a label twice is a caller bug, not something this type hides).
func (l *ForwardLabel) Bind(b *Buffer, target int) {
	if l.bound {
		panic("arm64: forward label bound twice")
	}
	l.bound = true
	l.sites(func(s site) {
		patchSite(b, s, target)
	})
}

// BidirectionalLabel holds both a backward and a forward half; callers
// pick whichever is relevant at each use site.
type BidirectionalLabel struct {
	Backward BackwardLabel
	Forward  ForwardLabel
}

// patchSite computes the signed byte delta from a referring site to the
// bound target, range-checks it against the site's patch style, and
// splices it into the previously emitted instruction word. Fatal on
// out-of-range.
func patchSite(b *Buffer, s site, target int) {
	delta := int64(target - s.offset)
	min, max := s.style.byteRange()
	if delta < min || delta > max {
		panic(fmt.Sprintf("arm64: label patch out of range: delta=%d style=%v", delta, s.style))
	}

	switch s.style {
	case PatchB:
		imm := uint32((delta/4)&0x3FFFFFF)
		word := b.ReadU32(s.offset)
		word = (word &^ 0x03FFFFFF) | imm
		b.PatchU32(s.offset, word)
	case PatchBC:
		imm := uint32((delta/4)&0x7FFFF) << 5
		word := b.ReadU32(s.offset)
		word = (word &^ (0x7FFFF << 5)) | imm
		b.PatchU32(s.offset, word)
	case PatchTBZ:
		imm := uint32((delta/4)&0x3FFF) << 5
		word := b.ReadU32(s.offset)
		word = (word &^ (0x3FFF << 5)) | imm
		b.PatchU32(s.offset, word)
	case PatchADR:
		u := uint32(delta) & 0x1FFFFF
		immlo := (u & 0x3) << 29
		immhi := (u >> 2) << 5
		word := b.ReadU32(s.offset)
		word = (word &^ ((0x3 << 29) | (0x7FFFF << 5))) | immlo | immhi
		b.PatchU32(s.offset, word)
	case PatchADRP:
		pageDelta := (int64(target) >> 12) - (int64(s.offset) >> 12)
		u := uint32(pageDelta) & 0x1FFFFF
		immlo := (u & 0x3) << 29
		immhi := (u >> 2) << 5
		word := b.ReadU32(s.offset)
		word = (word &^ ((0x3 << 29) | (0x7FFFF << 5))) | immlo | immhi
		b.PatchU32(s.offset, word)
	case PatchLongAddress:
		patchLongAddress(b, s, target)
	default:
		panic("arm64: unknown patch style")
	}
}

// patchLongAddress rewrites the two placeholder instruction words
// emitted by LongAddressGen once the target is known. If the target is
// not reachable from the second instruction slot via ADR (±1 MiB), an
// ADRP+ADD pair is used; otherwise a NOP+ADR pair suffices.
func patchLongAddress(b *Buffer, s site, target int) {
	second := s.offset + 4
	adrDelta := int64(target - second)
	rd := b.ReadU32(s.offset) & 0x1F

	if adrDelta >= -(1<<20) && adrDelta <= (1<<20)-1 {
		b.PatchU32(s.offset, encodeNOP())
		b.PatchU32(second, encodeADR(rd, uint32(adrDelta)&0x1FFFFF))
		return
	}

	pageOfSecond := second &^ 0xFFF
	pageDelta := (int64(target) &^ 0xFFF) - int64(pageOfSecond)
	lo12 := uint32(target) & 0xFFF
	b.PatchU32(s.offset, encodeADRP(rd, uint32(pageDelta>>12)&0x1FFFFF))
	b.PatchU32(second, encodeAddImm(rd, rd, lo12))
}

func encodeNOP() uint32 { return 0xD503201F }

func encodeADR(rd, immBits uint32) uint32 {
	immlo := (immBits & 0x3) << 29
	immhi := (immBits >> 2) << 5
	return 0x10000000 | immlo | immhi | (rd & 0x1F)
}

func encodeADRP(rd, immBits uint32) uint32 {
	immlo := (immBits & 0x3) << 29
	immhi := (immBits >> 2) << 5
	return 0x90000000 | immlo | immhi | (rd & 0x1F)
}

func encodeAddImm(rd, rn, imm12 uint32) uint32 {
	return 0x91000000 | ((imm12 & 0xFFF) << 10) | ((rn & 0x1F) << 5) | (rd & 0x1F)
}
