// Package jit is the per-block compiler: prologue emission, per-op
// dispatch via internal/arm64, fallback-ABI spill/fill marshalling, and
// direct/indirect block-to-block linking, grounded on
// original_source/FEXCore/Source/Interface/Core/JIT/Arm64/JIT.cpp and
// spec.md §4.5.
package jit

import (
	"encoding/binary"

	"github.com/FEX-Emu/FEX-sub016/internal/arm64"
)

// headerSize is the on-the-wire size of JITCodeHeader (spec.md §6.3):
// a single u64.
const headerSize = 8

// tailFixedSize is JITCodeTail's fixed portion, before the
// variable-length JITRIPEntry array (spec.md §6.3):
// guest_rip(8) + spin_lock_futex(4) + size(4) + rip_entries_count(4) +
// offset_to_rip_entries(4) = 24 bytes.
const tailFixedSize = 24

// ripEntrySize is one JITRIPEntry: host_pc_delta(4) + guest_rip_delta(4).
const ripEntrySize = 8

// Header is the fixed 8-byte record at the start of every compiled
// block (spec.md §6.3): the offset, from the header's own address, to
// this block's JITCodeTail. The prologue stores this record's address
// into the thread-state's InlineJITBlockHeader slot so an in-flight
// signal handler can reconstruct which block it's in.
type Header struct {
	OffsetToBlockTail uint64
}

// WriteHeader emits a placeholder header at the buffer's current
// cursor and returns its offset; OffsetToBlockTail is patched in once
// the tail's position is known (spec.md §4.5 step 2/6).
func WriteHeader(b *arm64.Buffer) int {
	off := b.Cursor()
	b.EmitU64(0)
	return off
}

// PatchHeaderTailOffset fills in the header's OffsetToBlockTail field
// once the tail has been emitted.
func PatchHeaderTailOffset(b *arm64.Buffer, headerOffset, tailOffset int) {
	region := b.Region()
	binary.LittleEndian.PutUint64(region[headerOffset:], uint64(tailOffset-headerOffset))
}

// RIPEntry is one delta-encoded (host_pc, guest_rip) correspondence
// within a block, letting any host PC inside the block be mapped back
// to a guest RIP without a side table (spec.md §6.3, §8 property 9).
type RIPEntry struct {
	HostPCDelta   int32
	GuestRIPDelta int32
}

// Tail is the fixed-size record following a block's code (spec.md
// §6.3), followed in the buffer by RIPEntriesCount RIPEntry rows.
type Tail struct {
	GuestRIP            uint64
	SpinLockFutex       uint32
	Size                uint32
	RIPEntriesCount     uint32
	OffsetToRIPEntries  uint32
}

// WriteTail emits the fixed tail record followed by entries, and
// returns the tail's own buffer offset. size and offsetToRIPEntries are
// computed here: entries are always placed immediately after the fixed
// portion, so OffsetToRIPEntries is always tailFixedSize, but the field
// is still written explicitly to keep the wire format self-describing
// (spec.md §6.3 literally specifies it as a stored field, not an
// implicit constant).
func WriteTail(b *arm64.Buffer, guestRIP uint64, entries []RIPEntry) int {
	tailOff := b.Cursor()
	totalSize := tailFixedSize + len(entries)*ripEntrySize

	b.EmitU64(guestRIP)
	b.EmitU32(0) // spin_lock_futex starts unlocked
	b.EmitU32(uint32(totalSize))
	b.EmitU32(uint32(len(entries)))
	b.EmitU32(uint32(tailFixedSize))

	for _, e := range entries {
		b.EmitU32(uint32(e.HostPCDelta))
		b.EmitU32(uint32(e.GuestRIPDelta))
	}
	return tailOff
}

// ReadTail parses a Tail record (and its RIP entries) out of an
// emitted buffer region, for the RIP-reconstruction walk (spec.md §8
// property 9) and for cmd/fexjitctl's disasm --tail-offset listing.
func ReadTail(region []byte, tailOffset int) (Tail, []RIPEntry) {
	r := region[tailOffset:]
	t := Tail{
		GuestRIP:           binary.LittleEndian.Uint64(r[0:8]),
		SpinLockFutex:      binary.LittleEndian.Uint32(r[8:12]),
		Size:               binary.LittleEndian.Uint32(r[12:16]),
		RIPEntriesCount:    binary.LittleEndian.Uint32(r[16:20]),
		OffsetToRIPEntries: binary.LittleEndian.Uint32(r[20:24]),
	}
	entries := make([]RIPEntry, t.RIPEntriesCount)
	base := tailOffset + int(t.OffsetToRIPEntries)
	for i := range entries {
		off := base + i*ripEntrySize
		entries[i] = RIPEntry{
			HostPCDelta:   int32(binary.LittleEndian.Uint32(region[off : off+4])),
			GuestRIPDelta: int32(binary.LittleEndian.Uint32(region[off+4 : off+8])),
		}
	}
	return t, entries
}

// ReconstructGuestRIP walks a block's RIP entries to find the guest RIP
// whose translation covers hostPC (spec.md §8 property 9). blockBegin
// and tailOffset are both relative to the same region ReadTail was
// called on.
func ReconstructGuestRIP(tail Tail, entries []RIPEntry, blockBegin, tailOffset, hostPC int) uint64 {
	guestRIP := int64(tail.GuestRIP)
	hostCursor := blockBegin
	best := uint64(tail.GuestRIP)
	for _, e := range entries {
		hostCursor += int(e.HostPCDelta)
		guestRIP += int64(e.GuestRIPDelta)
		if hostCursor > hostPC {
			break
		}
		best = uint64(guestRIP)
	}
	return best
}
