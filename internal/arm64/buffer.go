package arm64

import (
	"encoding/binary"
	"fmt"
)

// Buffer is a linear write-only byte cursor over a pre-allocated region,
// modeled on FEX's CodeEmitter::Buffer and the append-4-bytes pattern in
// tinyrange-rtg's std/compiler/aarch64.go. It does
// not bounds-check in the hot path: callers size the region generously
// (internal/jit's conservative margin check) and roll to a new buffer on
// exhaustion rather than pay a branch per emitted word.
type Buffer struct {
	base   []byte
	cursor int
}

// NewBuffer wraps an existing byte slice (typically a window into a
// codebuffer.Buffer's RWX region) for emission starting at offset 0.
func NewBuffer(region []byte) *Buffer {
	return &Buffer{base: region}
}

// Cursor returns the current write offset from the start of the region.
func (b *Buffer) Cursor() int { return b.cursor }

// Len is the size of the backing region.
func (b *Buffer) Len() int { return len(b.base) }

// Bytes returns the emitted prefix [0, cursor).
func (b *Buffer) Bytes() []byte { return b.base[:b.cursor] }

// Region exposes the full backing slice, for patching already-emitted
// instructions (label binding, block linking).
func (b *Buffer) Region() []byte { return b.base }

// Save captures the cursor for later restore, e.g. around a speculative
// encoding attempt that might need to be rolled back.
func (b *Buffer) Save() int { return b.cursor }

// Restore resets the cursor to a previously saved position.
func (b *Buffer) Restore(mark int) {
	if mark < 0 || mark > len(b.base) {
		panic("arm64: restore mark out of range")
	}
	b.cursor = mark
}

// EmitByte writes one byte and advances the cursor.
func (b *Buffer) EmitByte(v byte) {
	b.base[b.cursor] = v
	b.cursor++
}

// EmitU16 writes a little-endian halfword and advances by 2.
func (b *Buffer) EmitU16(v uint16) {
	binary.LittleEndian.PutUint16(b.base[b.cursor:], v)
	b.cursor += 2
}

// EmitU32 writes a little-endian word and advances by 4. Every AArch64,
// ASIMD, and SVE instruction is exactly one such word.
func (b *Buffer) EmitU32(v uint32) {
	binary.LittleEndian.PutUint32(b.base[b.cursor:], v)
	b.cursor += 4
}

// EmitU64 writes a little-endian doubleword and advances by 8; used for
// tail metadata and long-address literal pools, never for instructions.
func (b *Buffer) EmitU64(v uint64) {
	binary.LittleEndian.PutUint64(b.base[b.cursor:], v)
	b.cursor += 8
}

// PatchU32 overwrites an already-emitted word at a fixed offset, used by
// label binding and block linking. Does not move the cursor.
func (b *Buffer) PatchU32(offset int, v uint32) {
	binary.LittleEndian.PutUint32(b.base[offset:], v)
}

// ReadU32 reads a previously emitted word without disturbing the cursor.
func (b *Buffer) ReadU32(offset int) uint32 {
	return binary.LittleEndian.Uint32(b.base[offset:])
}

// Align pads with zero bytes until the cursor is a multiple of n, which
// must be a power of two. Used before a JITCodeTail and between guard
// transitions; works from any starting cursor.
func (b *Buffer) Align(n int) {
	if n <= 0 || n&(n-1) != 0 {
		panic(fmt.Sprintf("arm64: alignment %d is not a power of two", n))
	}
	for b.cursor%n != 0 {
		b.EmitByte(0)
	}
}
