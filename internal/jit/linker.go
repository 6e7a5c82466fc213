package jit

import (
	"encoding/binary"

	"github.com/FEX-Emu/FEX-sub016/internal/arm64"
	"github.com/FEX-Emu/FEX-sub016/internal/codebuffer"
	"github.com/FEX-Emu/FEX-sub016/internal/codecache"
)

// Block linking (spec.md §4.3) installs a fast path from one compiled
// block directly to another, then must be reversible: if the target is
// ever erased from the lookup cache (self-modifying code, guest
// unmapping the page), every site that links to it has to revert to
// its pre-link form before the erase completes. Two link shapes are
// supported, matching which form a given tail branch can take: direct
// (rewrite an in-range unconditional branch in place) and indirect
// (rewrite a pointer cell a trampoline loads through).

// DirectLinkPatch is the opaque codecache.LinkSite payload for a direct
// link: the branch instruction rewritten to jump straight at the
// target, and the offset of the shared "exit to dispatcher" stub to
// restore on delink.
type DirectLinkPatch struct {
	Buffer       *codebuffer.Buffer
	BranchOffset int
	FallbackStub int
}

// LinkDirect rewrites the branch at site.BranchOffset to jump straight
// to targetOffset — an already-compiled block in the same buffer,
// reachable within the unconditional-branch range (spec.md §4.3
// "Direct linker": callers must only choose this form when the offset
// fits; this package does not fall back to indirect linking itself) —
// and registers a delinker that restores the branch to
// site.FallbackStub if targetGuestRIP is ever erased.
func LinkDirect(cache *codecache.Cache, targetGuestRIP uint64, site DirectLinkPatch, targetOffset int) {
	relinkBranch(site.Buffer, site.BranchOffset, targetOffset)

	cache.AddBlockLink(targetGuestRIP, uintptr(site.BranchOffset), site, func(ls codecache.LinkSite) {
		p := ls.Patch.(DirectLinkPatch)
		relinkBranch(p.Buffer, p.BranchOffset, p.FallbackStub)
	})
}

// relinkBranch re-encodes the unconditional branch at `from` to target
// `to`, both offsets within buf's usable region.
func relinkBranch(buf *codebuffer.Buffer, from, to int) {
	asm := arm64.NewBuffer(buf.Usable())
	asm.Restore(from)
	asm.B(to)
}

// IndirectLinkPatch is the opaque payload for an indirect link: a
// pointer cell a trampoline loads and branches through, rewritten to
// the new target host address rather than rewriting code bytes
// (spec.md §4.3 "Indirect linker": used when the target isn't known to
// be directly reachable, e.g. a cross-buffer link or a forward
// reference to a block not yet compiled).
type IndirectLinkPatch struct {
	Buffer             *codebuffer.Buffer
	PointerOffset      int
	DispatcherFallback uint64
}

// EmitIndirectTrampoline emits an 8-byte pointer cell (initialized to
// dispatcherFallback) immediately followed by a load-and-branch
// sequence that reads it and jumps through it, and returns the cell's
// buffer offset for later use with LinkIndirect.
func EmitIndirectTrampoline(asm *arm64.Buffer, dispatcherFallback uint64) int {
	cellOffset := asm.Cursor()
	asm.EmitU64(dispatcherFallback)

	asm.ADR(scratch1.R(), cellOffset)
	asm.LDR(arm64.Size64, scratch1.R(), scratch1.R(), 0)
	asm.BR(scratch1.R())
	return cellOffset
}

// LinkIndirect rewrites site's pointer cell to targetHostAddr and
// registers a delinker that restores it to site.DispatcherFallback if
// targetGuestRIP is ever erased.
func LinkIndirect(cache *codecache.Cache, targetGuestRIP uint64, site IndirectLinkPatch, targetHostAddr uint64) {
	binary.LittleEndian.PutUint64(site.Buffer.Usable()[site.PointerOffset:], targetHostAddr)

	cache.AddBlockLink(targetGuestRIP, uintptr(site.PointerOffset), site, func(ls codecache.LinkSite) {
		p := ls.Patch.(IndirectLinkPatch)
		binary.LittleEndian.PutUint64(p.Buffer.Usable()[p.PointerOffset:], p.DispatcherFallback)
	})
}
