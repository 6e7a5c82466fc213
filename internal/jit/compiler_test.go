package jit

import (
	"testing"

	"github.com/FEX-Emu/FEX-sub016/internal/arm64"
	"github.com/FEX-Emu/FEX-sub016/internal/codebuffer"
	"github.com/FEX-Emu/FEX-sub016/internal/codecache"
	"github.com/FEX-Emu/FEX-sub016/internal/cpustate"
	"github.com/FEX-Emu/FEX-sub016/internal/ir"
)

const opAdd ir.Opcode = 1

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	mgr := codebuffer.NewManager(0)
	e, err := NewEmitter(mgr)
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}
	d := NewDispatcher()
	d.Register(opAdd, func(ctx *Context, op ir.Op, ra *ir.RegisterAllocationData) {
		dst := arm64.X(ra.PhysicalRegisterOf(op.ResultSSA))
		ctx.Asm.ADD(sizeFor(op.SizeBits), dst.R(), arm64.X(1).R(), arm64.X(2).R())
	})
	cache := codecache.New(codecache.DefaultConfig)
	return NewCompiler(d, cache, e)
}

func simpleView(entryRIP uint64) (ir.ListView, *ir.RegisterAllocationData) {
	view := ir.ListView{
		EntryGuestRIP: entryRIP,
		Blocks: []ir.Block{{
			Ops: []ir.Op{
				{Opcode: opAdd, SizeBits: 64, ResultCls: ir.RegClassGPR, ResultSSA: 0},
			},
			GuestRIPBoundaries: map[int]uint64{0: entryRIP},
			FallThrough:        -1,
		}},
	}
	ra := &ir.RegisterAllocationData{
		PhysicalReg: map[uint32]uint32{0: 0},
		Fixed:       map[uint32]bool{},
	}
	return view, ra
}

// TestCompileOrWaitCachesSecondCall exercises the full compile path:
// first call misses and compiles, second call hits the lookup cache
// and must return the same entry address.
func TestCompileOrWaitCachesSecondCall(t *testing.T) {
	c := newTestCompiler(t)
	view, ra := simpleView(0x401000)

	entry1, err := c.CompileOrWait(view, ra, cpustate.FunctionTable{})
	if err != nil {
		t.Fatalf("CompileOrWait: %v", err)
	}
	if entry1 == 0 {
		t.Fatal("entry address must be non-zero")
	}

	entry2, err := c.CompileOrWait(view, ra, cpustate.FunctionTable{})
	if err != nil {
		t.Fatalf("CompileOrWait (second call): %v", err)
	}
	if entry1 != entry2 {
		t.Fatalf("second CompileOrWait returned a different address: %#x vs %#x", entry1, entry2)
	}
}

// TestCompileOrWaitWithSymbolsTracksAndInvalidates exercises the
// SymbolTable integration: a compiled block is findable by host
// address, and Invalidate removes both the cache entry and the symbol.
func TestCompileOrWaitWithSymbolsTracksAndInvalidates(t *testing.T) {
	c := newTestCompiler(t)
	syms := NewSymbolTable()
	c.WithSymbols(syms)

	view, ra := simpleView(0x402000)
	entry, err := c.CompileOrWait(view, ra, cpustate.FunctionTable{})
	if err != nil {
		t.Fatalf("CompileOrWait: %v", err)
	}

	sym, ok := syms.Lookup(entry)
	if !ok {
		t.Fatal("compiled block's entry address must resolve to a symbol")
	}
	if sym.GuestEntry != 0x402000 {
		t.Fatalf("symbol GuestEntry = %#x, want 0x402000", sym.GuestEntry)
	}
	if want := NameFor(0x402000); sym.Name != want {
		t.Fatalf("symbol Name = %q, want %q", sym.Name, want)
	}

	c.Invalidate(0x402000)

	if _, ok := syms.Lookup(entry); ok {
		t.Fatal("symbol must be gone after Invalidate")
	}
	if got := c.cache.Lookup(0x402000); got != 0 {
		t.Fatalf("cache lookup after Invalidate = %#x, want miss", got)
	}
}
