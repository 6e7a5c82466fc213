package jit

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/FEX-Emu/FEX-sub016/internal/arm64"
	"github.com/FEX-Emu/FEX-sub016/internal/codebuffer"
	"github.com/FEX-Emu/FEX-sub016/internal/codecache"
	"github.com/FEX-Emu/FEX-sub016/internal/cpustate"
	"github.com/FEX-Emu/FEX-sub016/internal/ir"
)

// Logger receives a line for every fatal condition this package detects
// (spec.md §7: "the fatal-error path logs the condition and aborts the
// process") before the error is returned to the caller to act on.
// Defaults to stderr; swap it to route into the embedding runtime's own
// diagnostics.
var Logger = log.New(os.Stderr, "jit: ", log.LstdFlags)

// MarginBytes is the conservative per-block space reservation checked
// before compiling (spec.md §4.5 step 1 "buffer margin check"): the
// largest block this driver will ever emit without re-checking
// mid-compile. Exceeding it mid-block is a driver bug, not a runtime
// condition, so nothing past this check re-verifies remaining space.
const MarginBytes = 32 << 10

// StateReg is the host GPR permanently pinned to the running thread's
// cpustate.Frame (spec.md §6.2 "every generated block reaches the frame
// through a fixed register"). X28 is chosen as a callee-saved register
// AAPCS64 never allocates to ordinary locals, so the fallback ABI's
// host C calls cannot clobber it without knowing to restore it.
var StateReg = arm64.X(28)

// scratch1/scratch2 are caller-saved temporaries the driver and ABI use
// for address materialization; never assigned to an IR result.
var (
	scratch1 = arm64.X(9)
	scratch2 = arm64.X(10)
)

// OpEncoder lowers one IR op into AArch64 using ctx.Asm. Ops with no
// registered encoder fall through to the fallback ABI call path via
// Op.FallbackHandlerID (spec.md §4.4); an op with neither is a fatal
// "unknown IR op" (spec.md §7).
type OpEncoder func(ctx *Context, op ir.Op, ra *ir.RegisterAllocationData)

// Context is threaded through every OpEncoder call for one CompileBlock
// invocation: the emitter, this block list's intra-list branch labels
// (spec.md §6.1 "blocks may branch to each other by index"), and the
// fallback ABI/function table an encoder needs to lower an op it can't
// handle natively.
type Context struct {
	Asm    *arm64.Buffer
	Labels []arm64.BidirectionalLabel
	ABI    *ABI
	Fns    cpustate.FunctionTable
}

// Dispatcher owns the IR-opcode -> native-encoder table. The opcode
// space itself is external (internal/ir package doc); a Dispatcher is
// configured once, at startup, with whatever opcodes the embedding IR
// producer has a native AArch64 lowering for.
type Dispatcher struct {
	encoders map[ir.Opcode]OpEncoder
}

// NewDispatcher constructs an empty dispatcher; call Register for every
// natively-lowered opcode before compiling.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{encoders: make(map[ir.Opcode]OpEncoder)}
}

// Register installs fn as the native lowering for op.
func (d *Dispatcher) Register(op ir.Opcode, fn OpEncoder) {
	d.encoders[op] = fn
}

// Emitter binds an arm64.Buffer cursor to a codebuffer.Manager's
// current allocation, rolling to a fresh codebuffer.Buffer (and
// resetting the AArch64 emission cursor) whenever too little room
// remains for another block (spec.md §4.5 step 1).
type Emitter struct {
	mgr *codebuffer.Manager
	cur *codebuffer.Buffer
	asm *arm64.Buffer
}

// NewEmitter binds to mgr's current buffer, allocating the manager's
// initial buffer if this is the first compile.
func NewEmitter(mgr *codebuffer.Manager) (*Emitter, error) {
	buf, err := mgr.GetEmptyCodeBuffer()
	if err != nil {
		return nil, fmt.Errorf("jit: acquire initial code buffer: %w", err)
	}
	return &Emitter{mgr: mgr, cur: buf, asm: arm64.NewBuffer(buf.Usable())}, nil
}

// reserve rolls to a fresh buffer if fewer than MarginBytes remain.
func (e *Emitter) reserve() error {
	if e.asm.Len()-e.asm.Cursor() >= MarginBytes {
		return nil
	}
	buf, err := e.mgr.Roll()
	if err != nil {
		return fmt.Errorf("jit: roll code buffer: %w", err)
	}
	e.cur = buf
	e.asm = arm64.NewBuffer(buf.Usable())
	return nil
}

// CompiledBlock is the result of one CompileBlock call.
type CompiledBlock struct {
	Buffer      *codebuffer.Buffer
	EntryOffset int
	TailOffset  int
	Size        int
}

// EntryAddress is the host address a dispatcher or block linker
// branches to in order to run this compiled block.
func (c *CompiledBlock) EntryAddress() uintptr {
	return c.Buffer.AddressOf(c.EntryOffset)
}

// sizeFor maps an IR op's result width to the ALU encoding size; widths
// under 64 bits still occupy a 32-bit-form register write (spec.md §3
// "Register" — sub-64-bit results zero-extend in the W-form).
func sizeFor(bits uint16) arm64.Size {
	if bits > 32 {
		return arm64.Size64
	}
	return arm64.Size32
}

// CompileBlock lowers one IR list view into a single contiguous run of
// host code: margin check, header, prologue, per-op dispatch (with
// fall-through and intra-list branch labels), tail + RIP entries, and
// an ICache flush of the emitted range (spec.md §4.5).
func (d *Dispatcher) CompileBlock(e *Emitter, cache *codecache.Cache, view ir.ListView, ra *ir.RegisterAllocationData, fns cpustate.FunctionTable) (*CompiledBlock, error) {
	if err := e.reserve(); err != nil {
		return nil, err
	}
	asm := e.asm
	abi := NewABI(fns)

	entryOffset := asm.Cursor()
	headerOffset := WriteHeader(asm)
	emitPrologue(asm, ra)

	labels := make([]arm64.BidirectionalLabel, len(view.Blocks))
	var entries []RIPEntry
	lastHostOff := entryOffset
	lastGuestRIP := view.EntryGuestRIP

	ctx := &Context{Asm: asm, Labels: labels, ABI: abi, Fns: fns}

	for bi, blk := range view.Blocks {
		// Patch any earlier block's forward reference to bi (Bind is a
		// no-op if none was ever recorded), then record bi's own
		// location for later blocks to branch backward to.
		labels[bi].Forward.Bind(asm, asm.Cursor())
		labels[bi].Backward.Bind(asm.Cursor())

		for oi, op := range blk.Ops {
			if guestRIP, ok := blk.GuestRIPBoundaries[oi]; ok {
				hostOff := asm.Cursor()
				entries = append(entries, RIPEntry{
					HostPCDelta:   int32(hostOff - lastHostOff),
					GuestRIPDelta: int32(int64(guestRIP) - int64(lastGuestRIP)),
				})
				lastHostOff, lastGuestRIP = hostOff, guestRIP
			}

			if err := dispatchOp(d, ctx, op, ra); err != nil {
				return nil, err
			}
		}

		if blk.FallThrough >= 0 && blk.FallThrough != bi+1 {
			// The natural fall-through isn't the next compiled block:
			// emit an explicit jump to its label. Every block index up
			// to and including bi has already had its Backward half
			// bound above, so a target <= bi is a known backward
			// branch and a target > bi must forward-reference a block
			// this loop hasn't reached yet (spec.md §4.1).
			if blk.FallThrough <= bi {
				asm.B(labels[blk.FallThrough].Backward.Location())
			} else {
				asm.BForward(&labels[blk.FallThrough].Forward)
			}
		}
	}

	asm.Align(8)
	tailOffset := WriteTail(asm, view.EntryGuestRIP, entries)
	PatchHeaderTailOffset(asm, headerOffset, tailOffset)

	size := asm.Cursor() - entryOffset
	begin := e.cur.AddressOf(entryOffset)
	end := e.cur.AddressOf(asm.Cursor())
	if err := codebuffer.FlushICache(begin, end); err != nil {
		return nil, fmt.Errorf("jit: flush icache: %w", err)
	}

	cache.AddBlockExecutableRange(view.EntryGuestRIP, uint64(begin), uint64(size))

	return &CompiledBlock{
		Buffer:      e.cur,
		EntryOffset: entryOffset,
		TailOffset:  tailOffset,
		Size:        size,
	}, nil
}

// dispatchOp lowers a single IR op: a registered native encoder first,
// the fallback ABI call if the op carries a handler id, otherwise a
// fatal unknown-op error (spec.md §7).
func dispatchOp(d *Dispatcher, ctx *Context, op ir.Op, ra *ir.RegisterAllocationData) error {
	if enc, ok := d.encoders[op.Opcode]; ok {
		enc(ctx, op, ra)
		return nil
	}
	if op.FallbackHandlerID != 0 {
		ctx.ABI.EmitCall(ctx.Asm, StateReg.R(), op, ra)
		return nil
	}
	Logger.Printf("fatal: unknown IR op %s has no native encoder and no fallback handler", op.Opcode)
	return fmt.Errorf("jit: unknown IR op %s has no native encoder and no fallback handler", op.Opcode)
}

// emitPrologue stores this block's header address into the
// thread-state's InlineJITBlockHeader slot and reserves the spill
// slots the register allocator asked for (spec.md §4.5 step 3).
func emitPrologue(asm *arm64.Buffer, ra *ir.RegisterAllocationData) {
	headerSiteOffset := asm.Cursor() - headerSize // WriteHeader already ran
	asm.ADR(scratch1.R(), headerSiteOffset)
	asm.STR(arm64.Size64, scratch1.R(), StateReg.R(), uint32(cpustate.OffsetInlineJITBlockHeader))

	if n := ra.SpillSlotCount; n > 0 {
		bytes := alignUp16(n * 8)
		asm.SUBImm(arm64.Size64, arm64.SP.R(), arm64.SP.R(), uint32(bytes), false)
	}
}

func alignUp16(n int) int {
	return (n + 15) &^ 15
}

// singleflightKey turns a guest RIP into a Group key; hex avoids a
// decimal-vs-hex ambiguity when cross-referencing cache dumps.
func singleflightKey(guestRIP uint64) string {
	return strconv.FormatUint(guestRIP, 16)
}

// Compiler ties a Dispatcher, lookup cache, and Emitter together with a
// singleflight.Group so concurrent translation requests for the same
// guest RIP collapse into one compile (spec.md §4.5 "concurrent compile
// of the same address must not race"; grounded on golang.org/x/sync's
// use for exactly this class of problem).
type Compiler struct {
	dispatcher *Dispatcher
	cache      *codecache.Cache
	emitter    *Emitter
	group      singleflight.Group
	symbols    *SymbolTable
}

// NewCompiler constructs a Compiler over an already-configured
// Dispatcher, the buffer's lookup cache, and an Emitter bound to that
// buffer's manager.
func NewCompiler(d *Dispatcher, cache *codecache.Cache, e *Emitter) *Compiler {
	return &Compiler{dispatcher: d, cache: cache, emitter: e}
}

// WithSymbols attaches a SymbolTable the compiler records every freshly
// compiled block's host range into, and removes from on cache erase
// (SPEC_FULL.md §3 "JIT symbol" debug-naming facility). Optional: a nil
// table (the default) costs nothing, matching original_source/'s own
// build-flag-gated symbolication.
func (c *Compiler) WithSymbols(t *SymbolTable) *Compiler {
	c.symbols = t
	return c
}

// CompileOrWait returns the host entry address for view's guest RIP,
// compiling it if necessary and collapsing duplicate concurrent
// requests for the same address into a single compile (spec.md §4.5).
func (c *Compiler) CompileOrWait(view ir.ListView, ra *ir.RegisterAllocationData, fns cpustate.FunctionTable) (uintptr, error) {
	if existing := c.cache.Lookup(view.EntryGuestRIP); existing != 0 {
		return uintptr(existing), nil
	}

	v, err, _ := c.group.Do(singleflightKey(view.EntryGuestRIP), func() (interface{}, error) {
		if existing := c.cache.Lookup(view.EntryGuestRIP); existing != 0 {
			return existing, nil
		}
		blk, err := c.dispatcher.CompileBlock(c.emitter, c.cache, view, ra, fns)
		if err != nil {
			return nil, err
		}
		entry := uint64(blk.EntryAddress())
		c.cache.Insert(view.EntryGuestRIP, entry)
		if c.symbols != nil {
			c.symbols.Add(Symbol{
				Name:       NameFor(view.EntryGuestRIP),
				HostBegin:  blk.EntryAddress(),
				HostEnd:    blk.EntryAddress() + uintptr(blk.Size),
				GuestEntry: view.EntryGuestRIP,
			})
		}
		return entry, nil
	})
	if err != nil {
		return 0, err
	}
	return uintptr(v.(uint64)), nil
}

// Invalidate erases guestRIP from the lookup cache (running any
// registered delinkers, spec.md §4.2 "Erase") and drops its symbol, if
// a SymbolTable is attached.
func (c *Compiler) Invalidate(guestRIP uint64) {
	c.cache.Erase(guestRIP)
	if c.symbols != nil {
		c.symbols.Remove(guestRIP)
	}
}
