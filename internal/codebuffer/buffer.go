// Package codebuffer owns RWX executable-memory regions for JIT output
// and the buffer-roll/retention lifecycle that keeps a signal handler's
// in-flight frame valid after a newer buffer becomes current, grounded
// on original_source/FEXCore/Source/Interface/Core/CPUBackend.cpp
// (CodeBuffer, CodeBufferManager, RegisterForSignalHandler).
package codebuffer

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/FEX-Emu/FEX-sub016/internal/codecache"
)

const (
	// GuardPageSize is the trailing read-only page of every code
	// buffer (spec.md §3, §6.4): writes past the last usable byte must
	// fault.
	GuardPageSize = 4096

	// DefaultInitialSize and DefaultMaxSize match spec.md §4.5's
	// defaults: 16 MiB initial, 128 MiB max (chosen so intra-buffer
	// branches fit the 26-bit B-range).
	DefaultInitialSize = 16 << 20
	DefaultMaxSize      = 128 << 20
)

// state is the buffer lifecycle state machine from spec.md §4.5.
type state int32

const (
	stateWritable state = iota
	stateSealed
	stateFreed
)

// Buffer is one RWX code-buffer allocation plus its scoped lookup
// cache (spec.md §3 "Code buffer": "Each buffer also owns a
// LookupCache"). Reference-counted so a buffer outlives its "current"
// status while any thread's signal frame PC is inside it.
type Buffer struct {
	mem   []byte // full mapping, including the guard page
	usable int   // len(mem) - GuardPageSize

	cache *codecache.Cache

	refs  int32
	state int32
}

// New allocates size bytes RWX with a trailing guard page made
// non-writable, and an empty lookup cache scoped to this buffer
// (spec.md §3 Code buffer invariants).
func New(size int) (*Buffer, error) {
	if size <= GuardPageSize {
		return nil, fmt.Errorf("codebuffer: size %d must exceed the guard page", size)
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("codebuffer: mmap %d bytes: %w", size, err)
	}
	usable := size - GuardPageSize
	guard := mem[usable:]
	if err := unix.Mprotect(guard, unix.PROT_READ); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("codebuffer: mprotect guard page: %w", err)
	}
	return &Buffer{
		mem:    mem,
		usable: usable,
		cache:  codecache.New(codecache.DefaultConfig),
		refs:   1,
		state:  int32(stateWritable),
	}, nil
}

// Usable returns the writable/executable region, excluding the guard
// page.
func (b *Buffer) Usable() []byte { return b.mem[:b.usable] }

// Size is the usable size in bytes (excludes the guard page).
func (b *Buffer) Size() int { return b.usable }

// Cache is this buffer's scoped lookup cache.
func (b *Buffer) Cache() *codecache.Cache { return b.cache }

// AddRef increments the buffer's reference count; used when a signal
// frame is observed with PC inside this buffer (spec.md §5 "Signal-
// handler retention").
func (b *Buffer) AddRef() { atomic.AddInt32(&b.refs, 1) }

// Release drops a reference, freeing the mapping when it reaches zero
// and the buffer is sealed (spec.md §4.5 state machine: Sealed ->
// Freed "refcount reaches zero"). Reports whether this call actually
// freed the mapping.
func (b *Buffer) Release() (freed bool, err error) {
	if atomic.AddInt32(&b.refs, -1) != 0 {
		return false, nil
	}
	if atomic.LoadInt32(&b.state) != int32(stateSealed) {
		// Still writable with zero refs is a caller bug: Seal() must
		// run before the last reference is dropped.
		panic("codebuffer: buffer freed while still writable")
	}
	atomic.StoreInt32(&b.state, int32(stateFreed))
	return true, unix.Munmap(b.mem)
}

// RefCount reports the current reference count, for diagnostics.
func (b *Buffer) RefCount() int32 { return atomic.LoadInt32(&b.refs) }

// Seal transitions Writable -> Sealed: no further emission into this
// buffer, though already-emitted code may still execute (spec.md §4.5).
func (b *Buffer) Seal() {
	atomic.CompareAndSwapInt32(&b.state, int32(stateWritable), int32(stateSealed))
}

// Sealed reports whether Seal has been called.
func (b *Buffer) Sealed() bool {
	return atomic.LoadInt32(&b.state) != int32(stateWritable)
}

// AddressOf returns the host address of a byte offset within this
// buffer's usable region, used to turn a compiled block's offset into
// the absolute pointer recorded in the lookup cache and in block-link
// sites (spec.md §4.2, §4.3).
func (b *Buffer) AddressOf(offset int) uintptr {
	return uintptr(unsafe.Pointer(&b.mem[offset]))
}

// Contains reports whether a host address falls within this buffer's
// usable region, used by the dispatcher's signal-frame PC check
// (original_source CPUBackend.cpp IsAddressInCodeBuffer).
func (b *Buffer) Contains(addr uintptr) bool {
	base := uintptr(unsafe.Pointer(&b.mem[0]))
	return addr >= base && addr < base+uintptr(b.usable)
}
