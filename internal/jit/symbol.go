package jit

import (
	"fmt"
	"sort"
	"sync"
)

// Symbol names one compiled block's host address range, for profilers
// and crash reporters that want a human string rather than a raw
// guest/host address pair. This folds back a feature original_source/
// carries (a debug "JIT symbol" naming facility) that spec.md's
// distillation dropped; it costs nothing on the hot path because the
// driver only records one if a non-nil SymbolTable is supplied.
type Symbol struct {
	Name       string
	HostBegin  uintptr
	HostEnd    uintptr
	GuestEntry uint64
}

// SymbolTable maps host address ranges to Symbol records. It is a
// plain mutex-guarded sorted slice rather than an interval tree: blocks
// are appended in roughly increasing host-address order as they're
// compiled (successive buffer rolls only move forward), so a binary
// search over an occasionally-resorted slice is the teacher's style of
// "simplest structure that fits the access pattern" rather than a
// general-purpose augmented tree.
type SymbolTable struct {
	mu      sync.Mutex
	symbols []Symbol
	sorted  bool
}

// NewSymbolTable constructs an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{}
}

// Add records a compiled block's host range under name. Called by the
// driver immediately after a successful CompileBlock when the caller
// supplied a non-nil table.
func (s *SymbolTable) Add(sym Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = append(s.symbols, sym)
	s.sorted = false
}

// Remove drops every symbol whose GuestEntry matches guestRIP, called
// on cache erase so a profiler sampling after invalidation doesn't
// attribute new code at a reused host address to a stale name.
func (s *SymbolTable) Remove(guestRIP uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.symbols[:0]
	for _, sym := range s.symbols {
		if sym.GuestEntry != guestRIP {
			kept = append(kept, sym)
		}
	}
	s.symbols = kept
}

// Lookup finds the symbol whose host range contains addr, or reports
// ok=false if addr falls in no recorded block (e.g. dispatcher/runtime
// code outside any JIT buffer).
func (s *SymbolTable) Lookup(addr uintptr) (Symbol, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sorted {
		sort.Slice(s.symbols, func(i, j int) bool { return s.symbols[i].HostBegin < s.symbols[j].HostBegin })
		s.sorted = true
	}
	i := sort.Search(len(s.symbols), func(i int) bool { return s.symbols[i].HostBegin > addr })
	if i == 0 {
		return Symbol{}, false
	}
	sym := s.symbols[i-1]
	if addr >= sym.HostBegin && addr < sym.HostEnd {
		return sym, true
	}
	return Symbol{}, false
}

// NameFor formats a default symbol name for a compiled block; it is the
// name Compiler.CompileOrWait records when a SymbolTable is attached.
func NameFor(guestEntry uint64) string {
	return fmt.Sprintf("jit_%#x", guestEntry)
}
