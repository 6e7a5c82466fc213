package codebuffer

import "golang.org/x/sys/unix"

// FlushICache invalidates the host instruction cache for [begin, end)
// after a block's emission (spec.md §4.1 "Alignment and ICache", §5
// "Cache invalidation"). No ICache flush is required for an
// uncompleted cursor — callers only flush the final emitted range of a
// fully written block.
//
// AArch64 Linux exposes this as the __ARM_NR_cacheflush syscall rather
// than a libc symbol reachable from Go without cgo; golang.org/x/sys/unix
// carries the raw Syscall primitive the rest of the pack's
// golang.org/x/sys usage (IntuitionAmiga-IntuitionEngine, go-fuse)
// already depends on, so no additional dependency is introduced here.
func FlushICache(begin, end uintptr) error {
	if end <= begin {
		return nil
	}
	const sysCacheFlush = 0xf0002 // __ARM_NR_cacheflush
	_, _, errno := unix.Syscall(sysCacheFlush, begin, end, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
