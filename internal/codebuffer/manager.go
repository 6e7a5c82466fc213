package codebuffer

import (
	"fmt"
	"sync"
)

// Manager holds the "latest" code buffer shared across a thread's
// compiles and the side list of sealed-but-still-referenced buffers
// from signal-frame retention (spec.md §4.5 "Buffer lifecycle").
type Manager struct {
	mu       sync.Mutex
	latest   *Buffer
	maxSize  int
	retained []*Buffer
}

// NewManager constructs an empty manager; the first call to
// GetEmptyCodeBuffer allocates the initial buffer.
func NewManager(maxSize int) *Manager {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Manager{maxSize: maxSize}
}

// GetEmptyCodeBuffer returns the current buffer to compile into,
// allocating the initial one on first call and rolling to a new,
// larger buffer whenever the caller has decided the current one is
// full (spec.md §4.5 "get_empty_code_buffer()"). The just-replaced
// buffer is kept alive (retained) if any thread still holds a
// reference into it (signal-handler in flight); otherwise it is freed
// immediately.
func (m *Manager) GetEmptyCodeBuffer() (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.latest == nil {
		buf, err := New(DefaultInitialSize)
		if err != nil {
			return nil, err
		}
		m.latest = buf
		return buf, nil
	}
	return m.rollLocked()
}

// Roll forces a new buffer even if the current one isn't literally
// "empty" yet — the JIT driver's conservative margin check calls this
// when too little room remains (spec.md §7 "Buffer margin exceeded").
func (m *Manager) Roll() (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollLocked()
}

func (m *Manager) rollLocked() (*Buffer, error) {
	prev := m.latest
	newSize := m.maxSize
	if prev != nil {
		newSize = (prev.Size() + GuardPageSize) * 2
		if newSize > m.maxSize {
			newSize = m.maxSize
		}
	}
	buf, err := New(newSize)
	if err != nil {
		return nil, fmt.Errorf("codebuffer: roll to new buffer: %w", err)
	}
	m.latest = buf

	if prev != nil {
		prev.Seal()
		// Drop the manager's own reference (acquired at New()). If
		// other references remain (a signal frame registered via
		// RegisterSignalFrame), the buffer survives in m.retained
		// until ReleaseSignalFrame drops the last one.
		if freed, relErr := prev.Release(); !freed && relErr == nil {
			m.retained = append(m.retained, prev)
		} else if relErr != nil {
			return buf, fmt.Errorf("codebuffer: free previous buffer: %w", relErr)
		}
	}
	return buf, nil
}

// RegisterSignalFrame must be called by the dispatcher when a signal is
// taken with PC inside buf, before any chance that buf stops being
// "latest" (spec.md §5 "Signal-handler interaction"). It adds a
// reference so a concurrent Roll won't free buf out from under the
// handler.
func (m *Manager) RegisterSignalFrame(buf *Buffer) {
	buf.AddRef()
}

// ReleaseSignalFrame must be called when the signal handler returns.
// Once a retained buffer's refcount drops to zero its memory is freed
// and it is dropped from the side list (spec.md §4.5 "Sealed ->
// Freed").
func (m *Manager) ReleaseSignalFrame(buf *Buffer) error {
	freed, err := buf.Release()
	if err != nil {
		return err
	}
	if !freed {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.retained[:0]
	for _, b := range m.retained {
		if b != buf {
			kept = append(kept, b)
		}
	}
	m.retained = kept
	return nil
}

// Latest returns the manager's current buffer without allocating.
func (m *Manager) Latest() *Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// RetainedCount reports how many sealed buffers are still alive purely
// because of in-flight signal frames, for diagnostics.
func (m *Manager) RetainedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.retained)
}
