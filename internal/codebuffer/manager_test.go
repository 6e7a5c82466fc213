package codebuffer

import "testing"

func TestManagerAllocatesInitialBufferOnFirstCall(t *testing.T) {
	m := NewManager(0)
	buf, err := m.GetEmptyCodeBuffer()
	if err != nil {
		t.Fatalf("GetEmptyCodeBuffer: %v", err)
	}
	if buf.Size() != DefaultInitialSize-GuardPageSize {
		t.Fatalf("initial buffer size = %d, want %d", buf.Size(), DefaultInitialSize-GuardPageSize)
	}
	if m.Latest() != buf {
		t.Fatal("Latest() must return the just-allocated buffer")
	}
}

func TestManagerRollDoublesSizeUpToMax(t *testing.T) {
	m := NewManager(DefaultInitialSize * 3)
	first, err := m.GetEmptyCodeBuffer()
	if err != nil {
		t.Fatalf("GetEmptyCodeBuffer: %v", err)
	}
	second, err := m.Roll()
	if err != nil {
		t.Fatalf("Roll: %v", err)
	}
	// Sizes double as whole allocations (usable region plus guard page).
	if second.Size()+GuardPageSize != (first.Size()+GuardPageSize)*2 {
		t.Fatalf("rolled buffer size = %d, want %d", second.Size(), (first.Size()+GuardPageSize)*2-GuardPageSize)
	}
	// First buffer had no signal frames registered, so it must have
	// been freed immediately rather than retained.
	if m.RetainedCount() != 0 {
		t.Fatalf("RetainedCount = %d, want 0 (no signal frame in flight)", m.RetainedCount())
	}
}

func TestManagerRetainsBufferWithActiveSignalFrame(t *testing.T) {
	m := NewManager(DefaultInitialSize * 3)
	first, err := m.GetEmptyCodeBuffer()
	if err != nil {
		t.Fatalf("GetEmptyCodeBuffer: %v", err)
	}
	m.RegisterSignalFrame(first)

	if _, err := m.Roll(); err != nil {
		t.Fatalf("Roll: %v", err)
	}
	if m.RetainedCount() != 1 {
		t.Fatalf("RetainedCount = %d, want 1 while a signal frame is active", m.RetainedCount())
	}

	if err := m.ReleaseSignalFrame(first); err != nil {
		t.Fatalf("ReleaseSignalFrame: %v", err)
	}
	if m.RetainedCount() != 0 {
		t.Fatalf("RetainedCount = %d, want 0 after the signal frame returns", m.RetainedCount())
	}
}
