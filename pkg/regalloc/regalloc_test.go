package regalloc

import (
	"testing"

	"dagjit.dev/dagjit/pkg/graph"
)

func TestAllocatePrefersEmptySlot(t *testing.T) {
	f := New(4)
	f.Set(1, graph.NodeID(5), false)
	idx, err := f.Allocate(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx == 1 {
		t.Fatalf("allocate picked the occupied slot")
	}
}

func TestAllocateEvictsLRU(t *testing.T) {
	f := New(2)
	f.Set(0, graph.NodeID(1), false)
	f.Set(1, graph.NodeID(2), false)
	idx, err := f.Allocate(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected LRU slot 0 to be evicted, got %d", idx)
	}
}

func TestAllocateSkipsLockedAndBlacklisted(t *testing.T) {
	f := New(3)
	f.Lock(0)
	f.Blacklist(1)
	idx, err := f.Allocate(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx != 2 {
		t.Fatalf("expected only eligible slot 2, got %d", idx)
	}
}

func TestAllocateNoEligibleSlot(t *testing.T) {
	f := New(1)
	f.Lock(0)
	if _, err := f.Allocate(nil); err == nil {
		t.Fatalf("expected ErrNoSlot")
	}
}

func TestFind(t *testing.T) {
	f := New(2)
	f.Set(1, graph.NodeID(7), true)
	idx, ok := f.Find(graph.NodeID(7))
	if !ok || idx != 1 {
		t.Fatalf("Find(7) = (%d, %v), want (1, true)", idx, ok)
	}
	if _, ok := f.Find(graph.NodeID(8)); ok {
		t.Fatalf("Find(8) unexpectedly found")
	}
}

func TestInvalidateVolatileClearsRangeOnly(t *testing.T) {
	f := New(4)
	f.Set(0, graph.NodeID(1), true)
	f.Set(1, graph.NodeID(2), true)
	f.Set(2, graph.NodeID(3), true)
	f.InvalidateVolatile(0, 1)
	if _, ok := f.GetNode(0); ok {
		t.Fatalf("slot 0 should be empty after invalidation")
	}
	if _, ok := f.GetNode(1); ok {
		t.Fatalf("slot 1 should be empty after invalidation")
	}
	if n, ok := f.GetNode(2); !ok || n != graph.NodeID(3) {
		t.Fatalf("slot 2 should survive invalidation, got (%d, %v)", n, ok)
	}
}

func TestDirtyTracking(t *testing.T) {
	f := New(1)
	f.Set(0, graph.NodeID(4), true)
	if !f.IsDirty(0) {
		t.Fatalf("expected slot dirty after Set(..., dirty=true)")
	}
	f.MarkClean(0)
	if f.IsDirty(0) {
		t.Fatalf("expected slot clean after MarkClean")
	}
}
