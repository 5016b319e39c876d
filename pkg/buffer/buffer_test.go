package buffer

import (
	"reflect"
	"testing"
	"unsafe"

	"dagjit.dev/dagjit/pkg/graph"
	"dagjit.dev/dagjit/pkg/isa"
)

func TestScalarValueRoundTrip(t *testing.T) {
	vb := New(isa.Scalar, 4, nil, false)
	vb.SetValue(graph.NodeID(2), 3.5)
	got := vb.Value(graph.NodeID(2))
	if len(got) != 1 || got[0] != 3.5 {
		t.Fatalf("Value(2) = %v, want [3.5]", got)
	}
}

func TestPackedValueRoundTrip(t *testing.T) {
	vb := New(isa.Packed4, 2, nil, true)
	vb.SetValue(graph.NodeID(1), 1, 2, 3, 4)
	want := []float64{1, 2, 3, 4}
	if got := vb.Value(graph.NodeID(1)); !reflect.DeepEqual(got, want) {
		t.Fatalf("Value(1) = %v, want %v", got, want)
	}
}

func TestRemapResolvesOriginalIDs(t *testing.T) {
	remap := graph.NewRemap(3)
	remap.Set(graph.NodeID(0), graph.NodeID(0))
	remap.Set(graph.NodeID(2), graph.NodeID(1)) // node 1 was eliminated
	vb := New(isa.Scalar, 2, remap, false)
	vb.SetValue(graph.NodeID(2), 9.0)
	if got := vb.Value(graph.NodeID(2)); got[0] != 9.0 {
		t.Fatalf("Value via remap = %v, want [9]", got)
	}
}

func TestAlignment(t *testing.T) {
	vb := New(isa.Packed4, 8, nil, false)
	addr := uintptr(unsafe.Pointer(&vb.values[0]))
	if addr%32 != 0 {
		t.Errorf("packed value buffer base address %#x not 32-byte aligned", addr)
	}
}

func TestGradientsPtrNullWhenAbsent(t *testing.T) {
	vb := New(isa.Scalar, 2, nil, false)
	if vb.GradientsPtr() != 0 {
		t.Errorf("expected null gradients pointer, got %#x", vb.GradientsPtr())
	}
}
