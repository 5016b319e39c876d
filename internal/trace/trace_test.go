package trace

import (
	"reflect"
	"testing"
)

func TestDisabledRingIsNoop(t *testing.T) {
	r := New(0)
	r.Add(Record{NodeID: 1, Offset: 4})
	if r.Enabled() {
		t.Fatalf("capacity 0 ring should be disabled")
	}
	if got := r.Records(); got != nil {
		t.Fatalf("Records() = %v, want nil", got)
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	r := New(3)
	for i := uint32(0); i < 5; i++ {
		r.Add(Record{NodeID: i, Offset: int(i)})
	}
	want := []Record{{NodeID: 2, Offset: 2}, {NodeID: 3, Offset: 3}, {NodeID: 4, Offset: 4}}
	if got := r.Records(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Records() = %v, want %v", got, want)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
}

func TestRingPartiallyFilled(t *testing.T) {
	r := New(5)
	r.Add(Record{NodeID: 1})
	r.Add(Record{NodeID: 2})
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	want := []Record{{NodeID: 1}, {NodeID: 2}}
	if got := r.Records(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Records() = %v, want %v", got, want)
	}
}
