package constpool

import (
	"encoding/binary"
	"math"
	"testing"

	"dagjit.dev/dagjit/pkg/isa"
)

func TestInternDedups(t *testing.T) {
	p := New(isa.Scalar)
	a := p.Intern(1.5)
	b := p.Intern(1.5)
	if a != b {
		t.Fatalf("expected same slot for identical constant, got %d and %d", a, b)
	}
	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", p.Len())
	}
}

func TestInternDistinguishesDistinctValues(t *testing.T) {
	p := New(isa.Scalar)
	p.Intern(1.0)
	p.Intern(2.0)
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
}

func TestSizeAlignment(t *testing.T) {
	p := New(isa.Packed4)
	p.Intern(1.0)
	if p.Size()%32 != 0 {
		t.Fatalf("Size() = %d, want multiple of 32", p.Size())
	}
}

func TestBytesRoundTrip(t *testing.T) {
	p := New(isa.Scalar)
	idx := p.Intern(3.25)
	buf := p.Bytes()
	off := p.ElemOffset(idx)
	got := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	if got != 3.25 {
		t.Fatalf("round-tripped value = %v, want 3.25", got)
	}
}

func TestInternBitsMask(t *testing.T) {
	p := New(isa.Scalar)
	idx := p.InternBits(SignBitMask)
	buf := p.Bytes()
	off := p.ElemOffset(idx)
	if binary.LittleEndian.Uint64(buf[off:off+8]) != SignBitMask {
		t.Fatalf("sign-bit mask not stored bit-exactly")
	}
}
