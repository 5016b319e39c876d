// Package constpool collects the constant values a compiled kernel needs
// into a single deduplicated, aligned byte region emitted after the
// function body, with RIP-relative label resolution for loads (spec
// section 4.6).
package constpool

import (
	"encoding/binary"
	"math"

	"dagjit.dev/dagjit/pkg/isa"
)

// Entry describes one pooled constant: its bit pattern and the byte offset
// at which it will be written once the pool is laid out.
type Entry struct {
	Bits   uint64
	Offset int
}

// Pool accumulates constant values during emission and produces the final
// byte image once every constant has been registered. Values are
// deduplicated bit-exactly, matching the dedup the graph's own constant
// interning already performs (pkg/graph.internConstant) — this is a
// second, independent dedup pass because the optimizer's algebraic
// rewrites can introduce fresh constants (e.g. Pow(x,0)->1) that never
// went through graph.AddConstant.
type Pool struct {
	alignment int
	order     []uint64
	index     map[uint64]int // bits -> index into order
}

// New creates an empty pool aligned to iset's required alignment (spec
// section 4.6: "aligned (>= 16 bytes, 32 bytes preferred)").
func New(iset isa.InstructionSet) *Pool {
	align := iset.Alignment()
	if align < 16 {
		align = 16
	}
	return &Pool{alignment: align, index: make(map[uint64]int)}
}

// Intern registers a real-valued constant and returns its slot index
// within the pool, reusing an existing slot if the bit pattern already
// appears.
func (p *Pool) Intern(value float64) int {
	return p.internBits(math.Float64bits(value))
}

// InternBits registers a raw 64-bit pattern (used for non-double payloads
// such as the sign-bit mask the forward emitter's Neg and Abs sequences
// use).
func (p *Pool) InternBits(bits uint64) int {
	return p.internBits(bits)
}

func (p *Pool) internBits(bits uint64) int {
	if idx, ok := p.index[bits]; ok {
		return idx
	}
	idx := len(p.order)
	p.order = append(p.order, bits)
	p.index[bits] = idx
	return idx
}

// Len reports how many distinct constants are pooled.
func (p *Pool) Len() int { return len(p.order) }

// ElemOffset returns the byte offset of slot idx within the pool image,
// each entry occupying 8 bytes (the pool always stores full double-width
// values regardless of instruction-set width; Packed4 broadcasts a single
// scalar entry into all four lanes at load time via vbroadcastsd rather
// than pooling four copies).
func (p *Pool) ElemOffset(idx int) int { return idx * 8 }

// Size returns the pool's total byte size after alignment padding.
func (p *Pool) Size() int {
	raw := len(p.order) * 8
	return align(raw, p.alignment)
}

// Bytes renders the pool's image: little-endian 8-byte entries in
// insertion order, zero-padded to Size().
func (p *Pool) Bytes() []byte {
	out := make([]byte, p.Size())
	for i, bits := range p.order {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], bits)
	}
	return out
}

// Entries exposes the pool contents for diagnostics/debug printing.
func (p *Pool) Entries() []Entry {
	out := make([]Entry, len(p.order))
	for i, bits := range p.order {
		out[i] = Entry{Bits: bits, Offset: p.ElemOffset(i)}
	}
	return out
}

func align(n, a int) int {
	if a <= 0 {
		return n
	}
	rem := n % a
	if rem == 0 {
		return n
	}
	return n + (a - rem)
}

// Well-known bit patterns the forward/reverse emitter needs for Neg/Abs,
// pooled once per compilation rather than recomputed per node (spec
// section 4.4: "construction of the sign-bit mask via all-ones-then-shift").
const (
	SignBitMask    = uint64(0x8000000000000000)
	AbsMask        = uint64(0x7FFFFFFFFFFFFFFF)
	OneBits        = uint64(0x3FF0000000000000) // 1.0
	ZeroBits       = uint64(0)
)
