// Package isa is the instruction-set abstraction: a polymorphic capability
// set over {scalar width 1, packed width 4} exposing, for every real opcode,
// an emit primitive, plus mask/blend/shift/rounding helpers, constant-pool
// and value-buffer load/store, gradient accumulation, and ABI prologue and
// epilogue glue. Two concrete instances implement InstructionSet: Scalar
// and Packed4.
//
// The low-level byte-emission idiom (a growing []byte code buffer, a
// fixup/label table, and little-endian word writers) is adapted from the
// teacher's CodeGen in backend.go and x64.go.
package isa

import "fmt"

// CallFixup records a call-site that needs the platform math library's
// runtime address patched in once the executable image is finalized.
type CallFixup struct {
	CodeOffset int    // offset of the rel32 operand
	Symbol     string // e.g. "exp", "log", "pow"
}

// LabelFixup records a RIP-relative rel32 operand that needs patching once
// the target label's final offset is known (used for constant-pool loads).
// Addend is added to the label's bound offset before computing the
// displacement, so a single pool label can address any byte within the
// pool (each constant's ElemOffset) rather than only its first entry.
type LabelFixup struct {
	CodeOffset int
	Label      int
	Addend     int
}

// Buffer is the growing byte sink for one compiled function: the code
// stream, its call/label fixups, and a small label table. It carries no
// opcode-specific knowledge; InstructionSet implementations write into it.
type Buffer struct {
	Code []byte

	CallFixups  []CallFixup
	LabelFixups []LabelFixup

	labelOffsets map[int]int
	nextLabel    int
}

// NewBuffer returns an empty code buffer.
func NewBuffer() *Buffer {
	return &Buffer{labelOffsets: make(map[int]int)}
}

// Pos returns the current end of the code stream.
func (b *Buffer) Pos() int { return len(b.Code) }

// NewLabel allocates a fresh label id, not yet bound to a position.
func (b *Buffer) NewLabel() int {
	id := b.nextLabel
	b.nextLabel++
	return id
}

// BindLabel records that label now refers to the current code position.
func (b *Buffer) BindLabel(label int) {
	b.labelOffsets[label] = len(b.Code)
}

// LabelOffset returns the bound position of label, or false if unbound.
func (b *Buffer) LabelOffset(label int) (int, bool) {
	off, ok := b.labelOffsets[label]
	return off, ok
}

func (b *Buffer) EmitByte(v byte) { b.Code = append(b.Code, v) }

func (b *Buffer) EmitBytes(vs ...byte) { b.Code = append(b.Code, vs...) }

func (b *Buffer) EmitU32(v uint32) {
	b.Code = append(b.Code, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (b *Buffer) EmitU64(v uint64) {
	b.Code = append(b.Code, byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// EmitLabelRef32 emits a 4-byte placeholder for a RIP-relative displacement
// to label, recording a fixup resolved once the label is bound.
func (b *Buffer) EmitLabelRef32(label int) {
	b.EmitLabelRef32Plus(label, 0)
}

// EmitLabelRef32Plus is EmitLabelRef32 with an addend folded into the final
// displacement, for referencing a byte offset within a label's region (e.g.
// one entry of the constant pool).
func (b *Buffer) EmitLabelRef32Plus(label int, addend int) {
	b.LabelFixups = append(b.LabelFixups, LabelFixup{CodeOffset: len(b.Code), Label: label, Addend: addend})
	b.EmitU32(0)
}

// EmitCallRef32 emits a `call rel32` placeholder to an external symbol
// (the platform math library), resolved at image-finalization time.
func (b *Buffer) EmitCallRef32(symbol string) {
	b.EmitByte(0xe8)
	b.CallFixups = append(b.CallFixups, CallFixup{CodeOffset: len(b.Code), Symbol: symbol})
	b.EmitU32(0)
}

// patchRel32At overwrites the rel32 at fixupOff so that, once this
// instruction executes at fixupOff+4, the RIP-relative target is targetOff.
func (b *Buffer) patchRel32At(fixupOff, targetOff int) {
	rel := int32(targetOff - (fixupOff + 4))
	b.Code[fixupOff] = byte(rel)
	b.Code[fixupOff+1] = byte(rel >> 8)
	b.Code[fixupOff+2] = byte(rel >> 16)
	b.Code[fixupOff+3] = byte(rel >> 24)
}

// ResolveLabels patches every LabelFixup against the bound label table.
// Must run after the whole function body (and the trailing constant pool,
// whose position is recorded via BindLabel) has been emitted.
func (b *Buffer) ResolveLabels() error {
	for _, fix := range b.LabelFixups {
		off, ok := b.labelOffsets[fix.Label]
		if !ok {
			return fmt.Errorf("isa: unbound label %d referenced at code offset %d", fix.Label, fix.CodeOffset)
		}
		b.patchRel32At(fix.CodeOffset, off+fix.Addend)
	}
	return nil
}

// ResolveCalls patches every CallFixup against a symbol->address resolver
// supplied by the engine. Call targets (the platform math library's entry
// points) are absolute process addresses, unlike labels, which stay within
// this buffer's own coordinate space — so baseAddr, the address the code
// buffer will be mapped at once finalized, is needed to convert the
// buffer-relative fixup offset into the same absolute space as target
// before computing the rel32 displacement.
func (b *Buffer) ResolveCalls(baseAddr int, resolve func(symbol string) (int, error)) error {
	for _, fix := range b.CallFixups {
		target, err := resolve(fix.Symbol)
		if err != nil {
			return err
		}
		b.patchRel32At(fix.CodeOffset, target-baseAddr)
	}
	return nil
}
