package isa

// Width distinguishes the two concrete instruction-set instances: one
// double per lane (Scalar) or four doubles per lane (Packed4).
type Width int

const (
	WidthScalar Width = 1
	WidthPacked Width = 4
)

// InstructionSet is the capability interface every per-opcode emitter
// routes through (spec section 9: "a trait/interface with two
// implementations; no inheritance depth beyond one"). Every method appends
// bytes to buf; none allocate or retain state across calls beyond what buf
// itself carries.
type InstructionSet interface {
	Width() Width
	// Alignment is the required byte alignment of the value/gradient
	// buffers and the embedded constant pool for this instruction set.
	Alignment() int

	// Arithmetic. Two-operand forms overwrite dst; three-operand forms
	// (only available when dst, a, and b are all distinct) are used by the
	// forward emitter when the tightest valid form allows it (spec
	// section 4.7).
	EmitAdd(buf *Buffer, dst, a, b Reg)
	EmitSub(buf *Buffer, dst, a, b Reg)
	EmitMul(buf *Buffer, dst, a, b Reg)
	EmitDiv(buf *Buffer, dst, a, b Reg)
	EmitNeg(buf *Buffer, dst, src Reg)
	EmitAbs(buf *Buffer, dst, src Reg)
	EmitSquare(buf *Buffer, dst, src Reg)
	EmitRecip(buf *Buffer, dst, src Reg)
	EmitSqrt(buf *Buffer, dst, src Reg)
	EmitMin(buf *Buffer, dst, a, b Reg)
	EmitMax(buf *Buffer, dst, a, b Reg)
	EmitMod(buf *Buffer, dst, a, b Reg, scratch Reg)

	// EmitTruncate rounds src to an integral value toward zero (spec
	// section 4.4: "rounding"), used by the integer sub-alphabet's
	// truncate-before-and-after-arithmetic semantics.
	EmitTruncate(buf *Buffer, dst, src Reg)

	// Comparisons emit the ordered compare (producing an all-ones/all-zero
	// mask) and AND it with one, a register the caller has preloaded with
	// the bit pattern of 1.0, to produce a canonical {0.0,1.0} real (spec
	// section 4.4).
	EmitCompareLT(buf *Buffer, dst, a, b, one Reg)
	EmitCompareLE(buf *Buffer, dst, a, b, one Reg)
	EmitCompareGT(buf *Buffer, dst, a, b, one Reg)
	EmitCompareGE(buf *Buffer, dst, a, b, one Reg)
	EmitCompareEQ(buf *Buffer, dst, a, b, one Reg)
	EmitCompareNE(buf *Buffer, dst, a, b, one Reg)

	// EmitCondToMask normalizes cond != 0 into an all-ones/all-zeros mask
	// in maskReg; EmitSelect then computes dst = (t & mask) | (f & ~mask), the If
	// opcode's implementation (spec section 4.4).
	EmitCondToMask(buf *Buffer, maskReg, cond Reg)
	EmitSelect(buf *Buffer, dst, t, f, mask Reg)

	// Bitwise mask construction/combination, shared by comparisons,
	// If, and boolean ops.
	EmitAnd(buf *Buffer, dst, a, b Reg)
	EmitOr(buf *Buffer, dst, a, b Reg)
	EmitXor(buf *Buffer, dst, a, b Reg)
	EmitAndNot(buf *Buffer, dst, a, b Reg) // dst = ~a & b

	// Transcendentals are emitted as a call to the platform math library.
	// Scalar implementations call directly; Packed4 processes each lane
	// via a scalar callout and reassembles the destination lane-by-lane
	// (spec section 4.4).
	EmitCallUnary(buf *Buffer, dst, arg Reg, symbol string)
	EmitCallBinary(buf *Buffer, dst, a, b Reg, symbol string)

	// Constant pool / value-buffer / gradient-buffer access.
	EmitLoadConst(buf *Buffer, dst Reg, poolLabel int, elemOffset int)
	EmitLoadValue(buf *Buffer, dst Reg, base int, slot int)
	EmitStoreValue(buf *Buffer, base int, slot int, src Reg)
	EmitLoadGradient(buf *Buffer, dst Reg, base int, slot int)
	EmitStoreGradient(buf *Buffer, base int, slot int, src Reg)
	EmitAccumulateGradient(buf *Buffer, base int, slot int, contribution Reg, scratch Reg)
	EmitZero(buf *Buffer, dst Reg)
	EmitMove(buf *Buffer, dst, src Reg)

	// ABI glue.
	EmitPrologue(buf *Buffer)
	EmitEpilogue(buf *Buffer)
	EmitSaveCallee(buf *Buffer, frameBase int)
	EmitRestoreCallee(buf *Buffer, frameBase int)
	EmitArgumentShuffle(buf *Buffer) // values*, gradients*, node_count into base regs
}
