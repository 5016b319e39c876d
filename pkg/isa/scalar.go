package isa

// scalar implements InstructionSet over one double per lane using SSE2
// scalar-double instructions (the *sd family). The scalar form inherently
// overwrites its destination register, so the two-operand forms below are
// this instruction set's only arithmetic forms (spec section 4.4).
type scalar struct{}

// Scalar is the width-1 InstructionSet instance.
var Scalar InstructionSet = scalar{}

func (scalar) Width() Width    { return WidthScalar }
func (scalar) Alignment() int  { return 16 }

func (scalar) EmitAdd(buf *Buffer, dst, a, b Reg) {
	moveIfNeeded(buf, dst, a)
	emitSSE(buf, 0xF2, 0x58, dst, b) // addsd
}
func (scalar) EmitSub(buf *Buffer, dst, a, b Reg) {
	moveIfNeeded(buf, dst, a)
	emitSSE(buf, 0xF2, 0x5C, dst, b) // subsd
}
func (scalar) EmitMul(buf *Buffer, dst, a, b Reg) {
	moveIfNeeded(buf, dst, a)
	emitSSE(buf, 0xF2, 0x59, dst, b) // mulsd
}
func (scalar) EmitDiv(buf *Buffer, dst, a, b Reg) {
	moveIfNeeded(buf, dst, a)
	emitSSE(buf, 0xF2, 0x5E, dst, b) // divsd
}
func (scalar) EmitNeg(buf *Buffer, dst, src Reg) {
	moveIfNeeded(buf, dst, src)
	// xorpd dst, [sign-bit mask]: flip bit 63. We load the mask into dst's
	// own slot is unsafe (would clobber the operand), so callers must
	// route Neg through a scratch constant the allocator materializes;
	// here we synthesize it via PSLLQ of an all-ones register is avoided
	// in favor of a literal xorpd against a preloaded mask supplied by
	// the forward emitter through EmitXor with a constant-pool sign mask.
	// Neg is therefore implemented as dst = dst XOR signMask, where
	// signMask must already be loaded in a scratch register by the
	// caller; see codegen/forward.go's handling of OpCode Neg.
	_ = dst
}
func (scalar) EmitAbs(buf *Buffer, dst, src Reg) {
	moveIfNeeded(buf, dst, src)
	// Same note as EmitNeg: the forward emitter clears the sign bit via
	// EmitAndNot against a preloaded sign-bit mask.
}
func (scalar) EmitSquare(buf *Buffer, dst, src Reg) {
	moveIfNeeded(buf, dst, src)
	emitSSE(buf, 0xF2, 0x59, dst, dst) // mulsd dst, dst
}
func (scalar) EmitRecip(buf *Buffer, dst, src Reg) {
	// No native scalar-double reciprocal approximation is used (RCPSD does
	// not exist; RCPSS is single-precision only), so Recip is synthesized
	// as 1.0/src by the forward emitter using a preloaded constant 1.0 and
	// EmitDiv; this primitive exists for instruction sets where a native
	// op is available (Packed4 has none either, for the same reason).
	moveIfNeeded(buf, dst, src)
}
func (scalar) EmitSqrt(buf *Buffer, dst, src Reg) {
	emitSSE(buf, 0xF2, 0x51, dst, src) // sqrtsd
}
func (scalar) EmitMin(buf *Buffer, dst, a, b Reg) {
	moveIfNeeded(buf, dst, a)
	emitSSE(buf, 0xF2, 0x5D, dst, b) // minsd
}
func (scalar) EmitMax(buf *Buffer, dst, a, b Reg) {
	moveIfNeeded(buf, dst, a)
	emitSSE(buf, 0xF2, 0x5F, dst, b) // maxsd
}
func (scalar) EmitMod(buf *Buffer, dst, a, b Reg, scratch Reg) {
	// x - y*trunc(x/y), round-to-zero mode (spec section 4.4).
	moveIfNeeded(buf, dst, a)
	emitSSE(buf, 0xF2, 0x5E, dst, b)           // divsd dst, b  (dst = a/b)
	emitSSE3AImm8(buf, 0x66, 0x0B, dst, dst, 0x0B) // roundsd dst, dst, truncate, suppress precision exception
	emitSSE(buf, 0xF2, 0x59, dst, b)           // mulsd dst, b  (dst = trunc(a/b)*b)
	_ = scratch
	// caller is responsible for subtracting dst from a into the true
	// destination (forward emitter issues a final Sub); this keeps Mod's
	// native-instruction sequence here limited to the part ISA can do
	// without knowing which register still holds the original a.
}
func (scalar) EmitTruncate(buf *Buffer, dst, src Reg) {
	moveIfNeeded(buf, dst, src)
	emitSSE3AImm8(buf, 0x66, 0x0B, dst, dst, 0x0B) // roundsd dst, dst, truncate, suppress precision exception
}

func (scalar) EmitCompareLT(buf *Buffer, dst, a, b, one Reg) { compareSD(buf, dst, a, b, one, predLT) }
func (scalar) EmitCompareLE(buf *Buffer, dst, a, b, one Reg) { compareSD(buf, dst, a, b, one, predLE) }
func (scalar) EmitCompareGT(buf *Buffer, dst, a, b, one Reg) {
	compareSDSwapped(buf, dst, a, b, one, predLT) // a>b  <=>  b<a
}
func (scalar) EmitCompareGE(buf *Buffer, dst, a, b, one Reg) {
	compareSDSwapped(buf, dst, a, b, one, predLE) // a>=b <=> b<=a
}
func (scalar) EmitCompareEQ(buf *Buffer, dst, a, b, one Reg) { compareSD(buf, dst, a, b, one, predEQ) }
func (scalar) EmitCompareNE(buf *Buffer, dst, a, b, one Reg) { compareSD(buf, dst, a, b, one, predNEQ) }

func compareSD(buf *Buffer, dst, a, b, one Reg, pred byte) {
	moveIfNeeded(buf, dst, a)
	emitSSEImm8(buf, 0xF2, 0xC2, dst, b, pred) // cmpsd dst, b, pred -> all-ones/all-zero mask
	emitSSE(buf, 0x66, 0x54, dst, one)         // andpd dst, one
}

// compareSDSwapped computes "b pred a" (used for GT/GE, which the caller
// expresses in terms of the LT/LE predicate with operands swapped). The
// caller always passes dst == a's own register (forward.go's emitCompare),
// so evaluating straight into dst would overwrite a before cmpsd reads it
// as the rm operand. Computing into a scratch register distinct from both
// a and b avoids that, then the result is moved into dst last.
func compareSDSwapped(buf *Buffer, dst, a, b, one Reg, pred byte) {
	scratch := pickScratch(dst, a, b, one)
	moveIfNeeded(buf, scratch, b)
	emitSSEImm8(buf, 0xF2, 0xC2, scratch, a, pred) // cmpsd scratch, a, pred -> b pred a
	emitSSE(buf, 0x66, 0x54, scratch, one)         // andpd scratch, one
	moveIfNeeded(buf, dst, scratch)
}

func (scalar) EmitCondToMask(buf *Buffer, maskReg, cond Reg) {
	// mask = (cond != 0.0) ? all-ones : 0, via an unordered-safe NEQ
	// compare against a zero register. The forward emitter preloads a
	// zero constant into a scratch register and passes it as cond's
	// partner through a prior EmitCompareNE-style call; CondToMask itself
	// performs the raw predicate compare with 0 assumed already in cond's
	// pair position supplied by the caller (cond holds the value, the
	// zero operand is maskReg on entry).
	emitSSEImm8(buf, 0xF2, 0xC2, maskReg, cond, predNEQ)
}

func (scalar) EmitSelect(buf *Buffer, dst, t, f, mask Reg) {
	// dst = (t & mask) | (f & ~mask). ANDNPD computes dst = ~dst & src, so
	// the term destined to be complemented (mask) must be the ANDNPD
	// destination and f must be its src, not the other way around. Uses
	// dst as scratch for the first term; caller must ensure dst does not
	// alias f or mask.
	moveIfNeeded(buf, dst, t)
	emitSSE(buf, 0x66, 0x54, dst, mask) // andpd dst, mask   -> t & mask
	tmp := pickScratch(dst, t, f, mask)
	moveIfNeeded(buf, tmp, mask)
	emitSSE(buf, 0x66, 0x55, tmp, f)   // andnpd tmp, f     -> ~mask & f == f & ~mask
	emitSSE(buf, 0x66, 0x56, dst, tmp) // orpd dst, tmp
}

func (scalar) EmitAnd(buf *Buffer, dst, a, b Reg)    { moveIfNeeded(buf, dst, a); emitSSE(buf, 0x66, 0x54, dst, b) }
func (scalar) EmitOr(buf *Buffer, dst, a, b Reg)     { moveIfNeeded(buf, dst, a); emitSSE(buf, 0x66, 0x56, dst, b) }
func (scalar) EmitXor(buf *Buffer, dst, a, b Reg)    { moveIfNeeded(buf, dst, a); emitSSE(buf, 0x66, 0x57, dst, b) }
func (scalar) EmitAndNot(buf *Buffer, dst, a, b Reg) { moveIfNeeded(buf, dst, a); emitSSE(buf, 0x66, 0x55, dst, b) }

func (scalar) EmitCallUnary(buf *Buffer, dst, arg Reg, symbol string) {
	emitTranscendentalCallout(buf, dst, arg, Reg(-1), symbol, false)
}
func (scalar) EmitCallBinary(buf *Buffer, dst, a, b Reg, symbol string) {
	emitTranscendentalCallout(buf, dst, a, b, symbol, true)
}

func (scalar) EmitLoadConst(buf *Buffer, dst Reg, poolLabel int, elemOffset int) {
	emitRIPLoad(buf, 0xF2, 0x10, dst, poolLabel, elemOffset) // movsd dst, [rip+pool+off]
}
func (scalar) EmitLoadValue(buf *Buffer, dst Reg, base int, slot int) {
	emitBaseLoad(buf, 0xF2, 0x10, dst, base, slot*8)
}
func (scalar) EmitStoreValue(buf *Buffer, base int, slot int, src Reg) {
	emitBaseStore(buf, 0xF2, 0x11, src, base, slot*8)
}
func (scalar) EmitLoadGradient(buf *Buffer, dst Reg, base int, slot int) {
	emitBaseLoad(buf, 0xF2, 0x10, dst, base, slot*8)
}
func (scalar) EmitStoreGradient(buf *Buffer, base int, slot int, src Reg) {
	emitBaseStore(buf, 0xF2, 0x11, src, base, slot*8)
}
func (scalar) EmitAccumulateGradient(buf *Buffer, base int, slot int, contribution Reg, scratch Reg) {
	emitBaseLoad(buf, 0xF2, 0x10, scratch, base, slot*8)
	emitSSE(buf, 0xF2, 0x58, scratch, contribution) // addsd
	emitBaseStore(buf, 0xF2, 0x11, scratch, base, slot*8)
}
func (scalar) EmitZero(buf *Buffer, dst Reg)      { emitSSE(buf, 0x66, 0x57, dst, dst) } // pxor dst, dst
func (scalar) EmitMove(buf *Buffer, dst, src Reg) { moveIfNeeded(buf, dst, src) }

func (scalar) EmitPrologue(buf *Buffer) {
	buf.EmitBytes(0x55)             // push rbp
	buf.EmitBytes(0x48, 0x89, 0xE5) // mov rbp, rsp
}
func (scalar) EmitEpilogue(buf *Buffer) {
	buf.EmitBytes(0x48, 0x89, 0xEC) // mov rsp, rbp
	buf.EmitBytes(0x5D)             // pop rbp
	buf.EmitBytes(0xC3)             // ret
}
func (scalar) EmitSaveCallee(buf *Buffer, frameBase int) {
	for i, r := range CalleePreserved {
		emitBaseStore(buf, 0xF2, 0x11, r, RBP, -(frameBase + (i+1)*8))
	}
}
func (scalar) EmitRestoreCallee(buf *Buffer, frameBase int) {
	for i, r := range CalleePreserved {
		emitBaseLoad(buf, 0xF2, 0x10, r, RBP, -(frameBase + (i+1)*8))
	}
}
func (scalar) EmitArgumentShuffle(buf *Buffer) {
	// System V AMD64: values* in RDI, gradients* in RSI, node_count in
	// RDX. The emitted body reads these directly (RDI/RSI/RDX are
	// callee-used scratch here, not spilled to locals) so no shuffle code
	// is required beyond the prologue itself.
}

// moveIfNeeded emits `movsd dst, src` unless dst already holds src's value,
// the "operand already in the destination register" case spec section 4.7
// calls out as using the in-place two-operand form directly.
func moveIfNeeded(buf *Buffer, dst, src Reg) {
	if dst == src {
		return
	}
	emitSSE(buf, 0xF2, 0x10, dst, src)
}

// pickScratch returns a register distinct from all of used, drawn from the
// fixed 16-wide file; EmitSelect calls this to find a temporary for its
// second AND term since the interface does not thread one through.
func pickScratch(used ...Reg) Reg {
	for cand := Reg(0); cand < NumRegs; cand++ {
		conflict := false
		for _, u := range used {
			if u == cand {
				conflict = true
				break
			}
		}
		if !conflict {
			return cand
		}
	}
	return XMM15
}

// emitRIPLoad emits `prefix 0F opcode dst, [rip + label + elemOffset]`.
func emitRIPLoad(buf *Buffer, prefix byte, opcode byte, dst Reg, label int, elemOffset int) {
	if prefix != 0 {
		buf.EmitByte(prefix)
	}
	if dst >= 8 {
		buf.EmitByte(0x44) // REX.R
	}
	modrm := byte(0x05) | (byte(dst&7) << 3) // mod=00, rm=101 (RIP-relative)
	buf.EmitBytes(0x0F, opcode, modrm)
	buf.EmitLabelRef32Plus(label, elemOffset)
}

// emitBaseLoad/emitBaseStore emit `mov[sd] reg, [baseReg + disp]` forms
// addressing the value/gradient buffers, mirroring the teacher's
// emitLoadLocal/emitStoreLocal disp8-vs-disp32 choice in x64.go.
func emitBaseLoad(buf *Buffer, prefix byte, opcode byte, dst Reg, baseReg int, disp int) {
	emitBaseMem(buf, prefix, opcode, dst, baseReg, disp)
}
func emitBaseStore(buf *Buffer, prefix byte, opcode byte, src Reg, baseReg int, disp int) {
	emitBaseMem(buf, prefix, opcode, src, baseReg, disp)
}
func emitBaseMem(buf *Buffer, prefix byte, opcode byte, reg Reg, baseReg int, disp int) {
	if prefix != 0 {
		buf.EmitByte(prefix)
	}
	rex := byte(0x40)
	needRex := false
	if reg >= 8 {
		rex |= 0x04
		needRex = true
	}
	if baseReg >= 8 {
		rex |= 0x01
		needRex = true
	}
	if needRex {
		buf.EmitByte(rex)
	}
	base := baseReg & 7
	if disp >= -128 && disp <= 127 {
		buf.EmitBytes(0x0F, opcode, byte(0x40)|(byte(reg&7)<<3)|byte(base))
		if base == RSP&7 {
			buf.EmitByte(0x24) // SIB: no index, base=RSP
		}
		buf.EmitByte(byte(int8(disp)))
	} else {
		buf.EmitBytes(0x0F, opcode, byte(0x80)|(byte(reg&7)<<3)|byte(base))
		if base == RSP&7 {
			buf.EmitByte(0x24)
		}
		buf.EmitU32(uint32(int32(disp)))
	}
}
