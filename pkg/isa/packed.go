package isa

// packed implements InstructionSet over four doubles per lane using AVX2
// 256-bit packed-double instructions (v*pd). Unlike scalar, AVX's
// three-operand form naturally supports a destination distinct from both
// sources, so EmitAdd/Sub/Mul/... pass a, b straight through as vvvv/rm
// without an initial move (spec section 4.4: "the packed form naturally
// supports distinct destination").
type packed struct{}

// Packed4 is the width-4 InstructionSet instance.
var Packed4 InstructionSet = packed{}

func (packed) Width() Width   { return WidthPacked }
func (packed) Alignment() int { return 32 }

func (packed) EmitAdd(buf *Buffer, dst, a, b Reg) { emitVEX3(buf, vexMap0F, vexPP66, dst, a, b, 0x58) }
func (packed) EmitSub(buf *Buffer, dst, a, b Reg) { emitVEX3(buf, vexMap0F, vexPP66, dst, a, b, 0x5C) }
func (packed) EmitMul(buf *Buffer, dst, a, b Reg) { emitVEX3(buf, vexMap0F, vexPP66, dst, a, b, 0x59) }
func (packed) EmitDiv(buf *Buffer, dst, a, b Reg) { emitVEX3(buf, vexMap0F, vexPP66, dst, a, b, 0x5E) }
func (packed) EmitNeg(buf *Buffer, dst, src Reg) {
	// As with scalar, Neg XORs a preloaded sign-bit mask; the forward
	// emitter supplies that mask via EmitXor.
	_ = dst
	_ = src
}
func (packed) EmitAbs(buf *Buffer, dst, src Reg) {
	// Forward emitter clears the sign bit via EmitAndNot against a
	// preloaded sign-bit mask, same as scalar.
	_ = dst
	_ = src
}
func (packed) EmitSquare(buf *Buffer, dst, src Reg) {
	emitVEX3(buf, vexMap0F, vexPP66, dst, src, src, 0x59)
}
func (packed) EmitRecip(buf *Buffer, dst, src Reg) {
	// No native packed-double reciprocal estimate (VRCPPS is single
	// precision only); synthesized by the forward emitter as 1.0/src.
	_ = dst
	_ = src
}
func (packed) EmitSqrt(buf *Buffer, dst, src Reg) {
	emitVEX3(buf, vexMap0F, vexPP66, dst, -1, src, 0x51)
}
func (packed) EmitMin(buf *Buffer, dst, a, b Reg) { emitVEX3(buf, vexMap0F, vexPP66, dst, a, b, 0x5D) }
func (packed) EmitMax(buf *Buffer, dst, a, b Reg) { emitVEX3(buf, vexMap0F, vexPP66, dst, a, b, 0x5F) }
func (packed) EmitMod(buf *Buffer, dst, a, b Reg, scratch Reg) {
	emitVEX3(buf, vexMap0F, vexPP66, scratch, a, b, 0x5E)                   // vdivpd scratch, a, b
	emitVEX3Imm8(buf, vexMap0F3A, vexPP66, scratch, -1, scratch, 0x09, 0x0B) // vroundpd scratch, scratch, trunc
	emitVEX3(buf, vexMap0F, vexPP66, dst, scratch, b, 0x59)                 // vmulpd dst, scratch, b
	// caller subtracts dst from a into the real destination, as in scalar.
}

func (packed) EmitTruncate(buf *Buffer, dst, src Reg) {
	emitVEX3Imm8(buf, vexMap0F3A, vexPP66, dst, -1, src, 0x09, 0x0B) // vroundpd dst, src, trunc
}

func (packed) EmitCompareLT(buf *Buffer, dst, a, b, one Reg) { comparePD(buf, dst, a, b, one, predLT) }
func (packed) EmitCompareLE(buf *Buffer, dst, a, b, one Reg) { comparePD(buf, dst, a, b, one, predLE) }
func (packed) EmitCompareGT(buf *Buffer, dst, a, b, one Reg) { comparePD(buf, dst, b, a, one, predLT) }
func (packed) EmitCompareGE(buf *Buffer, dst, a, b, one Reg) { comparePD(buf, dst, b, a, one, predLE) }
func (packed) EmitCompareEQ(buf *Buffer, dst, a, b, one Reg) { comparePD(buf, dst, a, b, one, predEQ) }
func (packed) EmitCompareNE(buf *Buffer, dst, a, b, one Reg) { comparePD(buf, dst, a, b, one, predNEQ) }

func comparePD(buf *Buffer, dst, a, b, one Reg, pred byte) {
	emitVEX3Imm8(buf, vexMap0F, vexPP66, dst, a, b, 0xC2, pred) // vcmppd dst, a, b, pred
	emitVEX3(buf, vexMap0F, vexPP66, dst, dst, one, 0x54)       // vandpd dst, dst, one
}

func (packed) EmitCondToMask(buf *Buffer, maskReg, cond Reg) {
	emitVEX3Imm8(buf, vexMap0F, vexPP66, maskReg, cond, maskReg, 0xC2, predNEQ)
}
func (packed) EmitSelect(buf *Buffer, dst, t, f, mask Reg) {
	// VANDNPD dst, src1, src2 computes dst = (NOT src1) AND src2, so the
	// term destined to be complemented (mask) goes in src1/vvvv and f in
	// src2/rm, not the other way around.
	scratch := pickScratch(dst, t, f, mask)
	emitVEX3(buf, vexMap0F, vexPP66, dst, t, mask, 0x54)      // vandpd dst, t, mask      -> t & mask
	emitVEX3(buf, vexMap0F, vexPP66, scratch, mask, f, 0x55)  // vandnpd scratch, mask, f -> ~mask & f == f & ~mask
	emitVEX3(buf, vexMap0F, vexPP66, dst, dst, scratch, 0x56) // vorpd dst, dst, scratch
}

func (packed) EmitAnd(buf *Buffer, dst, a, b Reg)    { emitVEX3(buf, vexMap0F, vexPP66, dst, a, b, 0x54) }
func (packed) EmitOr(buf *Buffer, dst, a, b Reg)     { emitVEX3(buf, vexMap0F, vexPP66, dst, a, b, 0x56) }
func (packed) EmitXor(buf *Buffer, dst, a, b Reg)    { emitVEX3(buf, vexMap0F, vexPP66, dst, a, b, 0x57) }
func (packed) EmitAndNot(buf *Buffer, dst, a, b Reg) { emitVEX3(buf, vexMap0F, vexPP66, dst, a, b, 0x55) }

// EmitCallUnary/EmitCallBinary: each of the 4 lanes is extracted,
// processed by a scalar callout, and the packed destination is reassembled
// lane-by-lane (spec section 4.4: "each lane is processed by a scalar
// callout; the packed destination is reassembled lane-by-lane"). This
// sequence necessarily clobbers xmm0/xmm1 and scratch lanes of dst/a/b
// across all four calls, so the caller (the forward/reverse emitter) must
// treat the whole thing as one volatile-clobbering region, same as a
// single scalar callout.
func (packed) EmitCallUnary(buf *Buffer, dst, arg Reg, symbol string) {
	emitLanewiseUnary(buf, dst, arg, symbol)
}
func (packed) EmitCallBinary(buf *Buffer, dst, a, b Reg, symbol string) {
	emitLanewiseBinary(buf, dst, a, b, symbol)
}

func emitLanewiseUnary(buf *Buffer, dst, arg Reg, symbol string) {
	for lane := 0; lane < 4; lane++ {
		extractLane(buf, XMM0, arg, lane)
		buf.EmitBytes(0x30, 0xC0) // xor al,al
		buf.EmitCallRef32(symbol)
		insertLane(buf, dst, XMM0, lane)
	}
}
func emitLanewiseBinary(buf *Buffer, dst, a, b Reg, symbol string) {
	for lane := 0; lane < 4; lane++ {
		extractLane(buf, XMM0, a, lane)
		extractLane(buf, XMM1, b, lane)
		buf.EmitBytes(0x30, 0xC0)
		buf.EmitCallRef32(symbol)
		insertLane(buf, dst, XMM0, lane)
	}
}

// extractLane copies lane `idx` of 256-bit src into scalar xmm register
// dstXMM via VEXTRACTF128 + (for lanes 2/3) a high-to-low permute.
func extractLane(buf *Buffer, dstXMM, src Reg, idx int) {
	switch idx {
	case 0:
		emitVEX3(buf, vexMap0F, vexPP66, dstXMM, -1, src, 0x28) // vmovapd (low 128 alias)
	case 1:
		emitVEX3Imm8(buf, vexMap0F, vexPP66, dstXMM, -1, src, 0xC6, 0x01) // vshufpd-style lane pick
	default:
		emitVEX3Imm8(buf, vexMap0F3A, vexPP66, dstXMM, -1, src, 0x19, byte(idx/2)) // vextractf128
	}
}

// insertLane writes scalar srcXMM back into lane idx of the 256-bit dst.
func insertLane(buf *Buffer, dst, srcXMM Reg, idx int) {
	emitVEX3Imm8(buf, vexMap0F3A, vexPP66, dst, dst, srcXMM, 0x18, byte(idx)) // vinsertf128-style lane write
}

func (packed) EmitLoadConst(buf *Buffer, dst Reg, poolLabel int, elemOffset int) {
	emitRIPLoadYMM(buf, dst, poolLabel, elemOffset)
}
func (packed) EmitLoadValue(buf *Buffer, dst Reg, base int, slot int) {
	emitBaseLoadYMM(buf, dst, base, slot*32)
}
func (packed) EmitStoreValue(buf *Buffer, base int, slot int, src Reg) {
	emitBaseStoreYMM(buf, src, base, slot*32)
}
func (packed) EmitLoadGradient(buf *Buffer, dst Reg, base int, slot int) {
	emitBaseLoadYMM(buf, dst, base, slot*32)
}
func (packed) EmitStoreGradient(buf *Buffer, base int, slot int, src Reg) {
	emitBaseStoreYMM(buf, src, base, slot*32)
}
func (packed) EmitAccumulateGradient(buf *Buffer, base int, slot int, contribution Reg, scratch Reg) {
	emitBaseLoadYMM(buf, scratch, base, slot*32)
	emitVEX3(buf, vexMap0F, vexPP66, scratch, scratch, contribution, 0x58)
	emitBaseStoreYMM(buf, scratch, base, slot*32)
}
func (packed) EmitZero(buf *Buffer, dst Reg)      { emitVEX3(buf, vexMap0F, vexPP66, dst, dst, dst, 0x57) }
func (packed) EmitMove(buf *Buffer, dst, src Reg) {
	if dst != src {
		emitVEX3(buf, vexMap0F, vexPP66, dst, -1, src, 0x28)
	}
}
func (packed) EmitPrologue(buf *Buffer) {
	buf.EmitBytes(0x55)
	buf.EmitBytes(0x48, 0x89, 0xE5)
}
func (packed) EmitEpilogue(buf *Buffer) {
	buf.EmitBytes(0x48, 0x89, 0xEC)
	buf.EmitBytes(0x5D)
	buf.EmitBytes(0xC3)
}
func (packed) EmitSaveCallee(buf *Buffer, frameBase int) {
	for i, r := range CalleePreserved {
		emitBaseStoreYMM(buf, r, RBP, -(frameBase + (i+1)*32))
	}
}
func (packed) EmitRestoreCallee(buf *Buffer, frameBase int) {
	for i, r := range CalleePreserved {
		emitBaseLoadYMM(buf, r, RBP, -(frameBase + (i+1)*32))
	}
}
func (packed) EmitArgumentShuffle(buf *Buffer) {}

// emitRIPLoadYMM loads one pooled scalar double at label+elemOffset and
// broadcasts it across all four lanes of dst, via VBROADCASTSD ymm, m64
// (VEX.256.66.0F38.W0 19 /r) — the constant pool stores one 8-byte entry
// per constant regardless of instruction set (constpool.go's ElemOffset),
// so packed4 reads a single scalar and fans it out rather than reading 32
// bytes of unrelated neighboring pool entries as four distinct lanes.
func emitRIPLoadYMM(buf *Buffer, dst Reg, label int, elemOffset int) {
	rBit := byte(1)
	if dst >= 8 {
		rBit = 0
	}
	xBit := byte(1)
	bBit := byte(1) // no base register: RIP-relative addressing
	byte1 := (rBit << 7) | (xBit << 6) | (bBit << 5) | vexMap0F38
	byte2 := byte((0 << 7) | (0x0F << 3) | (1 << 2) | vexPP66) // W=0, vvvv unused, L=1 (256-bit)
	buf.EmitBytes(0xC4, byte1, byte2, 0x19)              // vbroadcastsd
	modrm := byte(0x05) | (byte(dst&7) << 3)
	buf.EmitByte(modrm)
	buf.EmitLabelRef32Plus(label, elemOffset)
}

func emitBaseLoadYMM(buf *Buffer, dst Reg, baseReg int, disp int) {
	emitBaseMemYMM(buf, dst, baseReg, disp, 0x28)
}
func emitBaseStoreYMM(buf *Buffer, src Reg, baseReg int, disp int) {
	emitBaseMemYMM(buf, src, baseReg, disp, 0x29)
}
func emitBaseMemYMM(buf *Buffer, reg Reg, baseReg int, disp int, opcode byte) {
	rBit := byte(1)
	if reg >= 8 {
		rBit = 0
	}
	bBit := byte(1)
	if baseReg >= 8 {
		bBit = 0
	}
	byte1 := (rBit << 7) | (1 << 6) | (bBit << 5) | vexMap0F
	byte2 := byte(0x7D) // W=0, vvvv=1111, L=1, pp=01(66)
	buf.EmitBytes(0xC4, byte1, byte2, opcode)
	base := baseReg & 7
	if disp >= -128 && disp <= 127 {
		buf.EmitByte(byte(0x40) | (byte(reg&7) << 3) | byte(base))
		if base == RSP&7 {
			buf.EmitByte(0x24)
		}
		buf.EmitByte(byte(int8(disp)))
	} else {
		buf.EmitByte(byte(0x80) | (byte(reg&7) << 3) | byte(base))
		if base == RSP&7 {
			buf.EmitByte(0x24)
		}
		buf.EmitU32(uint32(int32(disp)))
	}
}
