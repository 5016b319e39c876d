package isa

// Shared x86-64 SSE2/AVX encoding helpers. The REX-prefix and ModRM
// construction follow the same shape as the teacher's integer-register
// emitters in x64.go, generalized from general-purpose registers to the
// xmm/ymm register file.

// modRM builds a register-direct ModRM byte (mod=11) selecting reg as the
// instruction's /r field and rm as the second operand.
func modRM(reg, rm Reg) byte {
	return 0xC0 | (byte(reg&7) << 3) | byte(rm&7)
}

// rexForRegs returns the REX prefix needed when either operand selects one
// of xmm8-15, or 0 if no REX byte is required. w requests REX.W (64-bit
// operand size, used only for GPR/xmm interconversion instructions).
func rexForRegs(reg, rm Reg, w bool) byte {
	rex := byte(0x40)
	if w {
		rex |= 0x08
	}
	if reg >= 8 {
		rex |= 0x04 // REX.R
	}
	if rm >= 8 {
		rex |= 0x01 // REX.B
	}
	if rex == 0x40 {
		return 0
	}
	return rex
}

// emitSSE emits a mandatory-prefix two-byte-opcode SSE instruction of the
// form `prefix 0F opcode /r` operating on two xmm registers, dst as the
// /r reg field and src as rm.
func emitSSE(buf *Buffer, prefix byte, opcode byte, dst, src Reg) {
	if prefix != 0 {
		buf.EmitByte(prefix)
	}
	if rex := rexForRegs(dst, src, false); rex != 0 {
		buf.EmitByte(rex)
	}
	buf.EmitBytes(0x0F, opcode, modRM(dst, src))
}

// emitSSEImm8 emits a mandatory-prefix SSE instruction with a trailing
// imm8 predicate byte (used by CMPSD/CMPPD).
func emitSSEImm8(buf *Buffer, prefix byte, opcode byte, dst, src Reg, imm8 byte) {
	emitSSE(buf, prefix, opcode, dst, src)
	buf.EmitByte(imm8)
}

// emitSSE3AImm8 emits a mandatory-prefix three-byte-opcode (0F 3A map) SSE
// instruction with a trailing imm8, the form ROUNDSD/ROUNDPD use
// (`prefix 0F 3A opcode /r ib`) — distinct from emitSSE's two-byte-opcode
// (bare 0F map) form, whose map byte alone collides with UD2 (0F 0B) for
// ROUNDSD's opcode byte 0x0B.
func emitSSE3AImm8(buf *Buffer, prefix byte, opcode byte, dst, src Reg, imm8 byte) {
	if prefix != 0 {
		buf.EmitByte(prefix)
	}
	if rex := rexForRegs(dst, src, false); rex != 0 {
		buf.EmitByte(rex)
	}
	buf.EmitBytes(0x0F, 0x3A, opcode, modRM(dst, src), imm8)
}

// emitGPRToXMM emits `prefix REX.W 0F opcode /r` moving between a
// general-purpose register (rm) and an xmm register (reg), used by the
// truncate-to-integer and convert-from-integer primitives the integer
// sub-alphabet needs.
func emitGPRToXMM(buf *Buffer, prefix byte, opcode byte, xmmReg Reg, gpr int, w bool) {
	if prefix != 0 {
		buf.EmitByte(prefix)
	}
	if rex := rexForRegs(xmmReg, Reg(gpr), w); rex != 0 {
		buf.EmitByte(rex)
	} else if w {
		buf.EmitByte(0x48)
	}
	buf.EmitBytes(0x0F, opcode, modRM(xmmReg, Reg(gpr)))
}

// CMPSD/CMPPD predicate immediates (spec section 4.4: "ordered compare").
const (
	predEQ  = 0x00
	predLT  = 0x01
	predLE  = 0x02
	predNEQ = 0x04
	predNLT = 0x05 // >=
	predNLE = 0x06 // >
)
