package isa

// Minimal 3-byte VEX prefix encoder for the 256-bit packed-double (ymm)
// instructions Packed4 needs. Always emits the 3-byte form (C4) rather
// than the shorter 2-byte form (C5) for uniformity across registers 0-15,
// trading a byte of code size for one code path.
const (
	vexMap0F   = 0x01
	vexMap0F38 = 0x02
	vexMap0F3A = 0x03

	vexPPNone = 0x00
	vexPP66   = 0x01
	vexPPF3   = 0x02
	vexPPF2   = 0x03
)

// emitVEX3 emits the VEX prefix and opcode byte for a three-operand
// (dst, src1, src2) 256-bit AVX instruction: dst = op(src1, src2). For
// two-operand instructions (sqrt, broadcast, move), pass src1 = -1 to get
// vvvv = 1111b (unused).
func emitVEX3(buf *Buffer, mmmmm byte, pp byte, dst, src1, src2 Reg, opcode byte) {
	rBit := byte(1)
	if dst >= 8 {
		rBit = 0
	}
	xBit := byte(1) // no index register ever used here
	bBit := byte(1)
	if src2 >= 8 {
		bBit = 0
	}
	byte1 := (rBit << 7) | (xBit << 6) | (bBit << 5) | mmmmm

	vvvv := byte(0x0F)
	if src1 >= 0 {
		vvvv = byte(^int(src1)) & 0x0F
	}
	byte2 := (0 << 7) | (vvvv << 3) | (1 << 2) | pp // W=0, L=1 (256-bit)

	buf.EmitBytes(0xC4, byte1, byte2, opcode, modRM(dst, src2))
}

func emitVEX3Imm8(buf *Buffer, mmmmm byte, pp byte, dst, src1, src2 Reg, opcode byte, imm8 byte) {
	emitVEX3(buf, mmmmm, pp, dst, src1, src2, opcode)
	buf.EmitByte(imm8)
}
