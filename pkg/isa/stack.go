package isa

// EmitStackReserve and EmitStackRelease adjust RSP around the
// callee-preserved-register spill area the orchestrator reserves between
// EmitPrologue and EmitSaveCallee. The instruction bytes are identical
// for both instruction sets (plain GPR arithmetic), so this lives outside
// the InstructionSet interface rather than being duplicated in
// scalar.go/packed.go.
func EmitStackReserve(buf *Buffer, bytes int) {
	if bytes <= 0 {
		return
	}
	buf.EmitBytes(0x48, 0x81, 0xEC) // sub rsp, imm32
	buf.EmitU32(uint32(bytes))
}

func EmitStackRelease(buf *Buffer, bytes int) {
	if bytes <= 0 {
		return
	}
	buf.EmitBytes(0x48, 0x81, 0xC4) // add rsp, imm32
	buf.EmitU32(uint32(bytes))
}

// CalleeFrameSize returns the 16-byte-aligned stack-frame size needed to
// spill every entry of CalleePreserved under iset's per-register slot
// size (spec section 5: "stack frame size is fixed per instruction set
// (10 vector slots plus alignment padding)").
func CalleeFrameSize(iset InstructionSet) int {
	slot := int(iset.Width()) * 8
	size := len(CalleePreserved) * slot
	return (size + 15) &^ 15
}
