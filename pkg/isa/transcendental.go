package isa

// emitTranscendentalCallout emits a call to the platform math library for
// a unary or binary transcendental (spec section 4.4). The emitter here
// handles only the mechanical call sequence; invalidating the register
// allocator's volatile range after the call is the forward/reverse
// emitter's responsibility (pkg/codegen), since only it tracks which
// allocator slots are live.
//
// Sequence: move argument(s) into the ABI argument registers (xmm0,
// xmm1), clear AL (for the variadic-safe SysV convention some libm
// builds expect for vector-count-in-AL), call the rel32 target, then move
// the result out of xmm0 into dst.
func emitTranscendentalCallout(buf *Buffer, dst, a, b Reg, symbol string, binary bool) {
	moveSDIfNeeded(buf, XMM0, a)
	if binary {
		moveSDIfNeeded(buf, XMM1, b)
	}
	buf.EmitBytes(0x30, 0xC0) // xor al, al
	buf.EmitCallRef32(symbol)
	moveSDIfNeeded(buf, dst, XMM0)
}

func moveSDIfNeeded(buf *Buffer, dst, src Reg) {
	if dst == src {
		return
	}
	emitSSE(buf, 0xF2, 0x10, dst, src)
}
