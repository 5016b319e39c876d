package isa

// Reg identifies a vector register slot (xmm/ymm0-15 on x86-64), matching
// the physical encoding used by both SSE2 and AVX2 instructions.
type Reg int

const (
	XMM0 Reg = iota
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15
)

// NumRegs is the size of the vector register file targeted by the
// allocator (spec section 4.5: "Fixed-size register file (16 slots)").
const NumRegs = 16

// General-purpose registers used for the function's integer-argument ABI
// and as scratch for address computation, named after the teacher's
// REG_RAX-family constants in x64.go.
const (
	RAX = 0
	RCX = 1
	RDX = 2
	RBX = 3
	RSP = 4
	RBP = 5
	RSI = 6
	RDI = 7
)

// VolatileLo and VolatileHi bound the ABI-volatile vector register range
// used for math callouts (spec section 4.5: "slots 0-5 under the Windows
// x64 convention used for math callouts"), applied uniformly regardless of
// host OS so the callout save/restore discipline is platform-independent.
const (
	VolatileLo = XMM0
	VolatileHi = XMM5
)

// IsVolatile reports whether r falls in the ABI-volatile range that a math
// callout clobbers.
func IsVolatile(r Reg) bool { return r >= VolatileLo && r <= VolatileHi }

// CalleePreserved lists the vector registers the emitted function must
// save at entry and restore at exit if its body uses them (spec section 5:
// "stack frame size is fixed per instruction set (10 vector slots plus
// alignment padding)").
var CalleePreserved = []Reg{XMM6, XMM7, XMM8, XMM9, XMM10, XMM11, XMM12, XMM13, XMM14, XMM15}
