// Package mathstub builds the native transcendental routines the
// compiled kernel's `call rel32` sites resolve to (spec.md section 4.4:
// "emitted as a call to the platform math library"). A statically linked
// Go binary has no guarantee libm is mapped into the process at all, and
// resolving a real libc symbol address without cgo is not something any
// repo in the retrieval pack does or needs — so this package assembles
// its own process-local {exp, log, sin, cos, tan, pow} bodies directly
// from x87 instructions (FSIN/FCOS/FPTAN/F2XM1/FYL2X/FSCALE), finalized
// once into executable memory via internal/jit, and exposes their
// addresses under the same symbol names the isa package's call sites
// expect. This is recorded as a standard-library-only component in
// DESIGN.md: nothing in the pack offers dynamic libm resolution, and
// nothing in the pack performs native floating-point transcendentals
// either, so the x87 bodies are original low-level plumbing rather than
// an adaptation of any pack file.
package mathstub

import (
	"fmt"
	"sync"

	"dagjit.dev/dagjit/internal/jit"
)

type asm struct {
	code []byte
}

func (a *asm) pos() int          { return len(a.code) }
func (a *asm) b(bs ...byte)      { a.code = append(a.code, bs...) }
func (a *asm) u32(v uint32) {
	a.code = append(a.code, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// callRel32 emits `call rel32` to the absolute byte offset target within
// this same blob.
func (a *asm) callRel32(target int) {
	site := a.pos()
	a.b(0xE8)
	rel := int32(target - (site + 5))
	a.u32(uint32(rel))
}

func (a *asm) loadArgToMem()  { a.b(0xF2, 0x0F, 0x11, 0x44, 0x24, 0xF8) } // movsd [rsp-8], xmm0
func (a *asm) fldArgMem()     { a.b(0xDD, 0x44, 0x24, 0xF8) }             // fld qword [rsp-8]
func (a *asm) fstpResultMem() { a.b(0xDD, 0x5C, 0x24, 0xF8) }             // fstp qword [rsp-8]
func (a *asm) loadResult()    { a.b(0xF2, 0x0F, 0x10, 0x44, 0x24, 0xF8) } // movsd xmm0, [rsp-8]
func (a *asm) ret()           { a.b(0xC3) }

// emitUnaryX87 wraps a single x87 instruction, bridged through an 8-byte
// stack scratch slot in the caller's red zone.
func (a *asm) emitUnaryX87(op ...byte) int {
	start := a.pos()
	a.loadArgToMem()
	a.fldArgMem()
	a.b(op...)
	a.fstpResultMem()
	a.loadResult()
	a.ret()
	return start
}

// emitTanX87 additionally discards FPTAN's extra pushed 1.0.
func (a *asm) emitTanX87() int {
	start := a.pos()
	a.loadArgToMem()
	a.fldArgMem()
	a.b(0xD9, 0xF2) // fptan
	a.b(0xDD, 0xD8) // fstp st(0), discards the pushed 1.0
	a.fstpResultMem()
	a.loadResult()
	a.ret()
	return start
}

// emitExpX87 computes exp(x) via 2^(x*log2(e)) using F2XM1/FSCALE, the
// standard x87 idiom for a base-e exponential (no direct FEXP
// instruction exists).
func (a *asm) emitExpX87() int {
	start := a.pos()
	a.loadArgToMem()
	a.fldArgMem()     // st0=x
	a.b(0xD9, 0xEA)   // fldl2e            st0=log2e st1=x
	a.b(0xDE, 0xC9)   // fmulp st1,st0     st0=y=x*log2e
	a.b(0xD9, 0xC0)   // fld st0           st0=y st1=y
	a.b(0xD9, 0xFC)   // frndint           st0=i st1=y
	a.b(0xDC, 0xE9)   // fsub st1,st0      st0=i st1=f=y-i
	a.b(0xD9, 0xC9)   // fxch st1          st0=f st1=i
	a.b(0xD9, 0xF0)   // f2xm1             st0=2^f-1
	a.b(0xD9, 0xE8)   // fld1              st0=1 st1=2^f-1 st2=i
	a.b(0xDE, 0xC1)   // faddp st1,st0     st0=2^f st1=i
	a.b(0xD9, 0xFD)   // fscale            st0=2^f*2^trunc(i)=2^y
	a.b(0xDD, 0xD9)   // fstp st1          discard i, st0=result
	a.fstpResultMem()
	a.loadResult()
	a.ret()
	return start
}

// emitLogX87 computes ln(x) via FYL2X(ln2, x) = ln2*log2(x) = ln(x).
func (a *asm) emitLogX87() int {
	start := a.pos()
	a.loadArgToMem()
	a.b(0xD9, 0xED) // fldln2   st0=ln2
	a.fldArgMem()   // st0=x st1=ln2
	a.b(0xD9, 0xF1) // fyl2x    st0=ln2*log2(x)=ln(x)
	a.fstpResultMem()
	a.loadResult()
	a.ret()
	return start
}

// emitPow composes pow(x,y) = exp(y*ln(x)) out of call-rel32 sites to the
// already-built log/exp stubs within this same blob. x arrives in xmm0,
// y in xmm1, matching isa.emitTranscendentalCallout's binary convention.
// y is parked at [rsp-24]: once the call has pushed its return address, the
// log stub's own scratch slot [rsp-8] is this frame's [rsp-16].
func (a *asm) emitPow(logOffset, expOffset int) int {
	start := a.pos()
	a.b(0xF2, 0x0F, 0x11, 0x4C, 0x24, 0xE8) // movsd [rsp-24], xmm1  (save y)
	a.callRel32(logOffset)                  // xmm0 = ln(x)
	a.b(0xF2, 0x0F, 0x10, 0x4C, 0x24, 0xE8) // movsd xmm1, [rsp-24]  (restore y)
	a.b(0xF2, 0x0F, 0x59, 0xC1)             // mulsd xmm0, xmm1      (y*ln(x))
	a.callRel32(expOffset)                  // xmm0 = exp(y*ln(x)) = x^y
	a.ret()
	return start
}

var (
	once    sync.Once
	region  *jit.Region
	offsets map[string]int
	buildErr error
)

func build() {
	a := &asm{}
	sinOff := a.emitUnaryX87(0xD9, 0xFE) // fsin
	cosOff := a.emitUnaryX87(0xD9, 0xFF) // fcos
	tanOff := a.emitTanX87()
	logOff := a.emitLogX87()
	expOff := a.emitExpX87()
	powOff := a.emitPow(logOff, expOff)

	r, err := jit.Finalize(a.code)
	if err != nil {
		buildErr = fmt.Errorf("mathstub: finalize: %w", err)
		return
	}
	region = r
	offsets = map[string]int{
		"sin": sinOff,
		"cos": cosOff,
		"tan": tanOff,
		"log": logOff,
		"exp": expOff,
		"pow": powOff,
	}
}

// Resolve returns the absolute address of symbol's native body, matching
// the `resolve func(symbol string) (int, error)` signature
// isa.Buffer.ResolveCalls expects.
func Resolve(symbol string) (int, error) {
	once.Do(build)
	if buildErr != nil {
		return 0, buildErr
	}
	off, ok := offsets[symbol]
	if !ok {
		return 0, fmt.Errorf("mathstub: unknown symbol %q", symbol)
	}
	return int(region.EntryPoint()) + off, nil
}
