//go:build amd64

package jit

// callKernel invokes a finalized region's entry point using the System V
// AMD64 C calling convention the emitted prologue/EmitArgumentShuffle
// expect (values* in RDI, gradients* in RSI, node_count in RDX). Go
// functions use a different calling convention internally, so this is a
// small hand-written assembly trampoline rather than a direct Go call;
// see call_amd64.s.
//
//go:noescape
func callKernel(fn, values, gradients uintptr, nodeCount int64)

// CallKernel calls the compiled function at entry with the kernel ABI
// spec.md section 6 describes.
func CallKernel(entry uintptr, valuesPtr, gradientsPtr uintptr, nodeCount int) {
	callKernel(entry, valuesPtr, gradientsPtr, int64(nodeCount))
}
