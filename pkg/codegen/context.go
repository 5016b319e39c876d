// Package codegen implements the forward and reverse emitters (spec
// sections 4.7-4.8): the walk over an optimized graph's node sequence that
// dispatches each live node to its isa.InstructionSet primitive via the
// register allocator and constant pool, and the analytical-derivative
// reverse sweep run afterward when the graph has differentiation inputs.
package codegen

import (
	"dagjit.dev/dagjit/internal/trace"
	"dagjit.dev/dagjit/pkg/constpool"
	"dagjit.dev/dagjit/pkg/graph"
	"dagjit.dev/dagjit/pkg/isa"
	"dagjit.dev/dagjit/pkg/regalloc"
)

// Base GPR assignments for the value pointer, gradient pointer, and node
// count, fixed by isa.scalar/packed's EmitArgumentShuffle comment: System V
// AMD64 passes them in RDI, RSI, RDX and the emitted body reads them
// directly with no shuffle.
const (
	valueBase = isa.RDI
	gradBase  = isa.RSI
)

// Context threads the per-compilation state every emit helper needs: the
// code buffer, the graph being walked, the chosen instruction set, the
// register file, and the constant pool plus the label its image will be
// bound to.
type Context struct {
	Buf       *isa.Buffer
	Graph     *graph.Graph
	Iset      isa.InstructionSet
	Regs      *regalloc.File
	Pool      *constpool.Pool
	PoolLabel int

	// Trace, when non-nil and enabled, records a (node id, code offset)
	// pair at the start of every node's emission (the optional trace;
	// records are taken at compile time, not by the running kernel), letting -print-assembly-style tooling
	// correlate emitted bytes back to graph node ids. nil disables
	// tracing with zero overhead on the hot emission path.
	Trace *trace.Ring
}

// recordTrace appends a trace record for id at the instruction-set's
// current code position, a no-op if tracing is disabled.
func recordTrace(c *Context, id graph.NodeID) {
	if c.Trace == nil {
		return
	}
	c.Trace.Add(trace.Record{NodeID: uint32(id), Offset: c.Buf.Pos()})
}

// NewContext builds a Context with a fresh register file sized to iset's
// register count and a constant pool aligned to iset's requirement. The
// pool label is allocated on buf now so call sites can reference it before
// the pool's final position is known (bound later via buf.BindLabel once
// the function body is fully emitted).
func NewContext(buf *isa.Buffer, g *graph.Graph, iset isa.InstructionSet) *Context {
	return &Context{
		Buf:       buf,
		Graph:     g,
		Iset:      iset,
		Regs:      regalloc.New(isa.NumRegs),
		Pool:      constpool.New(iset),
		PoolLabel: buf.NewLabel(),
	}
}
