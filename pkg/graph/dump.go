package graph

import (
	"fmt"
	"strings"
)

// Dump renders g as a human-readable listing, one line per node, in the
// style of the teacher's opcodeName-driven disassembly printers
// (backend_ir.go). Intended for the -print-graph debug flag (spec section
// 6); never consulted by the compiler itself.
func (g *Graph) Dump() string {
	var b strings.Builder
	for i, n := range g.Nodes {
		id := NodeID(i)
		status := ""
		if n.IsDead {
			status += " dead"
		}
		if n.IsActive {
			status += " active"
		}
		if n.NeedsGradient {
			status += " grad"
		}
		fmt.Fprintf(&b, "%4d: %-12s", id, OpcodeName(n.Op))
		switch n.Op {
		case Constant:
			fmt.Fprintf(&b, " pool[%d]=%v", int(n.Imm), g.Pool[int(n.Imm)])
		case BoolConstant:
			fmt.Fprintf(&b, " %v", n.Imm != 0)
		case IntConstant:
			fmt.Fprintf(&b, " %d", int64(n.Imm))
		default:
			for _, operand := range n.Operands() {
				fmt.Fprintf(&b, " %%%d", operand)
			}
		}
		fmt.Fprintf(&b, "%s\n", status)
	}
	fmt.Fprintf(&b, "outputs: %v\n", g.Outputs)
	fmt.Fprintf(&b, "diff-inputs: %v\n", g.DifferentiationInputs)
	return b.String()
}
