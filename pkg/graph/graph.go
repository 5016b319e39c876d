package graph

import (
	"fmt"
	"math"
)

// Graph owns an ordered, append-only sequence of nodes, a deduplicated
// constant pool, an output set, and a differentiation-input set.
//
// Invariants (spec section 3):
//   - Acyclicity: every operand id of node i is strictly less than i.
//   - Arity conformance: unused operands are Sentinel.
//   - Constants are never active; inputs are always active; every other
//     node's IsActive is the OR of its live operands' IsActive.
//   - NeedsGradient forms a forward closure from the differentiation-input
//     set (see pkg/gradient).
//   - Dead nodes keep their slot but are never executed.
type Graph struct {
	Nodes []Node

	// Pool is the constant pool: Pool[i] is the value referenced by any
	// Constant node whose Imm, truncated to an int, equals i.
	Pool []float64

	Outputs          []NodeID
	DifferentiationInputs []NodeID
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{}
}

// NumNodes returns the number of node slots, including dead ones.
func (g *Graph) NumNodes() int { return len(g.Nodes) }

// Node returns the node at id.
func (g *Graph) Node(id NodeID) Node { return g.Nodes[id] }

// AddConstant appends a constant node referencing a (possibly new, possibly
// shared) pool entry holding val, and returns its id. Bit-exact duplicate
// values share a pool entry, per the constant-pool manager's dedup rule.
func (g *Graph) AddConstant(val float64) NodeID {
	idx := g.internConstant(val)
	id := NodeID(len(g.Nodes))
	g.Nodes = append(g.Nodes, Node{
		Op:       Constant,
		A:        Sentinel,
		B:        Sentinel,
		C:        Sentinel,
		Imm:      float64(idx),
		Dst:      id,
		IsActive: false,
	})
	return id
}

func (g *Graph) internConstant(val float64) int {
	for i, v := range g.Pool {
		if math.Float64bits(v) == math.Float64bits(val) {
			return i
		}
	}
	g.Pool = append(g.Pool, val)
	return len(g.Pool) - 1
}

// AddInput appends a runtime input node and returns its id.
func (g *Graph) AddInput() NodeID {
	id := NodeID(len(g.Nodes))
	g.Nodes = append(g.Nodes, Node{
		Op:       Input,
		A:        Sentinel,
		B:        Sentinel,
		C:        Sentinel,
		Dst:      id,
		IsActive: true,
	})
	return id
}

// AddBoolConstant appends a boolean-constant node.
func (g *Graph) AddBoolConstant(val bool) NodeID {
	imm := 0.0
	if val {
		imm = 1.0
	}
	id := NodeID(len(g.Nodes))
	g.Nodes = append(g.Nodes, Node{Op: BoolConstant, A: Sentinel, B: Sentinel, C: Sentinel, Imm: imm, Dst: id})
	return id
}

// AddIntConstant appends an integer-constant node.
func (g *Graph) AddIntConstant(val int64) NodeID {
	id := NodeID(len(g.Nodes))
	g.Nodes = append(g.Nodes, Node{Op: IntConstant, A: Sentinel, B: Sentinel, C: Sentinel, Imm: float64(val), Dst: id})
	return id
}

// AddNode appends a node computed from op and its operands, deriving
// IsActive from the operands' activity and leaving NeedsGradient false
// until gradient propagation runs. a, b, c beyond op's arity are ignored
// and stored as Sentinel.
func (g *Graph) AddNode(op OpCode, a, b, c NodeID) NodeID {
	switch op.Arity() {
	case 0:
		a, b, c = Sentinel, Sentinel, Sentinel
	case 1:
		b, c = Sentinel, Sentinel
	case 2:
		c = Sentinel
	}
	id := NodeID(len(g.Nodes))
	active := false
	for _, operand := range (Node{Op: op, A: a, B: b, C: c}).Operands() {
		if operand != Sentinel && g.Nodes[operand].IsActive {
			active = true
		}
	}
	g.Nodes = append(g.Nodes, Node{
		Op:       op,
		A:        a,
		B:        b,
		C:        c,
		Dst:      id,
		IsActive: active,
	})
	return id
}

// MarkOutput records id as a node whose final value the caller reads.
func (g *Graph) MarkOutput(id NodeID) { g.Outputs = append(g.Outputs, id) }

// MarkDifferentiationInput records id as an input for which gradients are
// requested.
func (g *Graph) MarkDifferentiationInput(id NodeID) {
	g.DifferentiationInputs = append(g.DifferentiationInputs, id)
}

// HasGradientInputs reports whether any differentiation input has been
// marked, i.e. whether a reverse pass should be emitted.
func (g *Graph) HasGradientInputs() bool { return len(g.DifferentiationInputs) > 0 }

// Clone returns a deep copy of g, used by passes that build a new graph
// from an old one node-by-node.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes:                 append([]Node(nil), g.Nodes...),
		Pool:                  append([]float64(nil), g.Pool...),
		Outputs:               append([]NodeID(nil), g.Outputs...),
		DifferentiationInputs: append([]NodeID(nil), g.DifferentiationInputs...),
	}
	return out
}

// Validate checks the structural invariants required before any pass runs:
// forward references, arity conformance, constant-pool range, and that
// every output/differentiation-input id names an existing node. It returns
// the first violation found, wrapped as a *StructuralError.
func (g *Graph) Validate() error {
	for i := range g.Nodes {
		n := g.Nodes[i]
		id := NodeID(i)
		for _, operand := range n.Operands() {
			if operand == Sentinel {
				continue
			}
			if operand >= id {
				return &StructuralError{Msg: fmt.Sprintf("node %d: operand %d is a forward reference", id, operand)}
			}
		}
		switch n.Op.Arity() {
		case 0:
			if n.A != Sentinel || n.B != Sentinel || n.C != Sentinel {
				return &StructuralError{Msg: fmt.Sprintf("node %d: nullary opcode %s has a non-sentinel operand", id, OpcodeName(n.Op))}
			}
		case 1:
			if n.B != Sentinel || n.C != Sentinel {
				return &StructuralError{Msg: fmt.Sprintf("node %d: unary opcode %s has a non-sentinel b/c operand", id, OpcodeName(n.Op))}
			}
		case 2:
			if n.C != Sentinel {
				return &StructuralError{Msg: fmt.Sprintf("node %d: binary opcode %s has a non-sentinel c operand", id, OpcodeName(n.Op))}
			}
		case 3:
			if n.A == Sentinel || n.B == Sentinel || n.C == Sentinel {
				return &StructuralError{Msg: fmt.Sprintf("node %d: ternary opcode %s has a sentinel operand", id, OpcodeName(n.Op))}
			}
		}
		if n.Op == Constant {
			idx := int(n.Imm)
			if idx < 0 || idx >= len(g.Pool) {
				return &StructuralError{Msg: fmt.Sprintf("node %d: constant pool index %d out of range [0,%d)", id, idx, len(g.Pool))}
			}
		}
	}
	for _, id := range g.Outputs {
		if int(id) >= len(g.Nodes) {
			return &StructuralError{Msg: fmt.Sprintf("output id %d does not name a node", id)}
		}
	}
	for _, id := range g.DifferentiationInputs {
		if int(id) >= len(g.Nodes) {
			return &StructuralError{Msg: fmt.Sprintf("differentiation-input id %d does not name a node", id)}
		}
		if g.Nodes[id].Op != Input {
			return &StructuralError{Msg: fmt.Sprintf("differentiation-input id %d does not name an Input node", id)}
		}
	}
	return nil
}

// StructuralError reports a graph-level invariant violation detected at
// validation time (spec section 7).
type StructuralError struct{ Msg string }

func (e *StructuralError) Error() string { return "structural error: " + e.Msg }
