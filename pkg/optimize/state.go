package optimize

import (
	"math"

	"dagjit.dev/dagjit/pkg/graph"
)

// state is the optimizer's in-place working copy of a graph. Unlike the
// stability cleaner, the optimizer never renumbers nodes: a rewrite either
// marks a node dead and aliases it to an earlier, already-live id, or (when
// the replacement value has no existing node to point at) repurposes the
// node's own slot into a Constant/BoolConstant/IntConstant, which needs no
// alias at all. This keeps every surviving operand reference a backward
// reference without ever inserting a node out of position.
type state struct {
	nodes []graph.Node
	pool  []float64
	alias []graph.NodeID // alias[i] == i unless i is dead, in which case it is i's replacement
}

func newState(g *graph.Graph) *state {
	s := &state{
		nodes: append([]graph.Node(nil), g.Nodes...),
		pool:  append([]float64(nil), g.Pool...),
		alias: make([]graph.NodeID, g.NumNodes()),
	}
	for i := range s.alias {
		s.alias[i] = graph.NodeID(i)
	}
	return s
}

// resolve chases id through the alias chain to the live id that now stands
// for it. Chains are shallow in practice (each rewrite aliases directly to
// an already-live id) but the loop handles any depth defensively.
func (s *state) resolve(id graph.NodeID) graph.NodeID {
	if id == graph.Sentinel {
		return graph.Sentinel
	}
	for s.alias[id] != id {
		id = s.alias[id]
	}
	return id
}

// canonicalizeOperands rewrites every live node's operand fields to their
// resolved ids, so later passes never need to chase aliases themselves.
func (s *state) canonicalizeOperands() {
	for i := range s.nodes {
		n := &s.nodes[i]
		if n.IsDead {
			continue
		}
		n.A = s.resolveOperand(n.A)
		n.B = s.resolveOperand(n.B)
		n.C = s.resolveOperand(n.C)
	}
}

func (s *state) resolveOperand(id graph.NodeID) graph.NodeID {
	if id == graph.Sentinel {
		return graph.Sentinel
	}
	return s.resolve(id)
}

// markDead marks node id dead and aliases it to target, which must already
// be a live id strictly less than id (an earlier node, or one of id's own
// operands).
func (s *state) markDead(id, target graph.NodeID) {
	s.nodes[id].IsDead = true
	s.alias[id] = target
}

// internConstant returns the (possibly new) pool index for val, deduping
// by bit-exact comparison as the constant pool manager requires at lowering
// time; the optimizer applies the same rule early so CSE sees identical
// immediates for identical folded values.
func (s *state) internConstant(val float64) int {
	for i, v := range s.pool {
		if math.Float64bits(v) == math.Float64bits(val) {
			return i
		}
	}
	s.pool = append(s.pool, val)
	return len(s.pool) - 1
}

// rewriteToConstant repurposes node id's own slot into a Constant node
// holding val. The node stays alive (no alias needed) since its id keeps
// meaning "the value computed here", just via a different opcode now.
func (s *state) rewriteToConstant(id graph.NodeID, val float64) {
	idx := s.internConstant(val)
	s.nodes[id] = graph.Node{
		Op: graph.Constant, A: graph.Sentinel, B: graph.Sentinel, C: graph.Sentinel,
		Imm: float64(idx), Dst: id, IsActive: false,
	}
}

func (s *state) rewriteToBoolConstant(id graph.NodeID, val float64) {
	s.nodes[id] = graph.Node{
		Op: graph.BoolConstant, A: graph.Sentinel, B: graph.Sentinel, C: graph.Sentinel,
		Imm: val, Dst: id, IsActive: false,
	}
}

func (s *state) rewriteToIntConstant(id graph.NodeID, val int64) {
	s.nodes[id] = graph.Node{
		Op: graph.IntConstant, A: graph.Sentinel, B: graph.Sentinel, C: graph.Sentinel,
		Imm: float64(val), Dst: id, IsActive: false,
	}
}

// toGraph materializes the working state back into a *graph.Graph.
func (s *state) toGraph() *graph.Graph {
	return &graph.Graph{
		Nodes: append([]graph.Node(nil), s.nodes...),
		Pool:  append([]float64(nil), s.pool...),
	}
}
