package optimize

import "dagjit.dev/dagjit/pkg/graph"

// foldInactive rewrites every live, inactive, pure node that is not already
// a placeholder (Input/Constant/BoolConstant/IntConstant) into a constant
// holding its compile-time value. Operands of an inactive node are
// themselves inactive (activity is an OR-closure over live operands), so by
// the time a later index is visited in this single forward sweep, any
// operand it depends on has already been folded or was a placeholder.
// Returns the number of nodes folded.
func foldInactive(s *state) int {
	count := 0
	for i := range s.nodes {
		id := graph.NodeID(i)
		n := s.nodes[i]
		if n.IsDead || n.IsActive {
			continue
		}
		if !n.Op.IsPure() {
			continue
		}
		switch n.Op {
		case graph.Input, graph.Constant, graph.BoolConstant, graph.IntConstant:
			continue
		}

		switch {
		case n.Op.IsInteger():
			a, b, c := s.intValue(n.A), s.intValue(n.B), s.intValue(n.C)
			s.rewriteToIntConstant(id, evalInt(n.Op, a, b, c))
		case n.Op == graph.BoolAnd || n.Op == graph.BoolOr || n.Op == graph.BoolNot ||
			n.Op == graph.BoolEq || n.Op == graph.BoolNe:
			a, b := s.boolValue(n.A), s.boolValue(n.B)
			s.rewriteToBoolConstant(id, evalBool(n.Op, a, b))
		default:
			a, b, c := s.realValue(n.A), s.realValue(n.B), s.realValue(n.C)
			s.rewriteToConstant(id, evalReal(n.Op, a, b, c))
		}
		count++
	}
	return count
}

func (s *state) realValue(id graph.NodeID) float64 {
	if id == graph.Sentinel {
		return 0
	}
	id = s.resolve(id)
	n := s.nodes[id]
	if n.Op == graph.Constant {
		return s.pool[int(n.Imm)]
	}
	return 0
}

func (s *state) boolValue(id graph.NodeID) float64 {
	if id == graph.Sentinel {
		return 0
	}
	id = s.resolve(id)
	n := s.nodes[id]
	if n.Op == graph.BoolConstant {
		return n.Imm
	}
	return 0
}

func (s *state) intValue(id graph.NodeID) int64 {
	if id == graph.Sentinel {
		return 0
	}
	id = s.resolve(id)
	n := s.nodes[id]
	if n.Op == graph.IntConstant {
		return int64(n.Imm)
	}
	return 0
}
