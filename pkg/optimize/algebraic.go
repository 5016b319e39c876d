package optimize

import "dagjit.dev/dagjit/pkg/graph"

// isConstWith reports whether id (already resolved) names a live Constant
// node whose pool value equals want.
func (s *state) isConstWith(id graph.NodeID, want float64) bool {
	if id == graph.Sentinel {
		return false
	}
	n := s.nodes[s.resolve(id)]
	return n.Op == graph.Constant && s.pool[int(n.Imm)] == want
}

// simplifyAlgebraic applies the identities of spec section 4.2 to every
// live node, in index order. A rewrite either marks the current node dead
// and aliases it to an existing earlier node (the common case: the
// replacement value is already one of the node's own operands) or, when no
// existing node already holds the replacement value, repurposes the node's
// own slot into a Constant. Returns the number of nodes changed.
func simplifyAlgebraic(s *state) int {
	count := 0
	for i := range s.nodes {
		id := graph.NodeID(i)
		n := s.nodes[i]
		if n.IsDead {
			continue
		}
		if changed := s.tryAlgebraic(id, n); changed {
			count++
		}
	}
	return count
}

func (s *state) tryAlgebraic(id graph.NodeID, n graph.Node) bool {
	switch n.Op {
	case graph.Add:
		if s.isConstWith(n.A, 0) {
			s.markDead(id, n.B)
			return true
		}
		if s.isConstWith(n.B, 0) {
			s.markDead(id, n.A)
			return true
		}
	case graph.Sub:
		if s.isConstWith(n.B, 0) {
			s.markDead(id, n.A)
			return true
		}
	case graph.Mul:
		if s.isConstWith(n.A, 1) {
			s.markDead(id, n.B)
			return true
		}
		if s.isConstWith(n.B, 1) {
			s.markDead(id, n.A)
			return true
		}
		if s.isConstWith(n.A, 0) {
			s.markDead(id, s.resolve(n.A))
			return true
		}
		if s.isConstWith(n.B, 0) {
			s.markDead(id, s.resolve(n.B))
			return true
		}
	case graph.Div:
		if s.isConstWith(n.B, 1) {
			s.markDead(id, n.A)
			return true
		}
	case graph.Pow:
		if s.isConstWith(n.B, 0) {
			s.rewriteToConstant(id, 1.0)
			return true
		}
		if s.isConstWith(n.B, 1) {
			s.markDead(id, n.A)
			return true
		}
	case graph.Neg:
		inner := s.nodes[s.resolve(n.A)]
		if inner.Op == graph.Neg && !inner.IsDead {
			s.markDead(id, inner.A)
			return true
		}
	case graph.Abs:
		inner := s.nodes[s.resolve(n.A)]
		if inner.Op == graph.Abs && !inner.IsDead {
			s.markDead(id, n.A)
			return true
		}
	}
	return false
}
