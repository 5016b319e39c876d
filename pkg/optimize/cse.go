package optimize

import "dagjit.dev/dagjit/pkg/graph"

type cseKey struct {
	op      graph.OpCode
	a, b, c graph.NodeID
	imm     float64
}

// eliminateCSE collapses later live nodes onto an earlier live node with
// the same opcode, the same (already-resolved) operand ids, and identical
// immediate bits. Returns the number of nodes collapsed.
func eliminateCSE(s *state) int {
	seen := make(map[cseKey]graph.NodeID, len(s.nodes))
	count := 0
	for i := range s.nodes {
		id := graph.NodeID(i)
		n := s.nodes[i]
		if n.IsDead {
			continue
		}
		if n.Op == graph.Input {
			// Each Input is a distinct runtime-supplied value, never
			// structurally interchangeable with another Input node.
			continue
		}
		key := cseKey{op: n.Op, a: n.A, b: n.B, c: n.C, imm: n.Imm}
		if earlier, ok := seen[key]; ok {
			s.markDead(id, earlier)
			count++
			continue
		}
		seen[key] = id
	}
	return count
}
