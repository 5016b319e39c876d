// Package gradient computes the needs_gradient closure: a forward sweep
// that marks every node reachable from a marked differentiation input.
package gradient

import "dagjit.dev/dagjit/pkg/graph"

// Propagate sets NeedsGradient on every live node reachable forward from
// g.DifferentiationInputs, mutating g in place. Traversal is a single
// forward sweep from low to high index (spec section 4.3): a non-dead node
// gains the flag if it is itself a differentiation input, or if any of its
// operands already carries the flag. Dead nodes are skipped and never
// propagate or receive the flag.
func Propagate(g *graph.Graph) {
	seed := make(map[graph.NodeID]bool, len(g.DifferentiationInputs))
	for _, id := range g.DifferentiationInputs {
		seed[id] = true
	}

	for i := range g.Nodes {
		id := graph.NodeID(i)
		n := &g.Nodes[i]
		if n.IsDead {
			continue
		}
		if seed[id] {
			n.NeedsGradient = true
			continue
		}
		for _, operand := range n.Operands() {
			if operand != graph.Sentinel && g.Nodes[operand].NeedsGradient {
				n.NeedsGradient = true
				break
			}
		}
	}
}
