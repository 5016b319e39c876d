// Package stability implements the stability cleaner: a single left-to-right
// rewrite pass that replaces numerically fragile patterns with stable
// equivalents before optimization runs.
package stability

import "dagjit.dev/dagjit/pkg/graph"

// Result carries the cleaned graph, the remap from the original graph's ids
// to the cleaned graph's ids, and the number of rewrites applied.
type Result struct {
	Graph    *graph.Graph
	Remap    *graph.Remap
	FixCount int
}

// Clean applies the stability rewrites documented in spec section 4.1:
//
//	Div(Constant(1.0), Exp(x))  -> Exp(Neg(x))
//	Div(Exp(x), Exp(y))         -> Exp(Sub(x, y))
//	Log(Exp(x))                 -> x
//	Sqrt(Mul(x, x))             -> Abs(x)
//
// Nodes not matching any pattern are copied with operands relocated through
// the in-progress remap, so earlier rewrites compose. If any operand in a
// proposed pattern has been independently marked dead, the rewrite is
// skipped and the node is copied verbatim instead.
func Clean(src *graph.Graph) Result {
	out := graph.New()
	out.Pool = append([]float64(nil), src.Pool...)
	remap := graph.NewRemap(src.NumNodes())
	fixCount := 0

	isDead := func(id graph.NodeID) bool {
		mapped := remap.Get(id)
		return mapped == graph.Sentinel || out.Nodes[mapped].IsDead
	}

	for i := 0; i < src.NumNodes(); i++ {
		id := graph.NodeID(i)
		n := src.Node(id)

		if rewritten, ok := tryRewrite(src, out, remap, id, n, isDead); ok {
			remap.Set(id, rewritten)
			fixCount++
			continue
		}

		newID := copyNode(out, remap, n)
		remap.Set(id, newID)
	}

	for _, o := range src.Outputs {
		out.MarkOutput(remap.Resolve(o))
	}
	for _, d := range src.DifferentiationInputs {
		out.MarkDifferentiationInput(remap.Resolve(d))
	}

	return Result{Graph: out, Remap: remap, FixCount: fixCount}
}

// copyNode appends a copy of n to out with its operands relocated through
// remap, preserving dead slots verbatim so positional stability holds.
func copyNode(out *graph.Graph, remap *graph.Remap, n graph.Node) graph.NodeID {
	a, b, c := remap.Resolve(n.A), remap.Resolve(n.B), remap.Resolve(n.C)
	id := graph.NodeID(out.NumNodes())

	active := n.IsActive
	if a != graph.Sentinel {
		active = active || out.Node(a).IsActive
	}
	if b != graph.Sentinel {
		active = active || out.Node(b).IsActive
	}
	if c != graph.Sentinel {
		active = active || out.Node(c).IsActive
	}

	out.Nodes = append(out.Nodes, graph.Node{
		Op:       n.Op,
		A:        a,
		B:        b,
		C:        c,
		Imm:      n.Imm,
		Dst:      id,
		IsActive: active,
		IsDead:   n.IsDead,
	})
	return id
}

// tryRewrite attempts to match one of the stability patterns rooted at id.
// On success it appends any synthetic nodes the replacement needs (before
// the replacement's own position, so operand ordering stays a forward
// reference) and returns the id of the node that now stands for the
// original. isDead reports whether an already-remapped operand id was
// independently marked dead, which disqualifies the rewrite.
func tryRewrite(src *graph.Graph, out *graph.Graph, remap *graph.Remap, id graph.NodeID, n graph.Node, isDead func(graph.NodeID) bool) (graph.NodeID, bool) {
	switch n.Op {
	case graph.Div:
		lhs, rhs := src.Node(n.A), src.Node(n.B)
		// Div(Constant(1.0), Exp(x)) -> Exp(Neg(x))
		if lhs.Op == graph.Constant && src.Pool[int(lhs.Imm)] == 1.0 && rhs.Op == graph.Exp {
			if isDead(n.A) || isDead(n.B) || isDead(rhs.A) {
				return 0, false
			}
			x := remap.Resolve(rhs.A)
			neg := appendUnary(out, graph.Neg, x)
			result := appendUnary(out, graph.Exp, neg)
			return result, true
		}
		// Div(Exp(x), Exp(y)) -> Exp(Sub(x, y))
		if lhs.Op == graph.Exp && rhs.Op == graph.Exp {
			if isDead(n.A) || isDead(n.B) || isDead(lhs.A) || isDead(rhs.A) {
				return 0, false
			}
			x := remap.Resolve(lhs.A)
			y := remap.Resolve(rhs.A)
			sub := appendBinary(out, graph.Sub, x, y)
			result := appendUnary(out, graph.Exp, sub)
			return result, true
		}
	case graph.Log:
		arg := src.Node(n.A)
		// Log(Exp(x)) -> x
		if arg.Op == graph.Exp {
			if isDead(n.A) || isDead(arg.A) {
				return 0, false
			}
			return remap.Resolve(arg.A), true
		}
	case graph.Sqrt:
		arg := src.Node(n.A)
		// Sqrt(Mul(x, x)) -> Abs(x)
		if arg.Op == graph.Mul && arg.A == arg.B {
			if isDead(n.A) || isDead(arg.A) {
				return 0, false
			}
			x := remap.Resolve(arg.A)
			result := appendUnary(out, graph.Abs, x)
			return result, true
		}
	}
	return 0, false
}

func appendUnary(out *graph.Graph, op graph.OpCode, a graph.NodeID) graph.NodeID {
	id := graph.NodeID(out.NumNodes())
	out.Nodes = append(out.Nodes, graph.Node{
		Op: op, A: a, B: graph.Sentinel, C: graph.Sentinel,
		Dst: id, IsActive: a != graph.Sentinel && out.Node(a).IsActive,
	})
	return id
}

func appendBinary(out *graph.Graph, op graph.OpCode, a, b graph.NodeID) graph.NodeID {
	id := graph.NodeID(out.NumNodes())
	active := (a != graph.Sentinel && out.Node(a).IsActive) || (b != graph.Sentinel && out.Node(b).IsActive)
	out.Nodes = append(out.Nodes, graph.Node{
		Op: op, A: a, B: b, C: graph.Sentinel,
		Dst: id, IsActive: active,
	})
	return id
}
