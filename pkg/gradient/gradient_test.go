package gradient

import (
	"testing"

	"dagjit.dev/dagjit/pkg/graph"
)

func TestPropagateForwardClosure(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	y := g.AddInput() // not a differentiation input
	c := g.AddConstant(2.0)
	mulX := g.AddNode(graph.Mul, x, c, graph.Sentinel)
	addY := g.AddNode(graph.Add, mulX, y, graph.Sentinel)
	onlyY := g.AddNode(graph.Mul, y, y, graph.Sentinel)
	g.MarkDifferentiationInput(x)
	g.MarkOutput(addY)
	g.MarkOutput(onlyY)

	Propagate(g)

	if !g.Node(x).NeedsGradient {
		t.Errorf("x should need gradient (seed)")
	}
	if !g.Node(mulX).NeedsGradient {
		t.Errorf("mulX depends on x, should need gradient")
	}
	if !g.Node(addY).NeedsGradient {
		t.Errorf("addY depends on mulX, should need gradient")
	}
	if g.Node(y).NeedsGradient {
		t.Errorf("y is not a differentiation input and has no path from one")
	}
	if g.Node(onlyY).NeedsGradient {
		t.Errorf("onlyY has no path from a differentiation input")
	}
}

func TestPropagateSkipsDeadNodes(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	dead := g.AddNode(graph.Neg, x, graph.Sentinel, graph.Sentinel)
	g.Nodes[dead].IsDead = true
	user := g.AddNode(graph.Abs, dead, graph.Sentinel, graph.Sentinel)
	g.MarkDifferentiationInput(x)
	g.MarkOutput(user)

	Propagate(g)

	if g.Node(dead).NeedsGradient {
		t.Errorf("dead node should never be marked")
	}
	if g.Node(user).NeedsGradient {
		t.Errorf("a node whose only operand is dead should not inherit gradient")
	}
}
