package stability

import (
	"math"
	"testing"

	"dagjit.dev/dagjit/pkg/graph"
)

// evalSubset interprets a small cleaned graph directly, for testing the
// rewrite's arithmetic equivalence without involving codegen.
func evalSubset(t *testing.T, g *graph.Graph, xVal float64, xID graph.NodeID, outID graph.NodeID) float64 {
	t.Helper()
	vals := make([]float64, g.NumNodes())
	for i := 0; i < g.NumNodes(); i++ {
		id := graph.NodeID(i)
		n := g.Node(id)
		switch n.Op {
		case graph.Constant:
			vals[i] = g.Pool[int(n.Imm)]
		case graph.Input:
			if id == xID {
				vals[i] = xVal
			}
		case graph.Neg:
			vals[i] = -vals[n.A]
		case graph.Abs:
			vals[i] = math.Abs(vals[n.A])
		case graph.Exp:
			vals[i] = math.Exp(vals[n.A])
		case graph.Sub:
			vals[i] = vals[n.A] - vals[n.B]
		case graph.Mul:
			vals[i] = vals[n.A] * vals[n.B]
		case graph.Div:
			vals[i] = vals[n.A] / vals[n.B]
		case graph.Log:
			vals[i] = math.Log(vals[n.A])
		case graph.Sqrt:
			vals[i] = math.Sqrt(vals[n.A])
		}
	}
	return vals[outID]
}

func TestCleanRecipExp(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	one := g.AddConstant(1.0)
	ex := g.AddNode(graph.Exp, x, graph.Sentinel, graph.Sentinel)
	out := g.AddNode(graph.Div, one, ex, graph.Sentinel)
	g.MarkOutput(out)

	res := Clean(g)
	if res.FixCount != 1 {
		t.Fatalf("expected 1 fix, got %d", res.FixCount)
	}
	newOut := res.Remap.Get(out)
	if res.Graph.Node(newOut).Op != graph.Exp {
		t.Fatalf("expected rewritten root to be Exp, got %s", graph.OpcodeName(res.Graph.Node(newOut).Op))
	}

	for _, xv := range []float64{-40, -10, 0, 10, 40} {
		want := math.Exp(-xv)
		got := evalSubset(t, res.Graph, xv, res.Remap.Get(x), newOut)
		if math.Abs(got-want) > 1e-12*math.Abs(want)+1e-14 {
			t.Errorf("x=%v: want %v got %v", xv, want, got)
		}
	}
}

func TestCleanExpRatio(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	y := g.AddInput()
	ex := g.AddNode(graph.Exp, x, graph.Sentinel, graph.Sentinel)
	ey := g.AddNode(graph.Exp, y, graph.Sentinel, graph.Sentinel)
	out := g.AddNode(graph.Div, ex, ey, graph.Sentinel)
	g.MarkOutput(out)

	res := Clean(g)
	newOut := res.Remap.Get(out)
	if res.Graph.Node(newOut).Op != graph.Exp {
		t.Fatalf("expected Exp(Sub(x,y)), got %s", graph.OpcodeName(res.Graph.Node(newOut).Op))
	}
}

func TestCleanLogExp(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	ex := g.AddNode(graph.Exp, x, graph.Sentinel, graph.Sentinel)
	out := g.AddNode(graph.Log, ex, graph.Sentinel, graph.Sentinel)
	g.MarkOutput(out)

	res := Clean(g)
	newOut := res.Remap.Get(out)
	if newOut != res.Remap.Get(x) {
		t.Fatalf("expected Log(Exp(x)) to collapse to x")
	}
}

func TestCleanSqrtSquare(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	m := g.AddNode(graph.Mul, x, x, graph.Sentinel)
	out := g.AddNode(graph.Sqrt, m, graph.Sentinel, graph.Sentinel)
	g.MarkOutput(out)

	res := Clean(g)
	newOut := res.Remap.Get(out)
	if res.Graph.Node(newOut).Op != graph.Abs {
		t.Fatalf("expected Sqrt(Mul(x,x)) -> Abs(x), got %s", graph.OpcodeName(res.Graph.Node(newOut).Op))
	}
}

func TestCleanSkipsWhenOperandDead(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	one := g.AddConstant(1.0)
	ex := g.AddNode(graph.Exp, x, graph.Sentinel, graph.Sentinel)
	g.Nodes[ex].IsDead = true
	out := g.AddNode(graph.Div, one, ex, graph.Sentinel)

	res := Clean(g)
	if res.Graph.NumNodes() == 0 {
		t.Fatalf("expected cleaned graph to retain nodes")
	}
	if res.FixCount != 0 {
		t.Fatalf("expected rewrite skipped for dead Exp operand, got %d fixes", res.FixCount)
	}
	if op := res.Graph.Node(res.Remap.Get(out)).Op; op != graph.Div {
		t.Fatalf("expected Div copied verbatim, got %s", graph.OpcodeName(op))
	}
}
