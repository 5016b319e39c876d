package optimize

import (
	"testing"

	"dagjit.dev/dagjit/pkg/graph"
)

func TestInactiveFolding(t *testing.T) {
	g := graph.New()
	a := g.AddConstant(2.0)
	b := g.AddConstant(3.0)
	sum := g.AddNode(graph.Add, a, b, graph.Sentinel) // inactive: 5.0
	x := g.AddInput()
	out := g.AddNode(graph.Add, sum, x, graph.Sentinel)
	g.MarkOutput(out)

	optimized, remap, stats := Run(g, DefaultConfig())
	if stats.Passes[0].FoldedInactive == 0 {
		t.Fatalf("expected at least one folded node")
	}
	sumID := remap.Get(sum)
	if optimized.Node(sumID).Op != graph.Constant {
		t.Fatalf("expected sum node folded to Constant, got %s", graph.OpcodeName(optimized.Node(sumID).Op))
	}
	if optimized.Pool[int(optimized.Node(sumID).Imm)] != 5.0 {
		t.Fatalf("expected folded value 5.0, got %v", optimized.Pool[int(optimized.Node(sumID).Imm)])
	}
}

func TestAlgebraicIdentities(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	zero := g.AddConstant(0.0)
	one := g.AddConstant(1.0)
	addZero := g.AddNode(graph.Add, x, zero, graph.Sentinel)
	mulOne := g.AddNode(graph.Mul, addZero, one, graph.Sentinel)
	g.MarkOutput(mulOne)

	optimized, remap, _ := Run(g, DefaultConfig())
	finalID := remap.Get(mulOne)
	if finalID != remap.Get(x) {
		t.Fatalf("expected (x+0)*1 to collapse to x, got node %d (x is %d)", finalID, remap.Get(x))
	}
	_ = optimized
}

func TestMulByZero(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	zero := g.AddConstant(0.0)
	m := g.AddNode(graph.Mul, x, zero, graph.Sentinel)
	g.MarkOutput(m)

	optimized, remap, _ := Run(g, DefaultConfig())
	finalID := remap.Get(m)
	n := optimized.Node(finalID)
	if n.Op != graph.Constant || optimized.Pool[int(n.Imm)] != 0.0 {
		t.Fatalf("expected x*0 -> 0, got %s", graph.OpcodeName(n.Op))
	}
}

func TestPowZero(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	zero := g.AddConstant(0.0)
	p := g.AddNode(graph.Pow, x, zero, graph.Sentinel)
	g.MarkOutput(p)

	optimized, remap, _ := Run(g, DefaultConfig())
	finalID := remap.Get(p)
	n := optimized.Node(finalID)
	if n.Op != graph.Constant || optimized.Pool[int(n.Imm)] != 1.0 {
		t.Fatalf("expected pow(x,0) -> 1, got %s", graph.OpcodeName(n.Op))
	}
}

func TestCSECollapsesDuplicates(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	y := g.AddInput()
	s1 := g.AddNode(graph.Add, x, y, graph.Sentinel)
	s2 := g.AddNode(graph.Add, x, y, graph.Sentinel)
	out := g.AddNode(graph.Mul, s1, s2, graph.Sentinel)
	g.MarkOutput(out)

	optimized, remap, stats := Run(g, DefaultConfig())
	total := 0
	for _, p := range stats.Passes {
		total += p.CSE
	}
	if total == 0 {
		t.Fatalf("expected CSE to collapse at least one node")
	}
	if remap.Get(s1) != remap.Get(s2) {
		t.Fatalf("expected s1 and s2 to collapse to the same node")
	}
	_ = optimized
}

func TestCSEIdempotent(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	y := g.AddInput()
	s1 := g.AddNode(graph.Add, x, y, graph.Sentinel)
	s2 := g.AddNode(graph.Add, x, y, graph.Sentinel)
	out := g.AddNode(graph.Mul, s1, s2, graph.Sentinel)
	g.MarkOutput(out)

	once, _, _ := Run(g, DefaultConfig())
	twice, _, _ := Run(once, DefaultConfig())

	if len(once.Nodes) != len(twice.Nodes) {
		t.Fatalf("expected applying optimization twice to be a no-op: %d vs %d nodes", len(once.Nodes), len(twice.Nodes))
	}
	for i := range once.Nodes {
		if once.Nodes[i].Op != twice.Nodes[i].Op || once.Nodes[i].IsDead != twice.Nodes[i].IsDead {
			t.Fatalf("node %d diverged across repeated optimization", i)
		}
	}
}

func TestAcyclicityPreserved(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	zero := g.AddConstant(0.0)
	one := g.AddConstant(1.0)
	_ = g.AddNode(graph.Add, x, zero, graph.Sentinel)
	_ = g.AddNode(graph.Mul, x, one, graph.Sentinel)
	n3 := g.AddNode(graph.Pow, x, zero, graph.Sentinel)
	g.MarkOutput(n3)

	optimized, _, _ := Run(g, DefaultConfig())
	for i, n := range optimized.Nodes {
		if n.IsDead {
			continue
		}
		for _, operand := range n.Operands() {
			if operand != graph.Sentinel && operand >= graph.NodeID(i) {
				t.Fatalf("node %d has non-backward operand %d", i, operand)
			}
		}
	}
}

func TestOptimizationsDisabled(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	zero := g.AddConstant(0.0)
	add := g.AddNode(graph.Add, x, zero, graph.Sentinel)
	g.MarkOutput(add)

	cfg := Config{EnableOptimizations: false}
	optimized, remap, _ := Run(g, cfg)
	if optimized.Node(remap.Get(add)).IsDead {
		t.Fatalf("expected no rewrites when optimizations are disabled")
	}
}
