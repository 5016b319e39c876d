package graph

import "testing"

func TestAddConstantDedup(t *testing.T) {
	g := New()
	a := g.AddConstant(1.0)
	b := g.AddConstant(1.0)
	c := g.AddConstant(2.0)

	if g.Nodes[a].Imm != g.Nodes[b].Imm {
		t.Fatalf("expected duplicate constants to share a pool index, got %v and %v", g.Nodes[a].Imm, g.Nodes[b].Imm)
	}
	if g.Nodes[a].Imm == g.Nodes[c].Imm {
		t.Fatalf("expected distinct constants to get distinct pool indices")
	}
	if len(g.Pool) != 2 {
		t.Fatalf("expected pool size 2, got %d", len(g.Pool))
	}
}

func TestActivityPropagation(t *testing.T) {
	g := New()
	c := g.AddConstant(2.0)
	x := g.AddInput()
	s := g.AddNode(Add, c, x, Sentinel)
	p := g.AddNode(Mul, c, c, Sentinel)

	if g.Nodes[c].IsActive {
		t.Errorf("constant should not be active")
	}
	if !g.Nodes[x].IsActive {
		t.Errorf("input should be active")
	}
	if !g.Nodes[s].IsActive {
		t.Errorf("add(const, input) should be active")
	}
	if g.Nodes[p].IsActive {
		t.Errorf("mul(const, const) should not be active")
	}
}

func TestValidateRejectsForwardReference(t *testing.T) {
	g := New()
	g.AddInput()
	g.Nodes = append(g.Nodes, Node{Op: Add, A: 0, B: 5, C: Sentinel, Dst: 1})

	if err := g.Validate(); err == nil {
		t.Fatalf("expected forward-reference error")
	}
}

func TestValidateRejectsBadConstantIndex(t *testing.T) {
	g := New()
	g.Nodes = append(g.Nodes, Node{Op: Constant, A: Sentinel, B: Sentinel, C: Sentinel, Imm: 3, Dst: 0})

	if err := g.Validate(); err == nil {
		t.Fatalf("expected out-of-range constant index error")
	}
}

func TestValidateRejectsUnknownOutput(t *testing.T) {
	g := New()
	g.AddInput()
	g.MarkOutput(7)

	if err := g.Validate(); err == nil {
		t.Fatalf("expected unknown-output error")
	}
}

func TestRemapCompose(t *testing.T) {
	first := NewRemap(3)
	first.Set(0, 0)
	first.Set(1, 1)
	first.Set(2, Sentinel)

	second := NewRemap(2)
	second.Set(0, 5)
	second.Set(1, Sentinel)

	composed := Compose(first, second)
	if composed.Get(0) != 5 {
		t.Errorf("expected id 0 to resolve to 5, got %d", composed.Get(0))
	}
	if composed.Get(1) != Sentinel {
		t.Errorf("expected id 1 to resolve to Sentinel, got %d", composed.Get(1))
	}
	if composed.Get(2) != Sentinel {
		t.Errorf("expected eliminated id 2 to stay Sentinel")
	}
}

func TestArity(t *testing.T) {
	cases := []struct {
		op    OpCode
		arity int
	}{
		{Input, 0}, {Constant, 0}, {Neg, 1}, {Exp, 1}, {Add, 2}, {Pow, 2}, {If, 3}, {IntIf, 3},
	}
	for _, c := range cases {
		if got := c.op.Arity(); got != c.arity {
			t.Errorf("%s: expected arity %d, got %d", OpcodeName(c.op), c.arity, got)
		}
	}
}
