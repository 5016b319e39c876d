package codegen

import (
	"testing"

	"dagjit.dev/dagjit/pkg/compileerr"
	"dagjit.dev/dagjit/pkg/graph"
	"dagjit.dev/dagjit/pkg/isa"
)

func buildSquarePlusOne() *graph.Graph {
	g := graph.New()
	x := g.AddInput()
	one := g.AddConstant(1.0)
	sq := g.AddNode(graph.Square, x, graph.Sentinel, graph.Sentinel)
	out := g.AddNode(graph.Add, sq, one, graph.Sentinel)
	g.MarkOutput(out)
	return g
}

func TestEmitForwardScalarProducesCode(t *testing.T) {
	g := buildSquarePlusOne()
	buf := isa.NewBuffer()
	ctx := NewContext(buf, g, isa.Scalar)
	if err := EmitForward(ctx); err != nil {
		t.Fatalf("EmitForward: %v", err)
	}
	if len(buf.Code) == 0 {
		t.Fatalf("expected emitted code, got none")
	}
}

func TestEmitForwardPackedProducesCode(t *testing.T) {
	g := buildSquarePlusOne()
	buf := isa.NewBuffer()
	ctx := NewContext(buf, g, isa.Packed4)
	if err := EmitForward(ctx); err != nil {
		t.Fatalf("EmitForward: %v", err)
	}
	if len(buf.Code) == 0 {
		t.Fatalf("expected emitted code, got none")
	}
}

func TestEmitForwardRejectsArrayIndex(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	idx := g.AddNode(graph.ArrayIndex, x, graph.Sentinel, graph.Sentinel)
	g.MarkOutput(idx)

	buf := isa.NewBuffer()
	ctx := NewContext(buf, g, isa.Scalar)
	err := EmitForward(ctx)
	if err == nil {
		t.Fatalf("expected an error for a live ArrayIndex node")
	}
	ce, ok := err.(*compileerr.CompileError)
	if !ok {
		t.Fatalf("expected *compileerr.CompileError, got %T", err)
	}
	if ce.Kind != compileerr.Structural {
		t.Errorf("Kind = %v, want Structural", ce.Kind)
	}
}

func TestEmitReverseAccumulatesGradientContributions(t *testing.T) {
	g := graph.New()
	x := g.AddInput()
	sq := g.AddNode(graph.Square, x, graph.Sentinel, graph.Sentinel)
	g.MarkOutput(sq)
	g.MarkDifferentiationInput(x)
	// propagate NeedsGradient manually, mirroring pkg/gradient.Propagate's
	// single forward sweep without importing it (avoids an import cycle
	// risk between codegen and gradient test helpers).
	g.Nodes[x].NeedsGradient = true
	g.Nodes[sq].NeedsGradient = true

	buf := isa.NewBuffer()
	ctx := NewContext(buf, g, isa.Scalar)
	if err := EmitForward(ctx); err != nil {
		t.Fatalf("EmitForward: %v", err)
	}
	if err := EmitReverse(ctx); err != nil {
		t.Fatalf("EmitReverse: %v", err)
	}
	if len(buf.Code) == 0 {
		t.Fatalf("expected emitted code, got none")
	}
}
