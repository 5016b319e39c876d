package main

import (
	"dagjit.dev/dagjit/pkg/graph"
)

// scenario is one of the end-to-end graphs spec.md section 8 enumerates
// (S1-S6). build constructs a fresh graph each call; Compile takes a
// *graph.Graph and the orchestrator never mutates the caller's original.
type scenario struct {
	name        string
	description string
	build       func() *graph.Graph
	// inputs maps each scenario run to a distinct input assignment, keyed
	// by a short label, so "dagjitc s1" can report every sub-case
	// spec.md section 8 lists for it.
	runs []scenarioRun
}

type scenarioRun struct {
	label  string
	inputs []float64 // lane-0 value for each AddInput call, in call order
}

var scenarios = []scenario{
	{
		name:        "s1",
		description: "f(x) = x^2 + 2x + 1",
		build: func() *graph.Graph {
			g := graph.New()
			x := g.AddInput()
			two := g.AddConstant(2.0)
			one := g.AddConstant(1.0)
			xSq := g.AddNode(graph.Square, x, graph.Sentinel, graph.Sentinel)
			twoX := g.AddNode(graph.Mul, two, x, graph.Sentinel)
			sum1 := g.AddNode(graph.Add, xSq, twoX, graph.Sentinel)
			sum2 := g.AddNode(graph.Add, sum1, one, graph.Sentinel)
			g.MarkOutput(sum2)
			return g
		},
		runs: []scenarioRun{
			{"x=3", []float64{3}},
			{"x=-1", []float64{-1}},
		},
	},
	{
		name:        "s2",
		description: "f(x) = exp(x) + sin(x)",
		build: func() *graph.Graph {
			g := graph.New()
			x := g.AddInput()
			e := g.AddNode(graph.Exp, x, graph.Sentinel, graph.Sentinel)
			s := g.AddNode(graph.Sin, x, graph.Sentinel, graph.Sentinel)
			sum := g.AddNode(graph.Add, e, s, graph.Sentinel)
			g.MarkOutput(sum)
			return g
		},
		runs: []scenarioRun{
			{"x=0", []float64{0}},
			{"x=1", []float64{1}},
		},
	},
	{
		name:        "s3",
		description: "f(x) = x^2, d/dx",
		build: func() *graph.Graph {
			g := graph.New()
			x := g.AddInput()
			xSq := g.AddNode(graph.Square, x, graph.Sentinel, graph.Sentinel)
			g.MarkOutput(xSq)
			g.MarkDifferentiationInput(x)
			return g
		},
		runs: []scenarioRun{
			{"x=3", []float64{3}},
			{"x=-2", []float64{-2}},
		},
	},
	{
		name:        "s4",
		description: "f(x,y) = x*y + x^2, d/dx d/dy",
		build: func() *graph.Graph {
			g := graph.New()
			x := g.AddInput()
			y := g.AddInput()
			xy := g.AddNode(graph.Mul, x, y, graph.Sentinel)
			xSq := g.AddNode(graph.Square, x, graph.Sentinel, graph.Sentinel)
			sum := g.AddNode(graph.Add, xy, xSq, graph.Sentinel)
			g.MarkOutput(sum)
			g.MarkDifferentiationInput(x)
			g.MarkDifferentiationInput(y)
			return g
		},
		runs: []scenarioRun{
			{"x=2,y=3", []float64{2, 3}},
		},
	},
	{
		name:        "s5",
		description: "f(x) = x^2, packed4 lanes [1,2,3,4]",
		build: func() *graph.Graph {
			g := graph.New()
			x := g.AddInput()
			xSq := g.AddNode(graph.Square, x, graph.Sentinel, graph.Sentinel)
			g.MarkOutput(xSq)
			g.MarkDifferentiationInput(x)
			return g
		},
		runs: []scenarioRun{{"lanes=[1,2,3,4]", nil}},
	},
	{
		name:        "s6",
		description: "stability rewrite: 1/exp(x) vs exp(-x)",
		build: func() *graph.Graph {
			g := graph.New()
			x := g.AddInput()
			one := g.AddConstant(1.0)
			ex := g.AddNode(graph.Exp, x, graph.Sentinel, graph.Sentinel)
			lhs := g.AddNode(graph.Div, one, ex, graph.Sentinel)
			negX := g.AddNode(graph.Neg, x, graph.Sentinel, graph.Sentinel)
			rhs := g.AddNode(graph.Exp, negX, graph.Sentinel, graph.Sentinel)
			g.MarkOutput(lhs)
			g.MarkOutput(rhs)
			return g
		},
		runs: []scenarioRun{
			{"x=-40", []float64{-40}},
			{"x=-10", []float64{-10}},
			{"x=0", []float64{0}},
			{"x=10", []float64{10}},
			{"x=40", []float64{40}},
		},
	},
}

func findScenario(name string) (scenario, bool) {
	for _, s := range scenarios {
		if s.name == name {
			return s, true
		}
	}
	return scenario{}, false
}
