package optimize

import (
	"time"

	"dagjit.dev/dagjit/pkg/graph"
)

// PassStats records one fixed-point iteration's effect, for the
// observability the optimizer's spec section requires.
type PassStats struct {
	FoldedInactive int
	Algebraic      int
	CSE            int
	Duration       time.Duration
}

// Stats summarizes the whole optimization run.
type Stats struct {
	Passes      []PassStats
	NodesBefore int
	NodesAfter  int // live node count after the run
	Duration    time.Duration
}

// Run iterates inactive folding, algebraic simplification, and CSE (in that
// order within each pass, per spec section 4.2) until a pass makes no
// further progress or cfg.MaxOptimizationPasses is reached. It returns the
// optimized graph, a remap from src's ids to the optimized graph's ids
// (identity except where a rewrite aliased a node to an earlier one), and
// observability stats.
//
// When cfg.EnableOptimizations is false, or MaxOptimizationPasses is zero,
// the graph is returned unchanged with an identity remap.
func Run(src *graph.Graph, cfg Config) (*graph.Graph, *graph.Remap, Stats) {
	start := time.Now()
	stats := Stats{NodesBefore: src.NumNodes()}

	if !cfg.EnableOptimizations || cfg.MaxOptimizationPasses <= 0 {
		remap := graph.NewRemap(src.NumNodes())
		for i := 0; i < src.NumNodes(); i++ {
			remap.Set(graph.NodeID(i), graph.NodeID(i))
		}
		stats.NodesAfter = countLive(src.Nodes)
		stats.Duration = time.Since(start)
		return src.Clone(), remap, stats
	}

	s := newState(src)

	for pass := 0; pass < cfg.MaxOptimizationPasses; pass++ {
		passStart := time.Now()
		s.canonicalizeOperands()

		var folded, algebraic, cse int
		if cfg.EnableInactiveFolding {
			folded = foldInactive(s)
		}
		s.canonicalizeOperands()
		if cfg.EnableAlgebraicSimplification {
			algebraic = simplifyAlgebraic(s)
		}
		s.canonicalizeOperands()
		if cfg.EnableCSE {
			cse = eliminateCSE(s)
		}

		stats.Passes = append(stats.Passes, PassStats{
			FoldedInactive: folded,
			Algebraic:      algebraic,
			CSE:            cse,
			Duration:       time.Since(passStart),
		})

		if folded == 0 && algebraic == 0 && cse == 0 {
			break
		}
	}
	s.canonicalizeOperands()

	out := s.toGraph()

	remap := graph.NewRemap(src.NumNodes())
	for i := 0; i < src.NumNodes(); i++ {
		id := graph.NodeID(i)
		remap.Set(id, s.resolve(id))
	}

	for _, o := range src.Outputs {
		out.MarkOutput(remap.Get(o))
	}
	for _, d := range src.DifferentiationInputs {
		out.MarkDifferentiationInput(remap.Get(d))
	}

	stats.NodesAfter = countLive(out.Nodes)
	stats.Duration = time.Since(start)
	return out, remap, stats
}

func countLive(nodes []graph.Node) int {
	n := 0
	for _, node := range nodes {
		if !node.IsDead {
			n++
		}
	}
	return n
}
