// Command dagjitc is a small inspection/demo CLI over the dagjit compiler.
// It is not the out-of-scope recorder or stable-ABI shim spec.md section 1
// names: it builds the fixed end-to-end scenarios of spec.md section 8
// directly with pkg/graph's builder methods, compiles each one, runs it
// against a pkg/buffer.ValueBuffer, and prints the results, exercising the
// configuration toggles spec.md section 6 enumerates.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dagjit.dev/dagjit/pkg/engine"
	"dagjit.dev/dagjit/pkg/graph"
	"dagjit.dev/dagjit/pkg/optimize"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		enableOpt     bool
		noCSE         bool
		noAlgebraic   bool
		noFolding     bool
		noStability   bool
		pinHotConsts  bool
		maxPasses     int
		isetName      string
		printGraph    bool
		printAssembly bool
		printStats    bool
	)

	root := &cobra.Command{
		Use:   "dagjitc [scenario]",
		Short: "Compile and run the spec's end-to-end dataflow scenarios (S1-S6)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := engine.Config{
				Optimize: optimize.Config{
					EnableOptimizations:           enableOpt,
					EnableInactiveFolding:         !noFolding,
					EnableCSE:                     !noCSE,
					EnableAlgebraicSimplification: !noAlgebraic,
					EnableStabilityCleaning:       !noStability,
					MaxOptimizationPasses:         maxPasses,
					PinHotConstants:               pinHotConsts,
				},
				PrintStats: printStats,
			}
			switch isetName {
			case "scalar":
				cfg.InstructionSet = engine.Scalar
			case "packed4":
				cfg.InstructionSet = engine.Packed4
			default:
				return fmt.Errorf("unrecognized -iset %q (want scalar or packed4)", isetName)
			}

			targets := scenarios
			if len(args) == 1 {
				s, ok := findScenario(args[0])
				if !ok {
					return fmt.Errorf("unknown scenario %q", args[0])
				}
				targets = []scenario{s}
			}

			for _, s := range targets {
				if err := runScenario(s, cfg, printGraph, printAssembly); err != nil {
					return fmt.Errorf("%s: %w", s.name, err)
				}
			}
			return nil
		},
	}

	flags := root.Flags()
	flags.BoolVar(&enableOpt, "opt", true, "enable optimization passes (master switch)")
	flags.BoolVar(&noCSE, "no-cse", false, "disable common-subexpression elimination")
	flags.BoolVar(&noAlgebraic, "no-algebraic", false, "disable algebraic simplification")
	flags.BoolVar(&noFolding, "no-inactive-folding", false, "disable inactive-subgraph folding")
	flags.BoolVar(&noStability, "no-stability", false, "disable stability cleaning")
	flags.BoolVar(&pinHotConsts, "pin-hot-constants", false, "enable optional hot-constant register pinning")
	flags.IntVar(&maxPasses, "max-passes", 16, "maximum optimizer fixed-point passes (0 disables optimization)")
	flags.StringVar(&isetName, "iset", "scalar", "instruction set: scalar or packed4")
	flags.BoolVar(&printGraph, "print-graph", false, "print the scenario's graph as built, before optimization")
	flags.BoolVar(&printAssembly, "print-assembly", false, "print a hex dump of the emitted function")
	flags.BoolVar(&printStats, "print-stats", false, "log optimizer pass statistics (glog -v=1)")

	return root
}

func runScenario(s scenario, cfg engine.Config, printGraph, printAssembly bool) error {
	fmt.Printf("=== %s: %s ===\n", s.name, s.description)

	g := s.build()
	kernel, err := engine.Compile(g, cfg)
	if err != nil {
		return err
	}
	defer kernel.Release()

	if printGraph {
		fmt.Print(g.Dump())
	}
	if printAssembly {
		fmt.Printf("code: %d bytes, pool: %d bytes\n%s", kernel.CodeSize(), kernel.PoolSize(), kernel.Disassemble())
	}

	inputIDs := collectInputIDs(g)

	for _, run := range s.runs {
		buf := kernel.NewValueBuffer()
		if run.inputs != nil {
			for i, v := range run.inputs {
				if i < len(inputIDs) {
					broadcast(buf, inputIDs[i], v, kernel.Width())
				}
			}
		} else {
			// S5: broadcast distinct lane values [1,2,3,4] onto the single
			// input rather than a uniform scalar.
			buf.SetInput(inputIDs[0], 1, 2, 3, 4)
		}

		if err := kernel.Run(buf); err != nil {
			return err
		}

		for _, out := range g.Outputs {
			fmt.Printf("  [%s] output(%d) = %v\n", run.label, out, buf.Value(out))
		}
		if kernel.HasGradients() {
			for _, id := range g.DifferentiationInputs {
				fmt.Printf("  [%s] gradient(%d) = %v\n", run.label, id, buf.Gradient(id))
			}
		}
	}
	fmt.Println()
	return nil
}

func collectInputIDs(g *graph.Graph) []graph.NodeID {
	var ids []graph.NodeID
	for i := range g.Nodes {
		if g.Nodes[i].Op == graph.Input {
			ids = append(ids, graph.NodeID(i))
		}
	}
	return ids
}

func broadcast(buf interface {
	SetInput(id graph.NodeID, lanes ...float64)
}, id graph.NodeID, v float64, width int) {
	lanes := make([]float64, width)
	for i := range lanes {
		lanes[i] = v
	}
	buf.SetInput(id, lanes...)
}
