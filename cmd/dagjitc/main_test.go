package main

import (
	"math"
	"testing"

	"dagjit.dev/dagjit/pkg/engine"
)

// TestScenariosCompileAndRun is the smoke check SPEC_FULL.md promises: every
// demo scenario must compile and execute without error under the default
// configuration, across both instruction sets.
func TestScenariosCompileAndRun(t *testing.T) {
	for _, iset := range []engine.InstructionSetName{engine.Scalar, engine.Packed4} {
		for _, s := range scenarios {
			t.Run(string(iset)+"/"+s.name, func(t *testing.T) {
				cfg := engine.DefaultConfig()
				cfg.InstructionSet = iset
				g := s.build()
				kernel, err := engine.Compile(g, cfg)
				if err != nil {
					t.Fatalf("compile: %v", err)
				}
				defer kernel.Release()

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
						buf.SetInput(inputIDs[0], 1, 2, 3, 4)
					}
					if err := kernel.Run(buf); err != nil {
						t.Fatalf("run %s: %v", run.label, err)
					}
					for _, out := range g.Outputs {
						for _, v := range buf.Value(out) {
							if math.IsNaN(v) {
								t.Fatalf("run %s: output(%d) is NaN", run.label, out)
							}
						}
					}
				}
			})
		}
	}
}

// TestS1ExactValues checks spec.md section 8's S1 numbers exactly: scalar
// polynomial evaluation has no rounding ambiguity at these inputs.
func TestS1ExactValues(t *testing.T) {
	s, ok := findScenario("s1")
	if !ok {
		t.Fatal("scenario s1 not registered")
	}
	g := s.build()
	kernel, err := engine.Compile(g, engine.DefaultConfig())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer kernel.Release()

	inputIDs := collectInputIDs(g)
	want := map[string]float64{"x=3": 16.0, "x=-1": 0.0}
	for _, run := range s.runs {
		buf := kernel.NewValueBuffer()
		broadcast(buf, inputIDs[0], run.inputs[0], kernel.Width())
		if err := kernel.Run(buf); err != nil {
			t.Fatalf("run %s: %v", run.label, err)
		}
		got := buf.Value(g.Outputs[0])[0]
		if got != want[run.label] {
			t.Errorf("%s: got %v, want %v", run.label, got, want[run.label])
		}
	}
}

// TestS3Gradient checks spec.md section 8's S3 value/gradient pairs.
func TestS3Gradient(t *testing.T) {
	s, ok := findScenario("s3")
	if !ok {
		t.Fatal("scenario s3 not registered")
	}
	g := s.build()
	kernel, err := engine.Compile(g, engine.DefaultConfig())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer kernel.Release()
	if !kernel.HasGradients() {
		t.Fatal("expected a reverse pass for a graph with differentiation inputs")
	}

	inputIDs := collectInputIDs(g)
	type want struct{ value, grad float64 }
	wants := map[string]want{"x=3": {9.0, 6.0}, "x=-2": {4.0, -4.0}}
	for _, run := range s.runs {
		buf := kernel.NewValueBuffer()
		broadcast(buf, inputIDs[0], run.inputs[0], kernel.Width())
		if err := kernel.Run(buf); err != nil {
			t.Fatalf("run %s: %v", run.label, err)
		}
		w := wants[run.label]
		if got := buf.Value(g.Outputs[0])[0]; got != w.value {
			t.Errorf("%s: value got %v want %v", run.label, got, w.value)
		}
		if got := buf.Gradient(inputIDs[0])[0]; got != w.grad {
			t.Errorf("%s: gradient got %v want %v", run.label, got, w.grad)
		}
	}
}

// TestS5Packed checks spec.md section 8's S5 lane-wise values and gradients.
func TestS5Packed(t *testing.T) {
	s, ok := findScenario("s5")
	if !ok {
		t.Fatal("scenario s5 not registered")
	}
	cfg := engine.DefaultConfig()
	cfg.InstructionSet = engine.Packed4
	g := s.build()
	kernel, err := engine.Compile(g, cfg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer kernel.Release()

	inputIDs := collectInputIDs(g)
	buf := kernel.NewValueBuffer()
	buf.SetInput(inputIDs[0], 1, 2, 3, 4)
	if err := kernel.Run(buf); err != nil {
		t.Fatalf("run: %v", err)
	}
	wantValues := []float64{1, 4, 9, 16}
	wantGrads := []float64{2, 4, 6, 8}
	gotValues := buf.Value(g.Outputs[0])
	gotGrads := buf.Gradient(inputIDs[0])
	for i := range wantValues {
		if gotValues[i] != wantValues[i] {
			t.Errorf("lane %d: value got %v want %v", i, gotValues[i], wantValues[i])
		}
		if gotGrads[i] != wantGrads[i] {
			t.Errorf("lane %d: gradient got %v want %v", i, gotGrads[i], wantGrads[i])
		}
	}
}

// TestS6StabilityAgreement checks spec.md section 8's S6: 1/exp(x) and
// exp(-x) must agree to relative 1e-12 across the listed x values, which is
// only true once the stability cleaner rewrites the Div/Exp form.
func TestS6StabilityAgreement(t *testing.T) {
	s, ok := findScenario("s6")
	if !ok {
		t.Fatal("scenario s6 not registered")
	}
	g := s.build()
	kernel, err := engine.Compile(g, engine.DefaultConfig())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer kernel.Release()

	inputIDs := collectInputIDs(g)
	for _, run := range s.runs {
		buf := kernel.NewValueBuffer()
		broadcast(buf, inputIDs[0], run.inputs[0], kernel.Width())
		if err := kernel.Run(buf); err != nil {
			t.Fatalf("run %s: %v", run.label, err)
		}
		lhs := buf.Value(g.Outputs[0])[0]
		rhs := buf.Value(g.Outputs[1])[0]
		rel := math.Abs(lhs-rhs) / math.Max(math.Abs(rhs), 1e-300)
		if rel > 1e-12 {
			t.Errorf("%s: 1/exp(x)=%v exp(-x)=%v relative diff %v exceeds 1e-12", run.label, lhs, rhs, rel)
		}
	}
}
