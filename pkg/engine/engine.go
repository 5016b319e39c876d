// Package engine implements the compiler orchestrator (spec.md section
// 4.9): it sequences validation, stability cleaning, optimization,
// gradient propagation, constant-pool construction, code emission, and
// finalization into executable memory, and hands back a CompiledKernel.
package engine

import (
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"

	"dagjit.dev/dagjit/internal/jit"
	"dagjit.dev/dagjit/internal/mathstub"
	"dagjit.dev/dagjit/internal/trace"
	"dagjit.dev/dagjit/pkg/buffer"
	"dagjit.dev/dagjit/pkg/codegen"
	"dagjit.dev/dagjit/pkg/compileerr"
	"dagjit.dev/dagjit/pkg/constpool"
	"dagjit.dev/dagjit/pkg/graph"
	"dagjit.dev/dagjit/pkg/gradient"
	"dagjit.dev/dagjit/pkg/isa"
	"dagjit.dev/dagjit/pkg/optimize"
	"dagjit.dev/dagjit/pkg/stability"
)

// InstructionSetName selects which InstructionSet a Config compiles
// against (spec.md section 6: "instruction_set — one of {scalar,
// packed4}").
type InstructionSetName string

const (
	Scalar  InstructionSetName = "scalar"
	Packed4 InstructionSetName = "packed4"
)

// Config bundles the optimizer's Config with the engine-level toggles
// spec.md section 6 enumerates.
type Config struct {
	Optimize optimize.Config

	InstructionSet InstructionSetName

	// TraceCapacity, when positive, enables internal/trace's ring of
	// (node id, code offset) records, filled at compile time, at this many
	// records; zero (the default) leaves tracing off. The compiled kernel
	// records nothing when it runs.
	TraceCapacity int

	// PrintStats logs optimizer pass statistics via glog.V(1) (spec.md
	// section 4.2: "Statistics ... are recorded for observability").
	PrintStats bool
}

// DefaultConfig returns every pass enabled, scalar instruction set, no
// tracing.
func DefaultConfig() Config {
	return Config{Optimize: optimize.DefaultConfig(), InstructionSet: Scalar}
}

// instructionSetEnvVar is the override spec.md section 6 names.
const instructionSetEnvVar = "DAGJIT_INSTRUCTION_SET"

// hotConstMinUses/hotConstMaxPinned bound the optional hot-constant-pinning
// pass (spec section 4.6): a constant needs at least this many live
// referencing nodes to be worth a dedicated register, and at most this many
// get pinned regardless of how many qualify.
const (
	hotConstMinUses   = 2
	hotConstMaxPinned = 3
)

func (cfg Config) resolveISet() (isa.InstructionSet, error) {
	name := cfg.InstructionSet
	if env := os.Getenv(instructionSetEnvVar); env != "" {
		mapped, err := mapEnvInstructionSet(env)
		if err != nil {
			return nil, err
		}
		name = mapped
	}
	switch name {
	case Scalar, "":
		return isa.Scalar, nil
	case Packed4:
		return isa.Packed4, nil
	default:
		return nil, compileerr.New(compileerr.Structural, "unrecognized instruction set %q", name)
	}
}

func mapEnvInstructionSet(env string) (InstructionSetName, error) {
	switch env {
	case "scalar", "SSE2-Scalar", "SSE2":
		return Scalar, nil
	case "packed4", "AVX2-Packed", "AVX2":
		return Packed4, nil
	default:
		return "", compileerr.New(compileerr.Structural, "unrecognized %s value %q", instructionSetEnvVar, env)
	}
}

// CompiledKernel is the finalized artifact of Compile: executable memory
// plus the metadata needed to build matching value buffers and translate
// original graph node ids into internal slots (spec.md section 4.9 step
// 15: "package as a compiled kernel with the composed remap, the maximum
// node id accessed, and the vector width").
type CompiledKernel struct {
	region        *jit.Region
	remap         *graph.Remap
	requiredNodes int
	iset          isa.InstructionSet
	hasGradients  bool
	trace         *trace.Ring
	codeLen       int
	poolLen       int
}

// Remap exposes the composed original-id -> internal-slot remap.
func (k *CompiledKernel) Remap() *graph.Remap { return k.remap }

// RequiredNodes returns the internal node-slot count a value buffer for
// this kernel must be sized for.
func (k *CompiledKernel) RequiredNodes() int { return k.requiredNodes }

// Width returns the kernel's vector width (1 scalar, 4 packed4).
func (k *CompiledKernel) Width() int { return int(k.iset.Width()) }

// HasGradients reports whether this kernel emits a reverse pass.
func (k *CompiledKernel) HasGradients() bool { return k.hasGradients }

// NewValueBuffer allocates a ValueBuffer correctly sized and aligned for
// this kernel, bound to its remap so callers may address slots by
// original node id.
func (k *CompiledKernel) NewValueBuffer() *buffer.ValueBuffer {
	return buffer.New(k.iset, k.requiredNodes, k.remap, k.hasGradients)
}

// Trace returns the compile-time (node id, code offset) ring (nil unless
// Config.TraceCapacity was positive at compile time).
func (k *CompiledKernel) Trace() *trace.Ring { return k.trace }

// CodeSize and PoolSize report the finalized image's function-body and
// constant-pool byte lengths, for the observational -print-assembly debug
// flag (spec.md section 6); never consulted by the compiler itself.
func (k *CompiledKernel) CodeSize() int { return k.codeLen }
func (k *CompiledKernel) PoolSize() int { return k.poolLen }

// Disassemble renders the finalized image as a flat hex dump keyed by
// byte offset from the entry point. spec.md section 1 scopes a real x86-64
// disassembler out of the core (no opcode mnemonics are recovered); this is
// the observational primitive the -print-assembly flag has to work with.
func (k *CompiledKernel) Disassemble() string {
	total := k.codeLen + k.poolLen
	if total > k.region.Size() {
		total = k.region.Size()
	}
	b := make([]byte, total)
	for i := range b {
		b[i] = k.region.ByteAt(i)
	}
	var out strings.Builder
	for i := 0; i < len(b); i += 16 {
		end := i + 16
		if end > len(b) {
			end = len(b)
		}
		fmt.Fprintf(&out, "%08x: % x\n", i, b[i:end])
	}
	return out.String()
}

// Run executes the compiled kernel against buf (spec.md section 6's
// kernel-execution interface). buf must have been sized by this kernel's
// NewValueBuffer (or an equivalent buffer whose RequiredNodes/Width
// match); a mismatch is refused as an ExecutionPrecondition, per spec.md
// section 7.
func (k *CompiledKernel) Run(buf *buffer.ValueBuffer) error {
	if buf.RequiredNodes() < k.requiredNodes {
		return compileerr.New(compileerr.ExecutionPrecondition,
			"buffer has %d node slots, kernel requires at least %d", buf.RequiredNodes(), k.requiredNodes)
	}
	if buf.Width() != k.Width() {
		return compileerr.New(compileerr.ExecutionPrecondition,
			"buffer vector width %d does not match kernel width %d", buf.Width(), k.Width())
	}
	if k.hasGradients && !buf.HasGradients() {
		return compileerr.New(compileerr.ExecutionPrecondition,
			"kernel needs gradients but buffer has no gradient region")
	}

	gradPtr := buf.GradientsPtr()
	jit.CallKernel(k.region.EntryPoint(), buf.ValuesPtr(), gradPtr, buf.RequiredNodes())
	return nil
}

// Release frees the kernel's executable memory immediately rather than
// waiting for the garbage collector to run its finalizer.
func (k *CompiledKernel) Release() { k.region.Release() }

// Compile runs the full pipeline of spec.md section 4.9 over src and
// returns a finalized, runnable CompiledKernel.
func Compile(src *graph.Graph, cfg Config) (*CompiledKernel, error) {
	if err := src.Validate(); err != nil {
		return nil, compileerr.New(compileerr.Structural, "%v", err)
	}

	iset, err := cfg.resolveISet()
	if err != nil {
		return nil, err
	}

	stableGraph := src
	stableRemap := identityRemap(src.NumNodes())
	fixCount := 0
	if cfg.Optimize.EnableStabilityCleaning {
		result := stability.Clean(src)
		stableGraph, stableRemap, fixCount = result.Graph, result.Remap, result.FixCount
	}
	glog.V(1).Infof("engine: stability cleaning applied %d rewrites", fixCount)

	optimized, remap2, stats := optimize.Run(stableGraph, cfg.Optimize)
	if cfg.PrintStats {
		glog.V(1).Infof("engine: optimize passes=%d nodes %d -> %d in %s",
			len(stats.Passes), stats.NodesBefore, stats.NodesAfter, stats.Duration)
	}

	gradient.Propagate(optimized)

	composed := graph.Compose(stableRemap, remap2)

	buf := isa.NewBuffer()
	ctx := codegen.NewContext(buf, optimized, iset)
	if cfg.TraceCapacity > 0 {
		ctx.Trace = trace.New(cfg.TraceCapacity)
	}

	frameSize := isa.CalleeFrameSize(iset)
	iset.EmitPrologue(buf)
	isa.EmitStackReserve(buf, frameSize)
	iset.EmitSaveCallee(buf, 0)
	iset.EmitArgumentShuffle(buf)

	if cfg.Optimize.PinHotConstants {
		codegen.PinHotConstants(ctx, hotConstMinUses, hotConstMaxPinned)
	}

	if err := codegen.EmitForward(ctx); err != nil {
		return nil, err
	}

	hasGradients := optimized.HasGradientInputs()
	if hasGradients {
		if err := codegen.EmitReverse(ctx); err != nil {
			return nil, err
		}
	}

	iset.EmitRestoreCallee(buf, 0)
	isa.EmitStackRelease(buf, frameSize)
	iset.EmitEpilogue(buf)

	buf.BindLabel(ctx.PoolLabel)
	poolBytes := ctx.Pool.Bytes()

	if err := buf.ResolveLabels(); err != nil {
		return nil, compileerr.New(compileerr.Resource, "%v", err)
	}

	region, err := jit.ReserveRW(len(buf.Code) + len(poolBytes))
	if err != nil {
		return nil, compileerr.New(compileerr.Resource, "%v", err)
	}
	baseAddr := int(region.EntryPoint())
	if err := buf.ResolveCalls(baseAddr, mathstub.Resolve); err != nil {
		return nil, compileerr.New(compileerr.Resource, "%v", err)
	}
	image := append(append([]byte(nil), buf.Code...), poolBytes...)
	if err := region.Commit(image); err != nil {
		return nil, compileerr.New(compileerr.Resource, "%v", err)
	}

	return &CompiledKernel{
		region:        region,
		remap:         composed,
		requiredNodes: optimized.NumNodes(),
		iset:          iset,
		hasGradients:  hasGradients,
		trace:         ctx.Trace,
		codeLen:       len(buf.Code),
		poolLen:       len(poolBytes),
	}, nil
}

func identityRemap(n int) *graph.Remap {
	r := graph.NewRemap(n)
	for i := 0; i < n; i++ {
		r.Set(graph.NodeID(i), graph.NodeID(i))
	}
	return r
}
