// Package optimize implements the optimizer passes: inactive-subgraph
// folding, algebraic simplification, and common-subexpression elimination,
// iterated to a fixed point under a configurable pass limit.
package optimize

// Config toggles which passes run and how many times the fixed-point loop
// may iterate. The zero value disables everything (EnableOptimizations
// false, MaxPasses 0), matching spec section 6's "max_optimization_passes —
// integer, zero disables".
type Config struct {
	EnableOptimizations bool

	EnableInactiveFolding         bool
	EnableCSE                     bool
	EnableAlgebraicSimplification bool
	EnableStabilityCleaning       bool

	MaxOptimizationPasses int

	// PinHotConstants enables the optional hot-constant-pinning
	// optimization described in spec section 4.6. Disabled by default;
	// see SPEC_FULL.md's "supplemented features" section.
	PinHotConstants bool
}

// DefaultConfig returns the configuration with every pass enabled and a
// generous pass limit, matching spec section 6's "enable_optimizations —
// master switch" default posture.
func DefaultConfig() Config {
	return Config{
		EnableOptimizations:           true,
		EnableInactiveFolding:         true,
		EnableCSE:                     true,
		EnableAlgebraicSimplification: true,
		EnableStabilityCleaning:       true,
		MaxOptimizationPasses:         16,
	}
}
