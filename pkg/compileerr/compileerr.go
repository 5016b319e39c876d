// Package compileerr defines the small closed error taxonomy every stage of
// compilation and execution reports through (spec section 7), the way
// oisee-z80-optimizer's pkg/inst closes its OpCode alphabet over a small
// int enum rather than an open string-keyed error space.
package compileerr

import "fmt"

// Kind closes the set of ways compilation or execution can fail.
type Kind int

const (
	// Structural reports a graph-level invariant violation: a forward
	// reference, an out-of-range constant index, or an unknown
	// output/differentiation-input id. Detected during validation or at
	// first access.
	Structural Kind = iota
	// Resource reports failure to allocate aligned storage or executable
	// memory.
	Resource
	// Allocator reports that the register allocator could not find an
	// assignable slot even after eviction, which indicates a lock-
	// discipline bug in the emitter rather than a user error.
	Allocator
	// ExecutionPrecondition reports a kernel invoked against a buffer
	// whose required_nodes is too small, or whose vector width does not
	// match the kernel's.
	ExecutionPrecondition
)

func (k Kind) String() string {
	switch k {
	case Structural:
		return "structural"
	case Resource:
		return "resource"
	case Allocator:
		return "allocator"
	case ExecutionPrecondition:
		return "execution-precondition"
	default:
		return "unknown"
	}
}

// CompileError is the single error type returned across package
// boundaries for every compile/execution failure; Kind lets callers
// branch on the taxonomy without parsing message text.
type CompileError struct {
	Kind Kind
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New builds a CompileError of the given kind.
func New(kind Kind, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
