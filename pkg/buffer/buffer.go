// Package buffer implements the value/gradient buffer a compiled kernel
// reads its inputs from and writes its results and gradients to (spec.md
// section 3's value buffer, section 6's kernel-execution interface).
package buffer

import (
	"unsafe"

	"dagjit.dev/dagjit/pkg/graph"
	"dagjit.dev/dagjit/pkg/isa"
)

// ValueBuffer owns a value region of requiredNodes*width aligned doubles,
// an optional gradient region of the same shape, and the remap from the
// original (pre-optimization) node ids a caller thinks in terms of to the
// internal slot indices the compiled kernel actually addresses. No
// library in the retrieval pack provides aligned heap allocation; the
// over-allocate-and-slice technique below is built directly on the
// standard library's unsafe package (see DESIGN.md).
type ValueBuffer struct {
	iset          isa.InstructionSet
	requiredNodes int
	values        []float64
	gradients     []float64
	remap         *graph.Remap
}

// New allocates a ValueBuffer sized for requiredNodes slots under iset's
// vector width and alignment. remap may be nil (raw internal-slot
// addressing only). withGradients allocates a second, identically shaped
// region; a nil gradients slice signals "gradients not requested" to the
// kernel-execution interface.
func New(iset isa.InstructionSet, requiredNodes int, remap *graph.Remap, withGradients bool) *ValueBuffer {
	width := int(iset.Width())
	align := iset.Alignment()
	vb := &ValueBuffer{iset: iset, requiredNodes: requiredNodes, remap: remap}
	vb.values = alignedFloats(requiredNodes*width, align)
	if withGradients {
		vb.gradients = alignedFloats(requiredNodes*width, align)
	}
	return vb
}

// RequiredNodes returns the number of addressable node slots.
func (vb *ValueBuffer) RequiredNodes() int { return vb.requiredNodes }

// Width returns the vector width (1 for scalar, 4 for packed4) this
// buffer was sized for.
func (vb *ValueBuffer) Width() int { return int(vb.iset.Width()) }

// HasGradients reports whether a gradient region was allocated.
func (vb *ValueBuffer) HasGradients() bool { return vb.gradients != nil }

// resolve maps an original node id through the buffer's remap, returning
// the internal slot id. If no remap was supplied, id is used directly.
func (vb *ValueBuffer) resolve(id graph.NodeID) graph.NodeID {
	if vb.remap == nil {
		return id
	}
	return vb.remap.Get(id)
}

// SetInput writes lane-0..width-1 of an input node's slot by original
// node id.
func (vb *ValueBuffer) SetInput(id graph.NodeID, lanes ...float64) {
	vb.SetValue(id, lanes...)
}

// SetValue writes up to Width() lanes into slot id's value region,
// addressed by original node id (or directly by internal slot id when no
// remap is attached).
func (vb *ValueBuffer) SetValue(id graph.NodeID, lanes ...float64) {
	slot := vb.resolve(id)
	width := vb.Width()
	base := int(slot) * width
	for i, v := range lanes {
		if i >= width {
			break
		}
		vb.values[base+i] = v
	}
}

// Value reads the width lanes of slot id's value region.
func (vb *ValueBuffer) Value(id graph.NodeID) []float64 {
	slot := vb.resolve(id)
	width := vb.Width()
	base := int(slot) * width
	return append([]float64(nil), vb.values[base:base+width]...)
}

// Gradient reads the width lanes of slot id's gradient region. Panics if
// no gradient region was allocated.
func (vb *ValueBuffer) Gradient(id graph.NodeID) []float64 {
	slot := vb.resolve(id)
	width := vb.Width()
	base := int(slot) * width
	return append([]float64(nil), vb.gradients[base:base+width]...)
}

// ValuesPtr returns the address of the first value double, the pointer a
// compiled kernel's `values` argument expects.
func (vb *ValueBuffer) ValuesPtr() uintptr {
	return uintptr(unsafe.Pointer(&vb.values[0]))
}

// GradientsPtr returns the address of the first gradient double, or 0
// (null) when no gradient region is present.
func (vb *ValueBuffer) GradientsPtr() uintptr {
	if vb.gradients == nil {
		return 0
	}
	return uintptr(unsafe.Pointer(&vb.gradients[0]))
}

func alignedFloats(n, byteAlign int) []float64 {
	if n <= 0 {
		n = 0
	}
	if byteAlign <= 8 {
		return make([]float64, n)
	}
	extraElems := byteAlign/8 - 1
	raw := make([]float64, n+extraElems)
	if n == 0 {
		return raw[:0]
	}
	addr := uintptr(unsafe.Pointer(&raw[0]))
	misalignment := addr % uintptr(byteAlign)
	if misalignment == 0 {
		return raw[:n]
	}
	offsetBytes := uintptr(byteAlign) - misalignment
	offsetElems := int(offsetBytes / 8)
	return raw[offsetElems : offsetElems+n]
}
