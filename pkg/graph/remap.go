package graph

// Remap maps original node ids to ids in a transformed graph. A pass that
// eliminates a node records Sentinel for its original id rather than
// mutating the graph in place (spec section 9: "transformations produce a
// new graph plus a remap table rather than mutating in place").
type Remap struct {
	table []NodeID
}

// NewRemap returns a remap sized for n original ids, identity-initialized
// to Sentinel (every id starts "not yet placed").
func NewRemap(n int) *Remap {
	r := &Remap{table: make([]NodeID, n)}
	for i := range r.table {
		r.table[i] = Sentinel
	}
	return r
}

// Set records that original id `from` now lives at `to` in the new graph.
func (r *Remap) Set(from, to NodeID) { r.table[from] = to }

// Get returns the new id for `from`, or Sentinel if `from` was eliminated
// or is otherwise unresolved.
func (r *Remap) Get(from NodeID) NodeID {
	if from == Sentinel || int(from) >= len(r.table) {
		return Sentinel
	}
	return r.table[from]
}

// Resolve maps an operand id through the remap, passing Sentinel through
// unchanged.
func (r *Remap) Resolve(id NodeID) NodeID {
	if id == Sentinel {
		return Sentinel
	}
	return r.Get(id)
}

// Compose returns a remap equivalent to applying r first, then next: for
// every original id i, Compose(r, next).Get(i) == next.Get(r.Get(i)).
// Used by the orchestrator to fold stability-cleaning's remap with the
// optimizer's remap (spec section 4.9, step 15).
func Compose(first, second *Remap) *Remap {
	out := &Remap{table: make([]NodeID, len(first.table))}
	for i, mid := range first.table {
		if mid == Sentinel {
			out.table[i] = Sentinel
			continue
		}
		out.table[i] = second.Get(mid)
	}
	return out
}

// Len returns the number of original ids this remap covers.
func (r *Remap) Len() int { return len(r.table) }
