// Package regalloc implements the fixed-size vector register file the
// forward and reverse emitters share during one compilation (spec section
// 4.5). It tracks, per slot, which graph node currently occupies it, a
// lock bit pinning it for the instruction under construction, a dirty bit
// marking it as owing a writeback, an LRU counter for eviction choice, and
// a blacklist bit for registers a backend must never hand out.
package regalloc

import "dagjit.dev/dagjit/pkg/graph"

// empty marks a slot as holding no node.
const empty = graph.Sentinel

type slot struct {
	node      graph.NodeID
	locked    bool
	dirty     bool
	lru       uint64
	blacklist bool
	pinned    bool
}

// File is the register allocator for one compilation. It is not safe for
// concurrent use; spec section 5 scopes one File to one in-flight
// compilation.
type File struct {
	slots []slot
	clock uint64
}

// New builds a File with n slots, none blacklisted. n is ordinarily
// isa.NumRegs, but the allocator is parameterized by slot count rather than
// hardcoding it (spec section 9: "parameterized by a compile-time register
// count").
func New(n int) *File {
	f := &File{slots: make([]slot, n)}
	for i := range f.slots {
		f.slots[i].node = empty
	}
	return f
}

// NumSlots reports the register file's width.
func (f *File) NumSlots() int { return len(f.slots) }

// Blacklist marks idx as never eligible for allocate, a workaround for
// registers a specific backend cannot trust (spec section 4.5).
func (f *File) Blacklist(idx int) { f.slots[idx].blacklist = true }

// Find returns the slot currently holding node, or (-1, false) if node is
// not resident in any register.
func (f *File) Find(node graph.NodeID) (int, bool) {
	for i := range f.slots {
		if f.slots[i].node == node {
			return i, true
		}
	}
	return -1, false
}

// ErrNoSlot is returned by Allocate when every slot is locked or
// blacklisted. Spec section 4.5 notes this "should not occur for
// well-formed emission with bounded simultaneous locks" — it signals a
// forward/reverse emitter bug, not a user-graph error.
type ErrNoSlot struct{}

func (ErrNoSlot) Error() string { return "regalloc: no eligible slot (all locked or blacklisted)" }

// Allocate picks a slot for a new value: an empty, unlocked,
// non-blacklisted slot if one exists, otherwise the least-recently-used
// unlocked, non-blacklisted occupied slot. avoid excludes additional slots
// from consideration (the current instruction's other already-locked
// operands, as a belt-and-suspenders check alongside the lock bit).
func (f *File) Allocate(avoid []int) (int, error) {
	isAvoided := func(i int) bool {
		for _, a := range avoid {
			if a == i {
				return true
			}
		}
		return false
	}
	for i := range f.slots {
		s := &f.slots[i]
		if s.node == empty && !s.locked && !s.blacklist && !s.pinned && !isAvoided(i) {
			return i, nil
		}
	}
	best := -1
	var bestLRU uint64
	for i := range f.slots {
		s := &f.slots[i]
		if s.locked || s.blacklist || s.pinned || isAvoided(i) {
			continue
		}
		if best == -1 || s.lru < bestLRU {
			best = i
			bestLRU = s.lru
		}
	}
	if best == -1 {
		return -1, ErrNoSlot{}
	}
	return best, nil
}

// Lock pins idx so Allocate will never select it, protecting an operand
// slot for the duration of the current instruction's expansion.
func (f *File) Lock(idx int) { f.slots[idx].locked = true }

// Unlock releases a previously locked slot.
func (f *File) Unlock(idx int) { f.slots[idx].locked = false }

// IsLocked reports whether idx is currently locked.
func (f *File) IsLocked(idx int) bool { return f.slots[idx].locked }

// MarkDirty flags idx as owing a writeback before its contents may be
// discarded or evicted.
func (f *File) MarkDirty(idx int) { f.slots[idx].dirty = true }

// MarkClean clears idx's dirty bit, typically right after a writeback.
func (f *File) MarkClean(idx int) { f.slots[idx].dirty = false }

// IsDirty reports whether idx owes a writeback.
func (f *File) IsDirty(idx int) bool { return f.slots[idx].dirty }

// Set installs node into idx, touching its LRU counter and clearing the
// lock bit implicitly left over from a prior instruction (the caller is
// expected to re-lock if needed).
func (f *File) Set(idx int, node graph.NodeID, dirty bool) {
	f.clock++
	f.slots[idx] = slot{node: node, dirty: dirty, lru: f.clock, blacklist: f.slots[idx].blacklist, pinned: f.slots[idx].pinned}
}

// Pin marks idx as permanently resident: Allocate will never select it for
// eviction or reuse until Unpin is called. Used by the optional
// hot-constant-pinning pass (spec section 4.6) to keep a frequently read
// constant in a callee-preserved register across the whole function body.
func (f *File) Pin(idx int) { f.slots[idx].pinned = true }

// Unpin releases a previously pinned slot.
func (f *File) Unpin(idx int) { f.slots[idx].pinned = false }

// IsPinned reports whether idx is currently pinned.
func (f *File) IsPinned(idx int) bool { return f.slots[idx].pinned }

// Touch refreshes idx's LRU counter without changing its contents, used
// whenever an already-resident value is read again.
func (f *File) Touch(idx int) {
	f.clock++
	f.slots[idx].lru = f.clock
}

// GetNode reports which node idx currently holds, or (Sentinel, false) if
// empty.
func (f *File) GetNode(idx int) (graph.NodeID, bool) {
	n := f.slots[idx].node
	return n, n != empty
}

// Evict clears idx back to empty, discarding its contents without a
// writeback; callers must have already flushed a dirty slot before
// calling this.
func (f *File) Evict(idx int) {
	f.slots[idx] = slot{node: empty, blacklist: f.slots[idx].blacklist}
}

// InvalidateVolatile clears every slot in [lo, hi] back to empty, dropping
// dirty bits along with the contents (spec section 4.5: "clears the
// ABI-volatile range"). The forward/reverse emitter calls this
// immediately after every transcendental callout, since the callee may
// have clobbered that range; any pending writebacks for those slots must
// already have happened before the call, never after.
func (f *File) InvalidateVolatile(lo, hi int) {
	for i := lo; i <= hi; i++ {
		f.slots[i] = slot{node: empty, blacklist: f.slots[i].blacklist}
	}
}
