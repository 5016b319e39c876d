// Package jit owns the process-wide executable-memory arena that backs
// every compiled kernel. Regions are mmap'd read-write, filled with the
// finalized code+pool image, then remapped read-exec; no region is ever
// shared between two kernels and no region is writable once a kernel has
// been handed its entry point.
package jit

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/golang/glog"
)

// Region is one mmap'd slab of executable memory owned by exactly one
// compiled kernel.
type Region struct {
	mem   []byte
	freed atomic.Bool
}

// EntryPoint returns the address of the first byte of mem, the base a
// kernel calls into and the same value the orchestrator must subtract
// from absolute callout targets when resolving call fixups.
func (r *Region) EntryPoint() uintptr {
	return uintptr(unsafe.Pointer(&r.mem[0]))
}

// Size returns the page-rounded length of the mapped region.
func (r *Region) Size() int { return len(r.mem) }

// ByteAt reads one byte of the committed image, for the observational
// -print-assembly debug path only.
func (r *Region) ByteAt(i int) byte { return r.mem[i] }

// arena tracks every live region so GlobalStats has something to
// report (spec.md
// section 5 "Global/process-wide state"; grounded on
// oisee-z80-optimizer/pkg/search/worker.go's WorkerPool counters).
type arena struct {
	mu      sync.Mutex
	regions map[*Region]struct{}

	allocated atomic.Int64
	released  atomic.Int64
}

var global = &arena{regions: make(map[*Region]struct{})}

// Stats reports the number of regions currently mapped and the lifetime
// allocate/release counts.
type Stats struct {
	Live      int
	Allocated int64
	Released  int64
}

// GlobalStats returns a snapshot of the process-wide arena's bookkeeping.
func GlobalStats() Stats {
	global.mu.Lock()
	live := len(global.regions)
	global.mu.Unlock()
	return Stats{
		Live:      live,
		Allocated: global.allocated.Load(),
		Released:  global.released.Load(),
	}
}

// Finalize maps image (the code buffer followed by the embedded constant
// pool) into fresh executable memory and returns a Region whose
// EntryPoint is the function's entry. The region is registered with the
// global arena and released automatically via a runtime finalizer if the
// caller never calls Release explicitly, mirroring the teacher's
// exit-time runCleanup posture but at the single-kernel granularity this
// module operates at.
//
// Use ReserveRW/Commit instead when the image contains call-site fixups
// that must be patched against the region's own final address (spec.md
// section 4.9 step 14): the address is only known once mapped, but the
// region must still be writable when those patches are applied.
func Finalize(image []byte) (*Region, error) {
	r, err := ReserveRW(len(image))
	if err != nil {
		return nil, err
	}
	if err := r.Commit(image); err != nil {
		return nil, err
	}
	return r, nil
}

// ReserveRW maps size bytes (page-rounded) as read-write, before any code
// has been written into it. Callers that need the region's own entry
// address to resolve absolute call targets (pkg/engine's finalization
// step) call this first, patch their image against r.EntryPoint(), then
// call Commit.
func ReserveRW(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("jit: empty image")
	}
	mapped := pageAlign(size)
	mem, err := syscall.Mmap(-1, 0, mapped, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_PRIVATE|syscall.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("jit: mmap %d bytes: %w", mapped, err)
	}
	r := &Region{mem: mem}
	global.mu.Lock()
	global.regions[r] = struct{}{}
	global.mu.Unlock()
	global.allocated.Add(1)
	runtime.SetFinalizer(r, func(r *Region) { r.Release() })
	return r, nil
}

// Commit copies code into the region and remaps it read-exec. code must
// fit within the size originally passed to ReserveRW.
func (r *Region) Commit(code []byte) error {
	if len(code) > len(r.mem) {
		return fmt.Errorf("jit: image of %d bytes exceeds reserved region of %d bytes", len(code), len(r.mem))
	}
	copy(r.mem, code)
	if err := syscall.Mprotect(r.mem, syscall.PROT_READ|syscall.PROT_EXEC); err != nil {
		return fmt.Errorf("jit: mprotect exec: %w", err)
	}
	glog.V(2).Infof("jit: committed %d bytes executable at %#x", len(code), r.EntryPoint())
	return nil
}

// Release unmaps the region. Safe to call more than once; safe to call
// from a finalizer.
func (r *Region) Release() {
	if !r.freed.CompareAndSwap(false, true) {
		return
	}
	global.mu.Lock()
	delete(global.regions, r)
	global.mu.Unlock()
	global.released.Add(1)
	if err := syscall.Munmap(r.mem); err != nil {
		glog.Warningf("jit: munmap failed: %v", err)
	}
}

func pageAlign(n int) int {
	const page = 4096
	return (n + page - 1) &^ (page - 1)
}
