// Package hvroot implements the HV root-mode manager (spec.md §4.2): lazy
// per-pCPU VMXON-region / host-save-area allocation, and entering/leaving
// VMX or SVM root operation around a world switch, including the
// foreign-hypervisor coexistence protocol.
package hvroot

import (
	"errors"
	"sync/atomic"
)

// InvalidMPN is the sentinel stored in a root-page slot before it has
// been allocated (spec.md §3: "initialize to sentinel 'invalid' at
// driver load").
const InvalidMPN = ^uint64(0)

// ErrAllocFailed is returned when no root page is installed for a pCPU
// and the caller's alloc function reports failure (spec.md §4.2 failure mode:
// "Allocation failure: returns invalid-MPN sentinel").
var ErrAllocFailed = errors.New("hvroot: root page allocation failed")

var errUnsupportedVendor = errors.New("hvroot: CPU vendor supports neither VMX nor SVM")

// Alloc allocates one machine page and returns its MPN. Implemented by
// the host-OS driver shim (HostIF_AllocMachinePage, spec.md §6).
type Alloc func() (mpn uint64, ok bool)

// PerPCPU owns one lazily-allocated root page per physical CPU. Multiple
// threads may race to allocate for the same pCPU; exactly one wins via
// compare-and-swap and the losers free their attempt (spec.md §3).
type PerPCPU struct {
	slots []atomic.Uint64
	free  func(mpn uint64)
}

// NewPerPCPU creates a root-page table for maxPCPUs physical CPUs, all
// slots initialized to the invalid sentinel.
func NewPerPCPU(maxPCPUs int, free func(mpn uint64)) *PerPCPU {
	p := &PerPCPU{slots: make([]atomic.Uint64, maxPCPUs), free: free}
	for i := range p.slots {
		p.slots[i].Store(InvalidMPN)
	}

	return p
}

// GetOrAlloc idempotently returns the root page MPN for pCPU, lazily
// allocating via alloc on first use (spec.md §4.2:
// "GetHVRootPageForPCPU(pCPU) → MPN").
func (p *PerPCPU) GetOrAlloc(pCPU int, alloc Alloc) (uint64, error) {
	if existing := p.slots[pCPU].Load(); existing != InvalidMPN {
		return existing, nil
	}

	mpn, ok := alloc()
	if !ok {
		return InvalidMPN, ErrAllocFailed
	}

	if p.slots[pCPU].CompareAndSwap(InvalidMPN, mpn) {
		return mpn, nil
	}

	// Lost the race: someone else installed a root page first. Free our
	// attempt and return the winner's.
	if p.free != nil {
		p.free(mpn)
	}

	return p.slots[pCPU].Load(), nil
}

// Get returns the installed root page for pCPU without allocating,
// reporting ok=false if none is installed yet.
func (p *PerPCPU) Get(pCPU int) (mpn uint64, ok bool) {
	v := p.slots[pCPU].Load()

	return v, v != InvalidMPN
}

// Teardown frees every installed root page, for driver unload
// (spec.md §9: "free all slots on driver unload").
func (p *PerPCPU) Teardown() {
	for i := range p.slots {
		if mpn := p.slots[i].Swap(InvalidMPN); mpn != InvalidMPN && p.free != nil {
			p.free(mpn)
		}
	}
}
