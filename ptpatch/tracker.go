package ptpatch

import (
	"sync"

	"github.com/wswitch/core/cpuarch"
)

// PageAllocator hands out zeroed pages for a patch's intermediate
// levels. Implemented by the host-OS shim (HostIF_AllocKernelPages /
// HostIF_FreeKernelPages, spec.md §6). VA is an opaque handle the
// tracker uses to key the page, not necessarily a process address —
// the host shim in package hostif hands back the address of the
// anonymous userspace mapping it mmap'd.
type PageAllocator interface {
	AllocPage() (va uint64, mpn uint64, ok bool)
	FreePage(mpn uint64)
}

type trackedPage struct {
	mpn   uint64
	table *[cpuarch.PTEsPerPage]uint64
}

// Tracker owns the intermediate page-table pages a VCPU's patches
// allocate, so they can be resolved back to an MPN during Fixup and
// freed in one pass when the VM powers off. Grounded on the vmmon
// ptpTracker (MemTrack_Add / MemTrack_LookupVPN / MemTrack_Cleanup in
// task.c), specialized here to exactly the lookups ptpatch needs.
type Tracker struct {
	mu    sync.Mutex
	pages map[uint64]*trackedPage
	alloc PageAllocator
}

// NewTracker creates a tracker backed by alloc.
func NewTracker(alloc PageAllocator) *Tracker {
	return &Tracker{pages: make(map[uint64]*trackedPage), alloc: alloc}
}

// allocPage allocates a fresh zeroed table and registers it under its
// VA handle, mirroring TaskSwitchPTPAllocPage.
func (t *Tracker) allocPage() (va uint64, table *[cpuarch.PTEsPerPage]uint64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	va, mpn, ok := t.alloc.AllocPage()
	if !ok {
		return 0, nil, ErrPageAllocFailed
	}

	table = new([cpuarch.PTEsPerPage]uint64)
	t.pages[va] = &trackedPage{mpn: mpn, table: table}

	return va, table, nil
}

func (t *Tracker) lookup(va uint64) (*trackedPage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pages[va]

	return p, ok
}

// Cleanup frees every page the tracker handed out and returns their
// MPNs, mirroring Task_SwitchPTPPageCleanup / TaskSwitchPTPPageFree.
// The tracker is empty and reusable afterward.
func (t *Tracker) Cleanup() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	freed := make([]uint64, 0, len(t.pages))
	for va, p := range t.pages {
		t.alloc.FreePage(p.mpn)
		freed = append(freed, p.mpn)
		delete(t.pages, va)
	}

	return freed
}
