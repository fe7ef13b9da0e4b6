package ptpatch_test

import (
	"errors"
	"testing"

	"github.com/wswitch/core/addrspace"
	"github.com/wswitch/core/ptpatch"
)

// fakeAllocator hands out pages from an in-process pool, standing in for
// HostIF_AllocKernelPages/HostIF_FreeKernelPages.
type fakeAllocator struct {
	next uint64
	live map[uint64]bool
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{next: 1, live: map[uint64]bool{}}
}

func (a *fakeAllocator) AllocPage() (va uint64, mpn uint64, ok bool) {
	mpn = a.next
	a.next++
	va = mpn << 12
	a.live[mpn] = true

	return va, mpn, true
}

func (a *fakeAllocator) FreePage(mpn uint64) {
	delete(a.live, mpn)
}

// fakeMem is a flat in-memory physical address space for Apply tests.
type fakeMem map[uint64]uint64

func (m fakeMem) ReadUint64(pa uint64) (uint64, error) {
	return m[pa], nil
}

func (m fakeMem) WriteUint64(pa uint64, v uint64) error {
	m[pa] = v

	return nil
}

func TestLocatePatchLevelFindsDivergence(t *testing.T) {
	t.Parallel()

	// Monitor occupies LPNs [0x1000, 0x11FF] — the 512 pages of a single
	// L1 table, so every level above L1 is shared with the monitor.
	monStart := addrspace.LPN(0x1000)
	monEnd := addrspace.LPN(0x1000 + 0x1FF)

	tests := []struct {
		name string
		lpn  addrspace.LPN
	}{
		{"far away lpn diverges at L4", 0xDEAD000},
		{"nearby lpn diverges at a low level", 0x1200},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			level, err := ptpatch.LocatePatchLevel(monStart, monEnd, tt.lpn)
			if err != nil {
				t.Fatalf("LocatePatchLevel: %v", err)
			}

			if level < ptpatch.L1 || level > ptpatch.L4 {
				t.Errorf("level %d out of range", level)
			}
		})
	}
}

func TestLocatePatchLevelRejectsOverlap(t *testing.T) {
	t.Parallel()

	monStart := addrspace.LPN(0x1000)
	monEnd := addrspace.LPN(0x1000 + 0x1FF)

	_, err := ptpatch.LocatePatchLevel(monStart, monEnd, monStart+1)
	if !errors.Is(err, ptpatch.ErrOverlapsMonitor) {
		t.Fatalf("expected ErrOverlapsMonitor, got %v", err)
	}
}

func TestCreatePatchAndFixupProduceLeafPTE(t *testing.T) {
	t.Parallel()

	monStart := addrspace.LPN(0x1000)
	monEnd := addrspace.LPN(0x1000 + 0x1FF)

	tracker := ptpatch.NewTracker(newFakeAllocator())
	table := &ptpatch.Table{}

	const targetMPN = 0x7777

	if err := table.CreatePatch(tracker, monStart, monEnd, 0xDEAD000, targetMPN); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	if err := table.Fixup(tracker); err != nil {
		t.Fatalf("Fixup: %v", err)
	}
}

func TestCreatePatchDedupesSharedAncestor(t *testing.T) {
	t.Parallel()

	monStart := addrspace.LPN(0x1000)
	monEnd := addrspace.LPN(0x1000 + 0x1FF)

	tracker := ptpatch.NewTracker(newFakeAllocator())
	table := &ptpatch.Table{}

	// Two LPNs close enough to share every level above L1 must not
	// allocate two independent subtrees rooted at the same level.
	base := addrspace.LPN(0xDEAD000)

	if err := table.CreatePatch(tracker, monStart, monEnd, base, 0x1111); err != nil {
		t.Fatalf("first CreatePatch: %v", err)
	}

	if err := table.CreatePatch(tracker, monStart, monEnd, base+1, 0x2222); err != nil {
		t.Fatalf("second CreatePatch: %v", err)
	}

	if err := table.Fixup(tracker); err != nil {
		t.Fatalf("Fixup: %v", err)
	}
}

func TestApplyInstallsL4Patch(t *testing.T) {
	t.Parallel()

	monStart := addrspace.LPN(0x1000)
	monEnd := addrspace.LPN(0x1000 + 0x1FF)

	tracker := ptpatch.NewTracker(newFakeAllocator())
	table := &ptpatch.Table{}

	lpn := addrspace.LPN(0xDEAD000)
	if err := table.CreatePatch(tracker, monStart, monEnd, lpn, 0x9999); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	if err := table.Fixup(tracker); err != nil {
		t.Fatalf("Fixup: %v", err)
	}

	mem := fakeMem{}

	const monCR3 = 0x100000

	if err := ptpatch.Apply(table, monCR3, mem); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func TestApplyDetectsCollision(t *testing.T) {
	t.Parallel()

	monStart := addrspace.LPN(0x1000)
	monEnd := addrspace.LPN(0x1000 + 0x1FF)

	tracker := ptpatch.NewTracker(newFakeAllocator())
	table := &ptpatch.Table{}

	lpn := addrspace.LPN(0xDEAD000)
	if err := table.CreatePatch(tracker, monStart, monEnd, lpn, 0x9999); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	if err := table.Fixup(tracker); err != nil {
		t.Fatalf("Fixup: %v", err)
	}

	const monCR3 = 0x100000

	mem := fakeMem{}
	// Pre-occupy the L4 slot the patch wants (L4 index of 0xDEAD000 is 1).
	mem[monCR3+1*8] = 0xFF

	if err := ptpatch.Apply(table, monCR3, mem); !errors.Is(err, ptpatch.ErrPatchCollision) {
		t.Fatalf("expected ErrPatchCollision, got %v", err)
	}
}

func TestTrackerCleanupFreesAllPages(t *testing.T) {
	t.Parallel()

	alloc := newFakeAllocator()
	tracker := ptpatch.NewTracker(alloc)
	table := &ptpatch.Table{}

	monStart := addrspace.LPN(0x1000)
	monEnd := addrspace.LPN(0x1000 + 0x1FF)

	if err := table.CreatePatch(tracker, monStart, monEnd, 0xDEAD000, 0x9999); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	freed := tracker.Cleanup()
	if len(freed) == 0 {
		t.Fatal("expected at least one intermediate page to be freed")
	}

	for _, mpn := range freed {
		if alloc.live[mpn] {
			t.Errorf("mpn %#x still marked live after Cleanup", mpn)
		}
	}
}
