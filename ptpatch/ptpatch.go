// Package ptpatch implements the page-table patch engine (spec.md §4.4):
// it builds the minimal set of monitor page-table entries needed to map
// the crosspage and crossGDT at their host linear addresses, without
// touching anything inside the monitor's own address-space range.
//
// Grounded on TaskCreatePTPatch / TaskSavePTPatch / TaskSearchPTPatch /
// TaskFixupPTPatches / TaskApplyPTPatches / Task_SwitchPTPPageCleanup in
// original_source/vmmon-only/common/task.c.
package ptpatch

import (
	"errors"

	"github.com/wswitch/core/addrspace"
	"github.com/wswitch/core/cpuarch"
)

// Page-table levels, L1 (leaf PTE) through L4 (PML4 entry).
const (
	L1 = 1
	L2 = 2
	L3 = 3
	L4 = 4
)

// PTPEmpty marks an unused slot in a patch table.
const PTPEmpty = 0

// MaxSwitchPTPatches bounds the per-VCPU patch table. Three targets
// (crosspage code, crosspage data, crossGDT) each need at most one entry
// per page-table level on their path down to L1, and shared ancestors
// dedup into a single entry, so four levels times three targets is a
// safe upper bound.
const MaxSwitchPTPatches = L4 * 3

// canonicalMask truncates an LPN to the 36 bits that remain after a
// 48-bit canonical linear address is shifted right by 12 (task.c's
// CANONICAL_MASK).
const canonicalMask = (1 << 36) - 1

// ptOffMask extracts one 9-bit page-table index.
const ptOffMask = 0x1FF

// PTE flag bits used by the four page-table levels. Leaf (L1) entries
// carry the present bit; intermediate levels pick it up only after
// Fixup runs.
const (
	pteP  = 1 << 0
	pteRW = 1 << 1
	pteA  = 1 << 5
	pteD  = 1 << 6

	l1Flags = pteRW | pteA | pteD | pteP
	l2Flags = pteRW | pteA | pteD
	l3Flags = pteRW | pteA | pteD
	l4Flags = pteRW | pteA | pteD
)

func flagsForLevel(level int) uint64 {
	switch level {
	case L1:
		return l1Flags
	case L2:
		return l2Flags
	case L3:
		return l3Flags
	default:
		return l4Flags
	}
}

var (
	// ErrOverlapsMonitor is returned when an LPN's entire translation
	// path (L4 through L1) falls inside the monitor's own address-space
	// range, so there is no level at which a patch could be rooted.
	ErrOverlapsMonitor = errors.New("ptpatch: lpn overlaps monitor address space")

	// ErrPatchTableFull is returned when every slot is occupied.
	ErrPatchTableFull = errors.New("ptpatch: patch table is full")

	// ErrPageAllocFailed is returned when the host page allocator fails
	// while building a patch's intermediate page-table levels.
	ErrPageAllocFailed = errors.New("ptpatch: page allocation failed")

	// ErrCorruptPatchState indicates an intermediate PTE referenced a
	// page the tracker does not know about.
	ErrCorruptPatchState = errors.New("ptpatch: dangling intermediate page reference")

	// ErrPatchCollision is returned when Apply finds a non-empty PTE
	// where a patch wants to install its own entry.
	ErrPatchCollision = errors.New("ptpatch: collides with an existing page-table entry")

	// ErrWalkNotPresent is returned when Apply's page walk hits a
	// not-present entry above the patch's level.
	ErrWalkNotPresent = errors.New("ptpatch: page walk hit a not-present entry")

	// ErrInvalidLevel is returned for a patch whose level is not
	// L2, L3 or L4 — TaskApplyPTPatches only ever installs at those
	// levels; an L1-rooted patch would mean the LPN collides with the
	// monitor everywhere above the leaf, which LocatePatchLevel already
	// rejects as ErrOverlapsMonitor for any sane monitor range.
	ErrInvalidLevel = errors.New("ptpatch: patch level below L2")
)

// globalIndex returns the page-table path identity for lpn at level:
// the index bits for level and every level above it, collapsed into one
// integer. Two LPNs share a page table at level iff their globalIndex at
// that level are equal (task.c's PTE_GLOBAL_INDEX).
func globalIndex(lpn addrspace.LPN, level int) uint64 {
	return (uint64(lpn) & canonicalMask) >> uint((level-1)*9)
}

// index returns the single 9-bit page-table index lpn occupies at level.
func index(lpn addrspace.LPN, level int) uint16 {
	return uint16(globalIndex(lpn, level) & ptOffMask)
}

// LocatePatchLevel finds the highest page-table level at which lpn's
// translation path diverges from the monitor's own [monStart, monEnd]
// range, i.e. the shallowest page table the patch can share with the
// monitor. Mirrors the level-search loop in TaskCreatePTPatch.
func LocatePatchLevel(monStart, monEnd, lpn addrspace.LPN) (int, error) {
	for level := L4; level >= L1; level-- {
		idx := globalIndex(lpn, level)
		if idx < globalIndex(monStart, level) || idx > globalIndex(monEnd, level) {
			return level, nil
		}
	}

	return 0, ErrOverlapsMonitor
}

// Patch is one entry in a VCPU's page-table patch table: a PTE-rooted
// subtree that maps one target page outside the monitor's own tables.
type Patch struct {
	Level        int
	PTEIdx       uint16
	PTEGlobalIdx uint64
	LPN          addrspace.LPN
	PTE          uint64
}

// Table is a VCPU's fixed-size patch table (the crosspage's vmmPTP[]).
type Table struct {
	patches [MaxSwitchPTPatches]Patch
}

// search looks for an existing patch at {level, lpn}'s global index,
// so that two targets sharing an ancestor table reuse one entry instead
// of racing to create duplicate subtrees (TaskSearchPTPatch).
func (t *Table) search(level int, lpn addrspace.LPN) *Patch {
	want := globalIndex(lpn, level)

	for i := range t.patches {
		p := &t.patches[i]
		if p.Level == level && p.PTEGlobalIdx == want {
			return p
		}
	}

	return nil
}

// save claims the first empty slot for a new patch at {level, lpn}
// (TaskSavePTPatch).
func (t *Table) save(level int, lpn addrspace.LPN) (*Patch, error) {
	for i := range t.patches {
		p := &t.patches[i]
		if p.Level == PTPEmpty {
			p.Level = level
			p.PTEIdx = index(lpn, level)
			p.PTEGlobalIdx = globalIndex(lpn, level)
			p.LPN = lpn

			return p, nil
		}
	}

	return nil, ErrPatchTableFull
}

// pageBase masks off the low-order flag bits of a PTE, leaving the
// physical or linear page base it points at.
func pageBase(pte uint64) uint64 {
	return pte &^ (cpuarch.PageSize - 1)
}

func ptePresent(pte uint64) bool {
	return pte&pteP != 0
}

func makePTE(mpn uint64, flags uint64) uint64 {
	return mpn*cpuarch.PageSize | flags
}
