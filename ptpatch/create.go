package ptpatch

import (
	"github.com/wswitch/core/addrspace"
	"github.com/wswitch/core/cpuarch"
)

// CreatePatch builds (or extends) the patch that maps lpn -> mpn outside
// the monitor's [monStart, monEnd] range, allocating intermediate
// page-table pages from tracker as needed. Grounded on TaskCreatePTPatch:
// find the shallowest level the LPN shares with the monitor, plant or
// reuse a patch there, then walk down to L1 allocating a fresh page at
// every level that doesn't already have one.
func (t *Table) CreatePatch(tracker *Tracker, monStart, monEnd, lpn addrspace.LPN, mpn uint64) error {
	level, err := LocatePatchLevel(monStart, monEnd, lpn)
	if err != nil {
		return err
	}

	patch := t.search(level, lpn)
	if patch == nil {
		patch, err = t.save(level, lpn)
		if err != nil {
			return err
		}
	}

	pte := &patch.PTE

	var table *[cpuarch.PTEsPerPage]uint64

	for level > L1 {
		childVA := pageBase(*pte)

		if childVA == 0 {
			va, tbl, err := tracker.allocPage()
			if err != nil {
				return err
			}

			*pte = va | flagsForLevel(level)
			table = tbl
		} else {
			tracked, ok := tracker.lookup(childVA)
			if !ok {
				return ErrCorruptPatchState
			}

			table = tracked.table
		}

		level--
		pte = &table[index(lpn, level)]
	}

	*pte = makePTE(mpn, l1Flags)

	return nil
}

// Fixup converts every patch's 'VA | flags' intermediary PTEs into real
// MPN-backed PTEs, once all of a VCPU's patches have been created.
// Grounded on TaskFixupPTPatches / TaskFixupPatchPTE / TaskFixupPatchPT.
func (t *Table) Fixup(tracker *Tracker) error {
	for i := range t.patches {
		p := &t.patches[i]
		if p.Level == PTPEmpty {
			continue
		}

		if err := fixupEntry(&p.PTE, p.Level, tracker); err != nil {
			return err
		}
	}

	return nil
}

func fixupEntry(pte *uint64, level int, tracker *Tracker) error {
	entry := *pte
	flags := entry & (cpuarch.PageSize - 1)

	if level == L1 {
		return nil // already a real leaf PTE
	}

	childVA := pageBase(entry)
	if childVA == 0 {
		return nil // level allocated a patch slot but never descended (shouldn't happen)
	}

	tracked, ok := tracker.lookup(childVA)
	if !ok {
		return ErrCorruptPatchState
	}

	*pte = makePTE(tracked.mpn, flags|pteP)

	return fixupTable(tracked.table, level-1, tracker)
}

func fixupTable(table *[cpuarch.PTEsPerPage]uint64, level int, tracker *Tracker) error {
	for i := range table {
		if table[i] == 0 {
			continue
		}

		if err := fixupEntry(&table[i], level, tracker); err != nil {
			return err
		}
	}

	return nil
}
