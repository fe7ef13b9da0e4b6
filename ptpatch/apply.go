package ptpatch

// PhysMem is the narrow slice of HostIF_ReadPhysical/HostIF_WritePhysical
// (spec.md §6) that Apply needs: reading and writing one PTE-sized word
// at a machine address. Defined locally, not imported from hostif, to
// keep ptpatch free of a dependency on the host-OS shim.
type PhysMem interface {
	ReadUint64(pa uint64) (uint64, error)
	WriteUint64(pa uint64, v uint64) error
}

// Apply installs every patch in t into the monitor's live page tables,
// rooted at monCR3. Only necessary once, before the first switch into
// the monitor — after that the monitor patches and unpatches its own
// tables around each BackToHost. Grounded on TaskApplyPTPatches: walk
// from L4 down to the patch's level, and fail on any collision with an
// existing entry or any not-present entry encountered along the walk.
func Apply(t *Table, monCR3 uint64, mem PhysMem) error {
	for i := range t.patches {
		p := &t.patches[i]
		if p.Level == PTPEmpty {
			continue
		}

		if err := applyOne(p, monCR3, mem); err != nil {
			return err
		}
	}

	return nil
}

func applyOne(p *Patch, monCR3 uint64, mem PhysMem) error {
	switch p.Level {
	case L4:
		return installAt(monCR3+uint64(index(p.LPN, L4))*8, p.PTE, mem)

	case L3:
		l3Base, err := stepDown(monCR3, index(p.LPN, L4), mem)
		if err != nil {
			return err
		}

		return installAt(l3Base+uint64(index(p.LPN, L3))*8, p.PTE, mem)

	case L2:
		l3Base, err := stepDown(monCR3, index(p.LPN, L4), mem)
		if err != nil {
			return err
		}

		l2Base, err := stepDown(l3Base, index(p.LPN, L3), mem)
		if err != nil {
			return err
		}

		return installAt(l2Base+uint64(index(p.LPN, L2))*8, p.PTE, mem)

	default:
		return ErrInvalidLevel
	}
}

// stepDown reads the PTE at tableBase[idx], requires it present, and
// returns the physical base of the page it points to.
func stepDown(tableBase uint64, idx uint16, mem PhysMem) (uint64, error) {
	pte, err := mem.ReadUint64(tableBase + uint64(idx)*8)
	if err != nil {
		return 0, err
	}

	if !ptePresent(pte) {
		return 0, ErrWalkNotPresent
	}

	return pageBase(pte), nil
}

// installAt writes v at pa, failing if an entry is already there.
func installAt(pa uint64, v uint64, mem PhysMem) error {
	existing, err := mem.ReadUint64(pa)
	if err != nil {
		return err
	}

	if existing != 0 {
		return ErrPatchCollision
	}

	return mem.WriteUint64(pa, v)
}
