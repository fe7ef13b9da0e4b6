package switchdrv

import (
	"errors"
	"testing"
)

type fakeAPIC struct {
	lvt    [4]uint32
	maxLVT int
}

func (f *fakeAPIC) ReadLVT(reg LVTRegister) uint32     { return f.lvt[reg] }
func (f *fakeAPIC) WriteLVT(reg LVTRegister, v uint32) { f.lvt[reg] = v }
func (f *fakeAPIC) MaxLVT() int                        { return f.maxLVT }

func TestDisableNMIMasksOnlyNMIRoutedUnmaskedEntries(t *testing.T) {
	t.Parallel()

	a := &fakeAPIC{maxLVT: 5}
	a.lvt[LVTLINT0] = lvtDelModeNMI              // unmasked, NMI-routed: should be masked
	a.lvt[LVTLINT1] = lvtDelModeNMI | lvtMaskBit // already masked: leave alone, don't remember it
	a.lvt[LVTPerfCounter] = 0                    // not NMI-routed: leave alone
	a.lvt[LVTThermal] = lvtDelModeNMI

	masked := disableNMI(a)

	if a.lvt[LVTLINT0]&lvtMaskBit == 0 {
		t.Error("expected LINT0 to be masked")
	}

	if !masked.lint0 {
		t.Error("expected lint0 remembered as touched")
	}

	if masked.lint1 {
		t.Error("lint1 was already masked; disableNMI must not claim it touched it")
	}

	if masked.perfCounter {
		t.Error("perfCounter is not NMI-routed; must not be touched")
	}

	if !masked.thermal {
		t.Error("thermal is probed since MaxLVT >= 5, expected it masked")
	}
}

func TestDisableNMISkipsThermalBelowMinLVT(t *testing.T) {
	t.Parallel()

	a := &fakeAPIC{maxLVT: minLVTForThermal - 1}
	a.lvt[LVTThermal] = lvtDelModeNMI

	masked := disableNMI(a)

	if masked.thermal {
		t.Error("thermal LVT must not be probed below minLVTForThermal")
	}

	if a.lvt[LVTThermal]&lvtMaskBit != 0 {
		t.Error("thermal LVT must be untouched below minLVTForThermal")
	}
}

func TestRestoreNMIUnmasksExactlyWhatWasTouched(t *testing.T) {
	t.Parallel()

	a := &fakeAPIC{maxLVT: 5}
	a.lvt[LVTLINT0] = lvtDelModeNMI
	a.lvt[LVTPerfCounter] = lvtDelModeNMI | lvtMaskBit // masked before the switch, not by us

	masked := disableNMI(a)
	restoreNMI(a, masked)

	if a.lvt[LVTLINT0]&lvtMaskBit != 0 {
		t.Error("LINT0 should be unmasked again after restoreNMI")
	}

	if a.lvt[LVTPerfCounter]&lvtMaskBit == 0 {
		t.Error("perfCounter was never touched by disableNMI; restoreNMI must not unmask it")
	}
}

type fakeLinearMem map[uint64]uint64

func (f fakeLinearMem) ReadUint64(la uint64) (uint64, error) { return f[la], nil }

func (f fakeLinearMem) WriteUint64(la uint64, v uint64) error {
	f[la] = v

	return nil
}

func (f fakeLinearMem) ReadBytes(la uint64, n int) ([]byte, error) {
	return nil, errors.New("fakeLinearMem: ReadBytes not supported")
}

func TestClearTSSBusyClearsOnlyTheBusyBit(t *testing.T) {
	t.Parallel()

	const (
		gdtBase = 0x1000
		trSel   = 0x28 // index 5, RPL 0
	)

	descIdx := uint64(trSel &^ 0x7)
	// Type 11 (0xB) in the low type nibble of the upper dword, busy TSS.
	raw := uint64(0x0B) << 40

	mem := fakeLinearMem{gdtBase + descIdx: raw}

	if err := clearTSSBusy(mem, gdtBase, trSel); err != nil {
		t.Fatalf("clearTSSBusy: %v", err)
	}

	got := mem[gdtBase+descIdx]
	if got&(descBusyBit<<32) != 0 {
		t.Errorf("expected busy bit cleared, got %#x", got)
	}

	if got&^(descBusyBit<<32) != raw&^(descBusyBit<<32) {
		t.Errorf("clearTSSBusy must not disturb any other bit: got %#x, want %#x", got, raw&^(descBusyBit<<32))
	}
}
