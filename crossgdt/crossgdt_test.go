package crossgdt_test

import (
	"testing"

	"github.com/wswitch/core/cpuarch"
	"github.com/wswitch/core/crossgdt"
)

func presentDescriptor(tag uint64) cpuarch.Descriptor {
	return cpuarch.Descriptor(tag | 1<<47)
}

func TestSetHostIsIdempotent(t *testing.T) {
	t.Parallel()

	g := crossgdt.New(0xFFFF800000000000)

	var hostGDT [crossgdt.NumSlots]cpuarch.Descriptor
	hostGDT[1] = presentDescriptor(0xAAAA)

	if err := g.SetHost(hostGDT, 2*8-1); err != nil {
		t.Fatalf("SetHost: %v", err)
	}

	before := g.Descriptors()

	var different [crossgdt.NumSlots]cpuarch.Descriptor
	different[1] = presentDescriptor(0xBBBB)

	if err := g.SetHost(different, 2*8-1); err != nil {
		t.Fatalf("second SetHost: %v", err)
	}

	after := g.Descriptors()
	if before != after {
		t.Error("second SetHost call must not change page contents")
	}
}

func TestSetVMMFillsEmptySlot(t *testing.T) {
	t.Parallel()

	g := crossgdt.New(0)

	err := g.SetVMM([]crossgdt.SlotInit{
		{Index: 5, Descriptor: presentDescriptor(0x1234)},
	})
	if err != nil {
		t.Fatalf("SetVMM: %v", err)
	}

	if got := g.Descriptors()[5]; got != presentDescriptor(0x1234) {
		t.Errorf("slot 5: have %#x, want %#x", got, presentDescriptor(0x1234))
	}
}

func TestSetVMMDetectsConflict(t *testing.T) {
	t.Parallel()

	g := crossgdt.New(0)

	if err := g.SetVMM([]crossgdt.SlotInit{{Index: 3, Descriptor: presentDescriptor(0x1)}}); err != nil {
		t.Fatalf("first SetVMM: %v", err)
	}

	err := g.SetVMM([]crossgdt.SlotInit{{Index: 3, Descriptor: presentDescriptor(0x2)}})
	if err != crossgdt.ErrDescriptorConflict {
		t.Fatalf("expected ErrDescriptorConflict, got %v", err)
	}
}

func TestSetVMMIgnoresAccessedBitOnReinstall(t *testing.T) {
	t.Parallel()

	g := crossgdt.New(0)

	base := presentDescriptor(0x10)
	accessed := base | 1<<40

	if err := g.SetVMM([]crossgdt.SlotInit{{Index: 2, Descriptor: base}}); err != nil {
		t.Fatalf("first SetVMM: %v", err)
	}

	if err := g.SetVMM([]crossgdt.SlotInit{{Index: 2, Descriptor: accessed}}); err != nil {
		t.Errorf("expected accessed-bit-only difference to be tolerated, got %v", err)
	}
}
