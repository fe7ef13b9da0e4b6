// Package crossgdt implements the CrossGDT builder (spec.md §4.3): a
// single system-wide GDT page shared by every VM and VCPU, populated once
// from the live host GDT and then, per VM power-on, with the monitor's
// own descriptor slots.
package crossgdt

import (
	"errors"
	"sync"

	"github.com/wswitch/core/cpuarch"
)

// NumSlots is the number of 8-byte descriptor slots in one page
// (spec.md §3: "up to PAGE_SIZE / 8 descriptor slots").
const NumSlots = cpuarch.PageSize / 8

// ErrDescriptorConflict is returned when a monitor init table tries to
// install a descriptor into a slot that already holds a different one
// (spec.md §3 invariant: "a descriptor slot, once initialized, is never
// overwritten with a semantically different value").
var ErrDescriptorConflict = errors.New("crossgdt: descriptor slot conflict")

// SlotInit describes one descriptor the monitor wants installed at
// VM power-on.
type SlotInit struct {
	Index      int
	Descriptor cpuarch.Descriptor
}

// CrossGDT is the single, driver-global descriptor table page.
type CrossGDT struct {
	mu           sync.Mutex // mirrors HostIF_GlobalLock from spec.md §5
	slots        [NumSlots]cpuarch.Descriptor
	present      [NumSlots]bool
	hostSeeded   bool
	LinearAddr   uint64
}

// New creates an empty CrossGDT at the given fixed linear address
// (spec.md §4.3: "the crossGDT has a fixed linear address (crossGDTLA)
// established by the driver").
func New(linearAddr uint64) *CrossGDT {
	return &CrossGDT{LinearAddr: linearAddr}
}

// SetHost copies the first page of the live host GDT into the crossGDT.
// Called exactly once, at first VM power-on; a second call is a no-op —
// spec.md's Idempotence property: "SetCrossGDTHost() called a second
// time after the first successful call must have no effect on the page
// contents."
func (c *CrossGDT) SetHost(hostGDT [NumSlots]cpuarch.Descriptor, hostGDTLimit uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hostSeeded {
		return nil
	}

	numEntries := (int(hostGDTLimit) + 1) / 8
	if numEntries > NumSlots {
		numEntries = NumSlots
	}

	for i := 0; i < numEntries; i++ {
		if !hostGDT[i].Present() {
			continue
		}

		c.slots[i] = hostGDT[i]
		c.present[i] = true
	}

	c.hostSeeded = true

	return nil
}

// SetVMM installs the monitor's descriptor table into the crossGDT,
// filling empty slots and verifying already-present ones match modulo
// the accessed bit (spec.md §4.3: "Monitor phase").
func (c *CrossGDT) SetVMM(gdtInit []SlotInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range gdtInit {
		if s.Index < 0 || s.Index >= NumSlots {
			return ErrDescriptorConflict
		}

		if !c.present[s.Index] {
			c.slots[s.Index] = s.Descriptor
			c.present[s.Index] = true

			continue
		}

		if !c.slots[s.Index].EqualIgnoringAccessed(s.Descriptor) {
			return ErrDescriptorConflict
		}
	}

	return nil
}

// Descriptors returns a copy of the page contents, suitable for writing
// into the physical page backing the crossGDT.
func (c *CrossGDT) Descriptors() [NumSlots]cpuarch.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.slots
}

// DTR returns the {limit, offset} descriptor cached in each crosspage
// (spec.md §4.3: "a fixed-size descriptor {limit: sizeof(CrossGDT)-1,
// offset: crossGDTLA} is cached in each crosspage").
func (c *CrossGDT) DTR() cpuarch.DTR64 {
	return cpuarch.DTR64{
		Limit: NumSlots*8 - 1,
		Base:  c.LinearAddr,
	}
}
