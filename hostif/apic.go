package hostif

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/wswitch/core/switchdrv"
)

// xAPIC register offsets within the 4KB MMIO page (Intel SDM Vol 3,
// Table 10-1).
const (
	lapicDefaultPhysBase = 0xFEE00000

	regVersion    = 0x030
	regLVTPerfCtr = 0x340
	regLVTThermal = 0x330
	regLVTLINT0   = 0x350
	regLVTLINT1   = 0x360

	versionMaxLVTShift = 16
	versionMaxLVTMask  = 0xFF
)

// LAPIC is a switchdrv.APIC backed by the local APIC's memory-mapped
// register page, opened via /dev/mem. Constructing one requires
// CAP_SYS_RAWIO; the switch driver's actual privilege model is out of
// scope for this userspace stand-in (spec.md §6 notes the driver
// normally runs as a loaded kernel module).
type LAPIC struct {
	mmio []byte
}

// OpenLAPIC maps the local APIC's register page at its (fixed, for the
// xAPIC case the spec assumes) physical base address.
func OpenLAPIC(physBase uint64) (*LAPIC, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("hostif: open /dev/mem: %w", err)
	}
	defer f.Close()

	mmio, err := unix.Mmap(int(f.Fd()), int64(physBase), PageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("hostif: mmap LAPIC at %#x: %w", physBase, err)
	}

	return &LAPIC{mmio: mmio}, nil
}

func (l *LAPIC) reg(offset uint32) uint32 {
	return binary.LittleEndian.Uint32(l.mmio[offset : offset+4])
}

func (l *LAPIC) setReg(offset uint32, v uint32) {
	binary.LittleEndian.PutUint32(l.mmio[offset:offset+4], v)
}

func (l *LAPIC) lvtOffset(reg switchdrv.LVTRegister) uint32 {
	switch reg {
	case switchdrv.LVTLINT0:
		return regLVTLINT0
	case switchdrv.LVTLINT1:
		return regLVTLINT1
	case switchdrv.LVTPerfCounter:
		return regLVTPerfCtr
	default:
		return regLVTThermal
	}
}

// ReadLVT / WriteLVT satisfy switchdrv.APIC.
func (l *LAPIC) ReadLVT(reg switchdrv.LVTRegister) uint32 {
	return l.reg(l.lvtOffset(reg))
}

func (l *LAPIC) WriteLVT(reg switchdrv.LVTRegister, v uint32) {
	l.setReg(l.lvtOffset(reg), v)
}

// MaxLVT reports the number of LVT entries this local APIC implements,
// read from the version register (spec.md §4.6 step 1: thermal LVT is
// only probed when MaxLVT() >= 5).
func (l *LAPIC) MaxLVT() int {
	return int((l.reg(regVersion)>>versionMaxLVTShift)&versionMaxLVTMask) + 1
}

// Close unmaps the LAPIC register page.
func (l *LAPIC) Close() error {
	return unix.Munmap(l.mmio)
}
