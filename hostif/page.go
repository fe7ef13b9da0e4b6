// Package hostif is the host-OS driver shim (spec.md §6): the
// collaborator every other package talks to through a narrow interface
// (hvroot.Alloc, ptpatch.PageAllocator, ptpatch.PhysMem,
// switchdrv.LinearMem, probe.RunOnPCPU, ptsc.Clock) instead of importing
// directly, so the core stays portable to a real kernel-mode driver
// later. This reference implementation runs the core as a pinned
// userspace process on Linux/amd64 and stands in for machine pages with
// locked, anonymous-mmap'd regions — the same pattern the teacher used
// for guest RAM (original kvm.SetUserMemoryRegion / memory.NewMemorySlot
// backing), adapted here to back individual pages the switch driver
// treats as "machine pages" rather than one big guest-RAM slot.
package hostif

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// PageSize matches cpuarch.PageSize; duplicated here to avoid hostif
// depending on cpuarch for one constant.
const PageSize = 4096

// Pages is the host-OS machine-page allocator: every AllocMachinePage
// call hands back a locked, zeroed page and its pseudo machine page
// number (spec.md §6: "HostIF_AllocMachinePage").
//
// There is no real machine-physical-address space available from an
// unprivileged process, so MPN here is the page's own virtual address.
// Components downstream treat it as a real MPN: ptpatch, for one,
// multiplies it by the page size when it builds a PTE, so the PTEs built
// from these pages do not point at real machine memory.
type Pages struct {
	mu    sync.Mutex
	live  map[uint64][]byte
}

// NewPages creates an empty machine-page pool.
func NewPages() *Pages {
	return &Pages{live: make(map[uint64][]byte)}
}

// AllocMachinePage satisfies hvroot.Alloc and ptpatch.PageAllocator's
// machine-page half.
func (p *Pages) AllocMachinePage() (mpn uint64, ok bool) {
	buf, err := unix.Mmap(-1, 0, PageSize, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, false
	}

	_ = unix.Mlock(buf) // best-effort: a paged-out "machine page" would be a lie

	mpn = addressOf(buf)

	p.mu.Lock()
	p.live[mpn] = buf
	p.mu.Unlock()

	return mpn, true
}

// FreeMachinePage releases a page allocated by AllocMachinePage.
func (p *Pages) FreeMachinePage(mpn uint64) {
	p.mu.Lock()
	buf, ok := p.live[mpn]
	delete(p.live, mpn)
	p.mu.Unlock()

	if ok {
		_ = unix.Munlock(buf)
		_ = unix.Munmap(buf)
	}
}

// AllocPage satisfies ptpatch.PageAllocator: it returns both the linear
// address (identical to the MPN in this userspace stand-in, since there
// is no separate guest-physical indirection at this layer) and the MPN.
func (p *Pages) AllocPage() (va, mpn uint64, ok bool) {
	mpn, ok = p.AllocMachinePage()

	return mpn, mpn, ok
}

// FreePage satisfies ptpatch.PageAllocator.
func (p *Pages) FreePage(mpn uint64) {
	p.FreeMachinePage(mpn)
}

// ReadUint64 / WriteUint64 satisfy ptpatch.PhysMem and
// switchdrv.LinearMem: both treat an 8-byte-aligned address within a
// live page as the unit of access, matching the PTE/GDT-slot granularity
// every caller actually uses.
func (p *Pages) ReadUint64(addr uint64) (uint64, error) {
	buf, off, err := p.locate(addr)
	if err != nil {
		return 0, err
	}

	return nativeEndian.Uint64(buf[off : off+8]), nil
}

func (p *Pages) WriteUint64(addr uint64, v uint64) error {
	buf, off, err := p.locate(addr)
	if err != nil {
		return err
	}

	nativeEndian.PutUint64(buf[off:off+8], v)

	return nil
}

// ReadBytes satisfies switchdrv.LinearMem's instruction-decode use: up
// to n bytes starting at addr, never crossing into a different machine
// page (an instruction that straddles a page boundary is left for the
// caller to handle as a decode failure, same as a real RIP-relative
// read would require stitching two pages together).
func (p *Pages) ReadBytes(addr uint64, n int) ([]byte, error) {
	buf, off, err := p.locate(addr)
	if err != nil {
		return nil, err
	}

	end := off + uint64(n)
	if end > uint64(len(buf)) {
		end = uint64(len(buf))
	}

	return buf[off:end], nil
}

func (p *Pages) locate(addr uint64) ([]byte, uint64, error) {
	base := addr &^ uint64(PageSize-1)
	off := addr - base

	p.mu.Lock()
	buf, ok := p.live[base]
	p.mu.Unlock()

	if !ok {
		return nil, 0, fmt.Errorf("hostif: address %#x is not within a live machine page", addr)
	}

	return buf, off, nil
}

func addressOf(buf []byte) uint64 {
	return uint64(uintptrOf(buf))
}
