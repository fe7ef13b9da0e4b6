package switchdrv

import "github.com/wswitch/core/cpuarch"

const (
	msrFSBase       = 0xC0000100
	msrGSBase       = 0xC0000101
	msrKernelGSBase = 0xC0000102

	descBusyBit = 1 << 9 // type 11 (busy TSS) vs type 9 (available TSS)
)

type savedSegments struct {
	fsBase, gsBase, kernelGSBase uint64
	ds, es, fs, gs, ss           uint16
}

func saveSegments(ds, es, fs, gs, ss uint16) savedSegments {
	return savedSegments{
		fsBase:       cpuarch.RDMSR(msrFSBase),
		gsBase:       cpuarch.RDMSR(msrGSBase),
		kernelGSBase: cpuarch.RDMSR(msrKernelGSBase),
		ds:           ds, es: es, fs: fs, gs: gs, ss: ss,
	}
}

// restoreSegments puts DS/ES/FS/GS and the FS/GS base MSRs back the
// way saveSegments found them (spec.md §4.6 step 15d); the saved SS is
// not reloaded. Selectors are
// reloaded before the base MSRs since a GS/FS selector reload can reset
// its base on some microarchitectures.
func restoreSegments(s savedSegments) {
	cpuarch.LoadDS(s.ds)
	cpuarch.LoadES(s.es)
	cpuarch.LoadFS(s.fs)
	cpuarch.LoadGS(s.gs)

	cpuarch.WRMSR(msrFSBase, s.fsBase)
	cpuarch.WRMSR(msrGSBase, s.gsBase)
	cpuarch.WRMSR(msrKernelGSBase, s.kernelGSBase)
}

// LinearMem gives the switch driver raw access to linear-addressed
// memory — the host GDT page for the clearTSSBusy step (spec.md §4.6
// step 15c) and the faulting instruction bytes for the #UD decode path
// (spec.md §4.5 "#UD handler") — the same narrow-interface pattern
// ptpatch.PhysMem uses for physical memory.
type LinearMem interface {
	ReadUint64(la uint64) (uint64, error)
	WriteUint64(la uint64, v uint64) error
	ReadBytes(la uint64, n int) ([]byte, error)
}

// clearTSSBusy clears the busy bit of the TSS descriptor the TR selector
// points at, so ltr can reload it without taking a #GP for "busy TSS"
// (spec.md §4.6 step 15c). The write goes straight to the GDT at
// gdtBase; no scratch copy of the GDT is made.
func clearTSSBusy(mem LinearMem, gdtBase uint64, tr uint16) error {
	addr := gdtBase + uint64(tr&^0x7)

	raw, err := mem.ReadUint64(addr)
	if err != nil {
		return err
	}

	return mem.WriteUint64(addr, raw&^(descBusyBit<<32))
}
