package switchdrv

import "github.com/wswitch/core/cpuarch"

// PEBS and Processor Trace must be quiesced for the duration of a switch
// since both sample host-side state that would otherwise leak monitor
// addresses into a host-readable buffer (spec.md §4.6 step 5: "Disable
// PEBS and Processor Trace, restore on unwind").
const (
	msrIA32PEBSEnable = 0x3F1
	msrIA32RTITCtl    = 0x570

	rtitCtlTraceEn = 1
)

type perfmonState struct {
	pebsEnable uint64
	rtitCtl    uint64
}

// disablePerfmon reads and clears the two MSRs, returning what to
// restore. Both are read with a plain RDMSR, so a microarchitecture that
// lacks either MSR takes a #GP on the read.
func disablePerfmon() perfmonState {
	s := perfmonState{
		pebsEnable: cpuarch.RDMSR(msrIA32PEBSEnable),
		rtitCtl:    cpuarch.RDMSR(msrIA32RTITCtl),
	}

	if s.pebsEnable != 0 {
		cpuarch.WRMSR(msrIA32PEBSEnable, 0)
	}

	if s.rtitCtl&rtitCtlTraceEn != 0 {
		cpuarch.WRMSR(msrIA32RTITCtl, s.rtitCtl&^rtitCtlTraceEn)
	}

	return s
}

func restorePerfmon(s perfmonState) {
	if s.rtitCtl&rtitCtlTraceEn != 0 {
		cpuarch.WRMSR(msrIA32RTITCtl, s.rtitCtl)
	}

	if s.pebsEnable != 0 {
		cpuarch.WRMSR(msrIA32PEBSEnable, s.pebsEnable)
	}
}
