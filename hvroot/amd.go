package hvroot

import "github.com/wswitch/core/cpuarch"

const (
	msrEFER      = 0xC0000080
	msrVMHSavePA = 0xC0010117
)

// AMDState remembers the foreign EFER.SVME bit and MSR_VM_HSAVE_PA so
// LeaveAMD can restore them exactly (spec.md §4.2: "AMD: save foreign
// MSR_VM_HSAVE_PA and EFER.SVME; restore on unwind" and §9 open question:
// "the outcome is undefined" if two hypervisors race — we preserve that
// behavior rather than attempt to lock out a foreign hypervisor).
type AMDState struct {
	prevEFERSVME bool
	prevHSavePA  uint64
}

// EnterAMD sets EFER.SVME and installs this driver's host-save area,
// remembering the previous values for unwind.
func EnterAMD(hostSaveAreaPA uint64) AMDState {
	efer := cpuarch.RDMSR(msrEFER)
	prevHSavePA := cpuarch.RDMSR(msrVMHSavePA)

	state := AMDState{
		prevEFERSVME: efer&cpuarch.EFERxSVME != 0,
		prevHSavePA:  prevHSavePA,
	}

	cpuarch.WRMSR(msrEFER, efer|cpuarch.EFERxSVME)
	cpuarch.WRMSR(msrVMHSavePA, hostSaveAreaPA)

	return state
}

// LeaveAMD restores the EFER.SVME bit and MSR_VM_HSAVE_PA to what they
// were before EnterAMD.
func LeaveAMD(s AMDState) {
	cpuarch.WRMSR(msrVMHSavePA, s.prevHSavePA)

	efer := cpuarch.RDMSR(msrEFER)
	if s.prevEFERSVME {
		cpuarch.WRMSR(msrEFER, efer|cpuarch.EFERxSVME)
	} else {
		cpuarch.WRMSR(msrEFER, efer&^cpuarch.EFERxSVME)
	}
}
