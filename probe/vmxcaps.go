package probe

import "github.com/wswitch/core/cpuarch"

// Intel VMX capability MSR indices (Intel SDM Vol. 3, Appendix A).
const (
	msrVMXBasic          = 0x480
	msrVMXPinbasedCtls    = 0x481
	msrVMXProcbasedCtls   = 0x482
	msrVMXExitCtls        = 0x483
	msrVMXEntryCtls       = 0x484
	msrVMXMisc            = 0x485
	msrVMXCR0Fixed0       = 0x486
	msrVMXCR0Fixed1       = 0x487
	msrVMXCR4Fixed0       = 0x488
	msrVMXCR4Fixed1       = 0x489
	msrVMXVMCSEnum        = 0x48A
	msrVMXProcbasedCtls2  = 0x48B
	msrVMXEPTVPIDCap      = 0x48C
	msrVMXTruePinbased    = 0x48D
	msrVMXTrueProcbased   = 0x48E
	msrVMXTrueExit        = 0x48F
	msrVMXTrueEntry       = 0x490
	msrVMXVMFunc          = 0x491
	msrVMXProcbasedCtls3  = 0x492
	msrIA32FeatureControl = 0x3A
)

// CtlPair is a {required-ones, allowed-ones} control-MSR pair: the low
// dword lists bits that MUST be 1, the high dword lists bits that MAY be
// 1, per the VMX "true" control MSR encoding (spec.md §4.1).
type CtlPair struct {
	Required uint32 // must-be-one bits
	Allowed  uint32 // may-be-one bits
}

func readCtlPair(msr uint32) CtlPair {
	v := cpuarch.RDMSR(msr)

	return CtlPair{Required: uint32(v), Allowed: uint32(v >> 32)}
}

// VMXBasic is the decoded content of MSR_VMX_BASIC.
type VMXBasic struct {
	Revision        uint32
	VMCSSize        uint32
	Is32BitAddr     bool
	MemType         uint8
	DualMonitorMSEG bool
	TrueCtls        bool
	VMXOutsideSMX   bool // ADVANCED_IOINFO in the original driver's terms
}

func readVMXBasic() VMXBasic {
	v := cpuarch.RDMSR(msrVMXBasic)

	return VMXBasic{
		Revision:        uint32(v & 0x7FFFFFFF),
		VMCSSize:        uint32((v >> 32) & 0x1FFF),
		Is32BitAddr:     v&(1<<48) != 0,
		MemType:         uint8((v >> 50) & 0xF),
		DualMonitorMSEG: v&(1<<49) != 0,
		TrueCtls:        v&(1<<55) != 0,
		VMXOutsideSMX:   v&(1<<54) != 0,
	}
}

// VMXMisc is the decoded content of MSR_VMX_MISC.
type VMXMisc struct {
	MSEGRevisionID uint32
	MaxCR3Targets  uint32
	MaxMSRs        uint32 // n+1, where the recommended MSR-list maximum is (n+1)*512
	TimerRate      uint32 // VMX-preemption timer rate, AND-combined
}

func readVMXMisc() VMXMisc {
	v := cpuarch.RDMSR(msrVMXMisc)

	return VMXMisc{
		TimerRate:      uint32(v & 0x1F),
		MSEGRevisionID: uint32(v >> 32),
		MaxCR3Targets:  uint32((v >> 16) & 0x1FF),
		MaxMSRs:        uint32((v>>25)&0x7) + 1,
	}
}

// VMXCaps is the per-pCPU VMX capability snapshot read during the probe.
type VMXCaps struct {
	Basic        VMXBasic
	Misc         VMXMisc
	Pinbased     CtlPair
	Procbased    CtlPair
	Procbased2   CtlPair
	Exit         CtlPair
	Entry        CtlPair
	EPTVPIDCap   uint64
	CR0Fixed0    uint64
	CR0Fixed1    uint64
	CR4Fixed0    uint64
	CR4Fixed1    uint64
	VMCSEnumMax  uint32
	FeatureCtrl  uint64
}

// ReadVMXCaps gathers the full VMX capability family for the current
// logical CPU (spec.md §4.1: "the full VMX capability family").
func ReadVMXCaps() VMXCaps {
	basic := readVMXBasic()

	pin, proc, exit, entry := msrVMXPinbasedCtls, msrVMXProcbasedCtls, msrVMXExitCtls, msrVMXEntryCtls
	if basic.TrueCtls {
		pin, proc, exit, entry = msrVMXTruePinbased, msrVMXTrueProcbased, msrVMXTrueExit, msrVMXTrueEntry
	}

	caps := VMXCaps{
		Basic:       basic,
		Misc:        readVMXMisc(),
		Pinbased:    readCtlPair(uint32(pin)),
		Procbased:   readCtlPair(uint32(proc)),
		Exit:        readCtlPair(uint32(exit)),
		Entry:       readCtlPair(uint32(entry)),
		CR0Fixed0:   cpuarch.RDMSR(msrVMXCR0Fixed0),
		CR0Fixed1:   cpuarch.RDMSR(msrVMXCR0Fixed1),
		CR4Fixed0:   cpuarch.RDMSR(msrVMXCR4Fixed0),
		CR4Fixed1:   cpuarch.RDMSR(msrVMXCR4Fixed1),
		FeatureCtrl: cpuarch.RDMSR(msrIA32FeatureControl),
	}

	caps.VMCSEnumMax = uint32(cpuarch.RDMSR(msrVMXVMCSEnum)>>8) & 0x1F

	proc2 := readCtlPair(msrVMXProcbasedCtls2)
	if caps.Procbased.Allowed&(1<<31) != 0 { // "activate secondary controls" allowed
		caps.Procbased2 = proc2
		caps.EPTVPIDCap = cpuarch.RDMSR(msrVMXEPTVPIDCap)
	}

	return caps
}
