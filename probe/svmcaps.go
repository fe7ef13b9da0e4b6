package probe

import "github.com/wswitch/core/cpuarch"

const (
	msrVMCR       = 0xC0010114
	msrEFER       = 0xC0000080
	msrVMHSavePA  = 0xC0010117
	cpuidLeafSVM  = 0x8000000A
)

// SVMCaps is the AMD/Hygon analogue of VMXCaps (spec.md §4.1: "AMD/Hygon:
// SVM features, MSR_VM_CR, MSR_EFER").
type SVMCaps struct {
	FeatureEDX uint32 // CPUID 0x8000000A:EDX, SVM feature bits
	NumASIDs   uint32 // CPUID 0x8000000A:EBX
	VMCR       uint64
	EFER       uint64
}

// ReadSVMCaps reads the current logical CPU's SVM capability set.
func ReadSVMCaps() SVMCaps {
	_, ebx, _, edx := cpuarch.CPUID(cpuidLeafSVM, 0)

	return SVMCaps{
		FeatureEDX: edx,
		NumASIDs:   ebx,
		VMCR:       cpuarch.RDMSR(msrVMCR),
		EFER:       cpuarch.RDMSR(msrEFER),
	}
}

// CombineSVMCaps ANDs the feature-bit vectors across pCPUs, the same
// discipline as VMX's fixed1/allowed-ones fields — a feature is only
// usable if every pCPU exposes it.
func CombineSVMCaps(perPCPU []SVMCaps) SVMCaps {
	if len(perPCPU) == 0 {
		return SVMCaps{}
	}

	common := perPCPU[0]
	for _, c := range perPCPU[1:] {
		common.FeatureEDX &= c.FeatureEDX

		if c.NumASIDs < common.NumASIDs {
			common.NumASIDs = c.NumASIDs
		}
	}

	return common
}
