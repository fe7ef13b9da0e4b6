package probe

import "fmt"

// RunOnPCPU pins the calling goroutine's OS thread to the given pCPU and
// runs fn there. The concrete implementation (affinity syscalls) lives
// in package hostif, which is the "host-OS driver shim" collaborator
// named in spec.md §6; probe only depends on this narrow function type
// so the two packages don't import each other.
type RunOnPCPU func(pcpu int, fn func()) error

// CapabilitySet is the published result of the HW-caps probe: vendor,
// common VMX or SVM feature vector, and physical address width
// (spec.md §4.1: "Publishes a boolean 'VT supported' or 'SVM supported'
// plus the common feature vector").
type CapabilitySet struct {
	Vendor         Vendor
	PhysAddrWidth  uint8
	VTSupported    bool
	SVMSupported   bool
	CommonVMX      VMXCaps
	CommonSVM      SVMCaps
}

// Probe runs the HW-caps probe across numPCPUs logical CPUs and computes
// the common feature vector. It is the entry point for spec.md §4.1.
func Probe(numPCPUs int, run RunOnPCPU) (*CapabilitySet, error) {
	if numPCPUs <= 0 {
		return nil, fmt.Errorf("probe: numPCPUs must be positive, got %d", numPCPUs)
	}

	vendor := DetectVendor()
	width := PhysAddrWidth()

	result := &CapabilitySet{Vendor: vendor, PhysAddrWidth: width}

	switch vendor {
	case VendorIntel:
		perPCPU := make([]VMXCaps, numPCPUs)

		leaf1 := ReadLeaf1Features()
		if !leaf1.HasVMX() {
			return result, nil
		}

		for pcpu := 0; pcpu < numPCPUs; pcpu++ {
			pcpu := pcpu

			if err := run(pcpu, func() { perPCPU[pcpu] = ReadVMXCaps() }); err != nil {
				return nil, fmt.Errorf("probe: pCPU %d: %w", pcpu, err)
			}
		}

		common, err := CombineVMXCaps(perPCPU)
		if err != nil {
			return nil, err
		}

		result.VTSupported = true
		result.CommonVMX = common

	case VendorAMD, VendorHygon:
		perPCPU := make([]SVMCaps, numPCPUs)

		for pcpu := 0; pcpu < numPCPUs; pcpu++ {
			pcpu := pcpu

			if err := run(pcpu, func() { perPCPU[pcpu] = ReadSVMCaps() }); err != nil {
				return nil, fmt.Errorf("probe: pCPU %d: %w", pcpu, err)
			}
		}

		result.SVMSupported = true
		result.CommonSVM = CombineSVMCaps(perPCPU)
	}

	return result, nil
}
