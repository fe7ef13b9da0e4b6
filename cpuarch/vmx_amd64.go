//go:build linux && amd64

package cpuarch

import "errors"

// ErrVMXInstrFailed is returned when a VMX instruction reports failure
// via CF (VMfailInvalid) or ZF (VMfailValid) in RFLAGS.
var ErrVMXInstrFailed = errors.New("vmx instruction failed")

//go:noescape
func vmxonLow(physAddr *uint64) (ok bool)

//go:noescape
func vmxoffLow()

//go:noescape
func vmptrldLow(physAddr *uint64) (ok bool)

//go:noescape
func vmptrstLow(physAddr *uint64)

// VMXON enters VMX root operation using the given VMXON-region physical
// address. Per spec.md §4.2, failure here usually means a foreign
// hypervisor already holds VMX root mode on this pCPU; the caller
// (package hvroot) is responsible for the VMPTRST/VMPTRLD coexistence
// dance described in Scenario C.
func VMXON(regionPA uint64) error {
	pa := regionPA
	if !vmxonLow(&pa) {
		return ErrVMXInstrFailed
	}

	return nil
}

// VMXOFF leaves VMX root operation.
func VMXOFF() {
	vmxoffLow()
}

// VMPTRLD makes the VMCS at the given physical address current.
func VMPTRLD(vmcsPA uint64) error {
	pa := vmcsPA
	if !vmptrldLow(&pa) {
		return ErrVMXInstrFailed
	}

	return nil
}

// VMPTRST stores the physical address of the current VMCS, used to
// snapshot a foreign hypervisor's VMCS pointer before this driver's own
// VMXON call (spec.md §4.2 foreign-hypervisor coexistence).
func VMPTRST() uint64 {
	var pa uint64

	vmptrstLow(&pa)

	return pa
}
