// Package probe implements the HW-caps probe component (spec.md §4.1):
// CPU vendor/feature detection and the per-pCPU MSR capability union
// that the rest of the core relies on to know whether VMX or SVM root
// mode is available and what control bits are legal.
package probe

import "github.com/wswitch/core/cpuarch"

// Vendor is a tag-dispatched sum type for the CPU vendor, matching
// spec.md §9 ("Dynamic dispatch... tag-dispatched by CpuidVendor").
type Vendor int

const (
	VendorUnknown Vendor = iota
	VendorIntel
	VendorAMD
	VendorHygon
)

func (v Vendor) String() string {
	switch v {
	case VendorIntel:
		return "Intel"
	case VendorAMD:
		return "AMD"
	case VendorHygon:
		return "Hygon"
	default:
		return "Unknown"
	}
}

const (
	vendorStringIntel = "GenuineIntel"
	vendorStringAMD   = "AuthenticAMD"
	vendorStringHygon = "HygonGenuine"
)

// DetectVendor reads CPUID leaf 0 and classifies the vendor string.
func DetectVendor() Vendor {
	switch cpuarch.Vendor() {
	case vendorStringIntel:
		return VendorIntel
	case vendorStringAMD:
		return VendorAMD
	case vendorStringHygon:
		return VendorHygon
	default:
		return VendorUnknown
	}
}

// Leaf1Features is the subset of CPUID leaf 1 EDX/ECX feature bits the
// core cares about (VMX availability, MSR/TSC presence).
type Leaf1Features struct {
	EDX uint32
	ECX uint32
}

const (
	Leaf1ECXVMX = 1 << 5
	Leaf1ECXSMX = 1 << 6
	Leaf1EDXMSR = 1 << 5
	Leaf1EDXTSC = 1 << 4
	Leaf1EDXMCE = 1 << 7
)

// ReadLeaf1Features reads CPUID leaf 1 and returns the relevant bits.
func ReadLeaf1Features() Leaf1Features {
	_, _, ecx, edx := cpuarch.CPUID(1, 0)

	return Leaf1Features{EDX: edx, ECX: ecx}
}

// HasVMX reports whether CPUID leaf 1 advertises VMX support.
func (f Leaf1Features) HasVMX() bool { return f.ECX&Leaf1ECXVMX != 0 }

// PhysAddrWidth reads CPUID leaf 0x80000008 EAX[7:0], the physical
// address width in bits (spec.md §4.1).
func PhysAddrWidth() uint8 {
	if cpuarch.MaxExtendedLeaf() < 0x80000008 {
		return 36 // conservative pre-long-mode-era default
	}

	eax, _, _, _ := cpuarch.CPUID(0x80000008, 0)

	return uint8(eax)
}
