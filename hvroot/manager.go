package hvroot

import "github.com/wswitch/core/probe"

// RootState is the tag-dispatched union of the two vendor-specific root
// modes, carried across a single world switch (spec.md §9: "all
// 'polymorphism' is tag-dispatched by CpuidVendor... implement with a sum
// type + match").
type RootState struct {
	vendor probe.Vendor
	intel  IntelState
	amd    AMDState
}

// Enter acquires VMX or SVM root mode on the current pCPU, dispatching
// on vendor (spec.md §4.6 step 8).
func Enter(vendor probe.Vendor, rootPagePA uint64) (RootState, error) {
	switch vendor {
	case probe.VendorIntel:
		st, err := EnterIntel(rootPagePA)
		if err != nil {
			return RootState{}, err
		}

		return RootState{vendor: vendor, intel: st}, nil

	case probe.VendorAMD, probe.VendorHygon:
		return RootState{vendor: vendor, amd: EnterAMD(rootPagePA)}, nil

	default:
		return RootState{}, errUnsupportedVendor
	}
}

// Leave reverses Enter.
func Leave(s RootState) error {
	switch s.vendor {
	case probe.VendorIntel:
		return LeaveIntel(s.intel)
	case probe.VendorAMD, probe.VendorHygon:
		LeaveAMD(s.amd)

		return nil
	default:
		return errUnsupportedVendor
	}
}
