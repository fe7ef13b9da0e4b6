package probe_test

import (
	"testing"

	"github.com/wswitch/core/probe"
)

func TestCombineVMXCapsControlPairs(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string
		a, b probe.CtlPair
		want probe.CtlPair
	}{
		{
			name: "RequiredOR_AllowedAND",
			a:    probe.CtlPair{Required: 0b0011, Allowed: 0b1111},
			b:    probe.CtlPair{Required: 0b0110, Allowed: 0b0111},
			want: probe.CtlPair{Required: 0b0111, Allowed: 0b0111},
		},
		{
			name: "IdenticalPairsAreIdempotent",
			a:    probe.CtlPair{Required: 5, Allowed: 9},
			b:    probe.CtlPair{Required: 5, Allowed: 9},
			want: probe.CtlPair{Required: 5, Allowed: 9},
		},
	} {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			caps := []probe.VMXCaps{
				{Pinbased: test.a, Basic: probe.VMXBasic{Revision: 1, VMCSSize: 4096}},
				{Pinbased: test.b, Basic: probe.VMXBasic{Revision: 1, VMCSSize: 4096}},
			}

			got, err := probe.CombineVMXCaps(caps)
			if err != nil {
				t.Fatalf("CombineVMXCaps: %v", err)
			}

			if got.Pinbased != test.want {
				t.Errorf("have: %+v, want: %+v", got.Pinbased, test.want)
			}
		})
	}
}

func TestCombineVMXCapsRejectsMismatchedBasic(t *testing.T) {
	t.Parallel()

	caps := []probe.VMXCaps{
		{Basic: probe.VMXBasic{Revision: 1, VMCSSize: 4096}},
		{Basic: probe.VMXBasic{Revision: 2, VMCSSize: 4096}},
	}

	if _, err := probe.CombineVMXCaps(caps); err == nil {
		t.Fatal("expected error for mismatched VMX_BASIC revision")
	}
}

func TestCombineVMXCapsMinAndAndFields(t *testing.T) {
	t.Parallel()

	caps := []probe.VMXCaps{
		{
			Basic:       probe.VMXBasic{Revision: 1, VMCSSize: 4096, TrueCtls: true},
			Misc:        probe.VMXMisc{MaxCR3Targets: 4, MaxMSRs: 512, TimerRate: 0b1010},
			VMCSEnumMax: 10,
		},
		{
			Basic:       probe.VMXBasic{Revision: 1, VMCSSize: 4096, TrueCtls: false},
			Misc:        probe.VMXMisc{MaxCR3Targets: 8, MaxMSRs: 256, TimerRate: 0b1100},
			VMCSEnumMax: 6,
		},
	}

	got, err := probe.CombineVMXCaps(caps)
	if err != nil {
		t.Fatalf("CombineVMXCaps: %v", err)
	}

	if got.Basic.TrueCtls {
		t.Error("TrueCtls should be AND-combined to false")
	}

	if got.Misc.MaxCR3Targets != 4 {
		t.Errorf("MaxCR3Targets: have %d, want 4 (minimum)", got.Misc.MaxCR3Targets)
	}

	if got.Misc.MaxMSRs != 256 {
		t.Errorf("MaxMSRs: have %d, want 256 (minimum)", got.Misc.MaxMSRs)
	}

	if got.Misc.TimerRate != 0b1000 {
		t.Errorf("TimerRate: have %b, want %b (AND-combined)", got.Misc.TimerRate, 0b1000)
	}

	if got.VMCSEnumMax != 6 {
		t.Errorf("VMCSEnumMax: have %d, want 6 (minimum)", got.VMCSEnumMax)
	}
}

func TestVendorString(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string
		v    probe.Vendor
		want string
	}{
		{name: "Intel", v: probe.VendorIntel, want: "Intel"},
		{name: "AMD", v: probe.VendorAMD, want: "AMD"},
		{name: "Hygon", v: probe.VendorHygon, want: "Hygon"},
		{name: "Unknown", v: probe.Vendor(99), want: "Unknown"},
	} {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			if test.v.String() != test.want {
				t.Errorf("have: %s, want: %s", test.v.String(), test.want)
			}
		})
	}
}
