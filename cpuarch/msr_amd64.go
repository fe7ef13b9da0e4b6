//go:build linux && amd64

package cpuarch

import "fmt"

//go:noescape
func rdmsrLow(msr uint32) (lo, hi uint32)

//go:noescape
func wrmsrLow(msr uint32, lo, hi uint32)

// RDMSR reads a model-specific register. It must run with CPL0
// privilege; callers outside the driver's kernel-mode context will take
// a #GP, which the caller is responsible for handling via
// HostIF_SafeRDMSR-style recovery (spec.md §6).
func RDMSR(msr uint32) uint64 {
	lo, hi := rdmsrLow(msr)

	return uint64(hi)<<32 | uint64(lo)
}

// WRMSR writes a model-specific register.
func WRMSR(msr uint32, value uint64) {
	wrmsrLow(msr, uint32(value), uint32(value>>32))
}

// SafeRDMSR mirrors HostIF_SafeRDMSR (spec.md §6): some MSRs are absent
// on a given microarchitecture and reading them raises #GP rather than
// returning a value. With a nil recover it performs a plain RDMSR, which
// takes the #GP; otherwise it delegates the read to recover and wraps
// any error it returns. No package in this module supplies a recover
// function.
func SafeRDMSR(msr uint32, recover func(uint32) (uint64, error)) (uint64, error) {
	if recover == nil {
		return RDMSR(msr), nil
	}

	v, err := recover(msr)
	if err != nil {
		return 0, fmt.Errorf("SafeRDMSR(0x%x): %w", msr, err)
	}

	return v, nil
}
