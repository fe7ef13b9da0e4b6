package hostif

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// RunOnPCPU satisfies probe.RunOnPCPU: it locks the calling goroutine to
// its OS thread, pins that thread to pcpu via sched_setaffinity, runs fn,
// and restores the thread's prior affinity mask before unlocking. The
// probe and the switch driver both need "really executing on pCPU N"
// rather than "probably", since CPUID/RDMSR/VMXON are all per-pCPU state
// (spec.md §4.1, §4.6 step 3).
func RunOnPCPU(pcpu int, fn func()) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		return fmt.Errorf("hostif: SchedGetaffinity: %w", err)
	}

	var want unix.CPUSet
	want.Set(pcpu)

	if err := unix.SchedSetaffinity(0, &want); err != nil {
		return fmt.Errorf("hostif: pin to pCPU %d: %w", pcpu, err)
	}

	defer func() {
		_ = unix.SchedSetaffinity(0, &prev)
	}()

	fn()

	return nil
}
