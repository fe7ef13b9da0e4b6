package hostif

import (
	"golang.org/x/sys/unix"

	"github.com/wswitch/core/cpuarch"
)

// SystemClock satisfies ptsc.Clock using CLOCK_MONOTONIC_RAW as the
// reference clock (spec.md §4.7: "host reference clock... monotonic,
// unaffected by NTP adjustment") and the raw hardware TSC for the other
// half of the pair.
type SystemClock struct{}

// ReferencePTSC returns nanoseconds since an arbitrary fixed point,
// matching the PTSC unit convention ptsc.HZ/oneSecond assume.
func (SystemClock) ReferencePTSC() uint64 {
	var ts unix.Timespec

	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts)

	return uint64(ts.Sec)*1_000_000_000 + uint64(ts.Nsec)
}

// TSC reads the raw hardware time-stamp counter.
func (SystemClock) TSC() uint64 {
	return cpuarch.RDTSC()
}
