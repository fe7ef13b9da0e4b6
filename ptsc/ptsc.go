// Package ptsc implements the pseudo-TSC subsystem (spec.md §4.7): a
// per-VM monotonic time source that survives world switches, tracks
// real time, and stays mutually consistent across VCPUs when the
// hardware TSCs are synchronized.
//
// Built entirely on sync/atomic and math/bits: the representation is a
// linear function over two 64-bit CAS-guarded words, which is exactly
// what the standard library's atomics are for — no pack in the example
// corpus models this kind of clock arithmetic any better than hand
// rolling it (see SPEC_FULL.md's "Components built on the standard
// library only" note).
package ptsc

import (
	"math/bits"
	"sync/atomic"
)

// HZ is the assumed reference-clock tick rate used to size the "TSC
// reset" detection threshold (spec.md §4.7 step 2: "greater than
// 4096 * HZ").
const HZ = 1000

// resetThreshold and oneSecond are expressed in PTSC units (nanosecond
// resolution, matching the host reference clock).
const (
	resetThreshold = 4096 * HZ
	oneSecond      = 1_000_000_000
)

// Clock supplies the two raw time sources UpdatePTSCParameters needs:
// the host reference clock and the hardware TSC. Implemented by the
// host-OS shim (HostIF_ReadUptime-equivalent) and cpuarch.RDTSC.
type Clock interface {
	ReferencePTSC() uint64
	TSC() uint64
}

// packOffsetInfo/unpackOffsetInfo implement the {vcpuid, inVmmCnt}
// packed dword pair CAS'd as one 64-bit word (spec.md §3:
// "ptscOffsetInfo (packed {vcpuid, inVmmCnt})").
func packOffsetInfo(vcpuid, inVmmCnt uint32) uint64 {
	return uint64(vcpuid)<<32 | uint64(inVmmCnt)
}

func unpackOffsetInfo(v uint64) (vcpuid, inVmmCnt uint32) {
	return uint32(v >> 32), uint32(v)
}

// VMState is the pseudo-TSC bookkeeping shared by every VCPU of one VM
// (spec.md §5 concurrency table: ptscOffsetInfo/ptscLatest "shared by
// all VCPUs of a VM").
type VMState struct {
	offsets          []atomic.Uint64
	offsetInfo       atomic.Uint64
	latest           atomic.Uint64
	synchronizedTSCs bool
}

// NewVMState creates per-VM PTSC state for numVCPUs VCPUs.
// synchronizedTSCs reflects whether the host reports hardware TSCs as
// synchronized across pCPUs (spec.md §4.7 step 4 vs step 5).
func NewVMState(numVCPUs int, synchronizedTSCs bool) *VMState {
	return &VMState{
		offsets:          make([]atomic.Uint64, numVCPUs),
		synchronizedTSCs: synchronizedTSCs,
	}
}

// UpdatePTSCParameters runs on every entry to Switch (spec.md §4.7
// "On each entry to Switch"). It returns the {add} term this VCPU
// should use for the upcoming switch and the new worldSwitchPTSC value
// the caller should cache in the crosspage.
func (v *VMState) UpdatePTSCParameters(vcpuid int, clk Clock, worldSwitchPTSC uint64) (add, newWorldSwitchPTSC uint64) {
	now := clk.ReferencePTSC()

	if now > worldSwitchPTSC && now-worldSwitchPTSC > resetThreshold {
		// Absurd forward jump: treat as a TSC reset or sync failure and
		// fall back to the reference clock outright (now is already
		// reference-clock based, so there's nothing further to adjust).
	} else if now < worldSwitchPTSC && worldSwitchPTSC-now < oneSecond {
		// Tolerate a low-resolution reference clock ticking behind by
		// less than a second: clamp forward rather than go backwards.
		now = worldSwitchPTSC
	}

	tsc := clk.TSC()

	if v.synchronizedTSCs {
		add = v.claimSynchronizedOffset(uint32(vcpuid), now, tsc)
	} else {
		add = now - tsc
	}

	return add, now
}

// claimSynchronizedOffset implements spec.md §4.7 step 4: the first
// VCPU into the monitor computes and advertises the shared offset;
// every other entrant just bumps the refcount and reuses it.
func (v *VMState) claimSynchronizedOffset(vcpuid uint32, ptsc, tsc uint64) uint64 {
	for {
		info := v.offsetInfo.Load()
		advertiser, inVmmCnt := unpackOffsetInfo(info)

		if inVmmCnt == 0 {
			offset := ptsc - tsc
			v.offsets[vcpuid].Store(offset)
			advertiser = vcpuid
		}

		newInfo := packOffsetInfo(advertiser, inVmmCnt+1)
		if v.offsetInfo.CompareAndSwap(info, newInfo) {
			return v.offsets[advertiser].Load()
		}
	}
}

// UpdateLatestPTSC runs on return from the monitor (spec.md §4.7
// "On return from monitor"). add is the value UpdatePTSCParameters
// returned for this switch.
func (v *VMState) UpdateLatestPTSC(clk Clock, add uint64) {
	upperBound := clk.TSC() + add

	for {
		cur := v.latest.Load()
		if upperBound <= cur {
			break
		}

		if v.latest.CompareAndSwap(cur, upperBound) {
			break
		}
	}

	for {
		info := v.offsetInfo.Load()
		advertiser, inVmmCnt := unpackOffsetInfo(info)

		if inVmmCnt == 0 {
			break
		}

		if v.offsetInfo.CompareAndSwap(info, packOffsetInfo(advertiser, inVmmCnt-1)) {
			break
		}
	}
}

// Latest returns ptscLatest, the conservative upper bound any VCPU
// currently outside the monitor must observe as ≥ (spec.md §4.7
// invariant).
func (v *VMState) Latest() uint64 {
	return v.latest.Load()
}

// ConvMult returns ptsc = mult*tsc/2^shift + add using a 128-bit
// intermediate product so mult*tsc can't silently wrap a 64-bit
// register (math/bits.Mul64, the standard library's primitive for
// exactly this).
func ConvMult(mult uint64, shift uint8, add, tsc uint64) uint64 {
	hi, lo := bits.Mul64(mult, tsc)

	var shifted uint64
	if shift == 0 {
		shifted = lo
	} else {
		shifted = (lo >> shift) | (hi << (64 - shift))
	}

	return shifted + add
}
