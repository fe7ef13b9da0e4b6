//go:build linux && amd64

package cpuarch

import "encoding/binary"

// sgdtLow/lgdtLow/sidtLow/lidtLow operate on the raw 10-byte pseudo-
// descriptor format SGDT/LGDT/SIDT/LIDT read and write in hardware (a
// 2-byte limit immediately followed by an 8-byte base, no padding).
// DTR64 itself is not used directly here: Go inserts 6 bytes of padding
// between a uint16 and a following uint64 field to keep the uint64
// 8-byte aligned, which would misplace the base that SGDT writes.
// Packing through a byte buffer sidesteps that without fighting the
// compiler's layout.
//
//go:noescape
func sgdtLow(out *[10]byte)

//go:noescape
func lgdtLow(in *[10]byte)

//go:noescape
func sidtLow(out *[10]byte)

//go:noescape
func lidtLow(in *[10]byte)

//go:noescape
func strLow() (selector uint16)

//go:noescape
func ltrLow(selector uint16)

func packDTR(d DTR64) [10]byte {
	var buf [10]byte

	binary.LittleEndian.PutUint16(buf[0:2], d.Limit)
	binary.LittleEndian.PutUint64(buf[2:10], d.Base)

	return buf
}

func unpackDTR(buf [10]byte) DTR64 {
	return DTR64{
		Limit: binary.LittleEndian.Uint16(buf[0:2]),
		Base:  binary.LittleEndian.Uint64(buf[2:10]),
	}
}

// SGDT captures the current GDTR, used by the switch driver to save the
// host GDT before loading the crossGDT (spec.md §4.6 step 11).
func SGDT() DTR64 {
	var buf [10]byte

	sgdtLow(&buf)

	return unpackDTR(buf)
}

// LGDT loads a new GDTR, used both to install the crossGDT for the
// duration of a switch and to restore the host's own GDT afterward.
func LGDT(d DTR64) {
	buf := packDTR(d)
	lgdtLow(&buf)
}

// SIDT captures the current IDTR (spec.md §4.6 step 6: "save host IDT").
func SIDT() DTR64 {
	var buf [10]byte

	sidtLow(&buf)

	return unpackDTR(buf)
}

// LIDT loads a new IDTR — used to install the crosspage's miniature
// switch IDT, and later to restore the host IDT.
func LIDT(d DTR64) {
	buf := packDTR(d)
	lidtLow(&buf)
}

// STR returns the current task register selector.
func STR() uint16 {
	return strLow()
}

// LTR loads the task register. The caller is responsible for first
// clearing the busy bit in the target TSS descriptor (spec.md §4.6 step
// 15c: "unbusying the TSS descriptor via a temporary RW-GDT copy").
func LTR(selector uint16) {
	ltrLow(selector)
}
