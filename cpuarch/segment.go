package cpuarch

// Segment is an x86 segment descriptor as loaded into a segment register,
// laid out the same way the teacher's kvm.Segment is (kvm/registers.go) —
// this core talks to real hardware instead of a KVM ioctl, but the shape
// of "what a segment register is" doesn't change.
type Segment struct {
	Base     uint64
	Limit    uint32
	Selector uint16
	Typ      uint8
	Present  uint8
	DPL      uint8
	DB       uint8
	S        uint8
	L        uint8
	G        uint8
	AVL      uint8
	Unusable uint8
}

// DTR64 is a descriptor-table register value as loaded/stored by
// sgdt/lgdt/sidt/lidt: a 16-bit limit and a 64-bit linear base.
type DTR64 struct {
	Limit uint16
	Base  uint64
}

// Descriptor is a single raw 8-byte GDT/LDT slot, the unit the CrossGDT
// builder compares and copies.
type Descriptor uint64

// Present reports whether the descriptor's present bit (bit 47) is set.
func (d Descriptor) Present() bool {
	return d&(1<<47) != 0
}

// EqualIgnoringAccessed compares two descriptors for equality while
// masking out the accessed bit (bit 40), matching the CrossGDT
// invariant in spec.md §3/§4.3: "ignoring the accessed bit".
func (d Descriptor) EqualIgnoringAccessed(other Descriptor) bool {
	const accessedBit = 1 << 40

	return d&^accessedBit == other&^accessedBit
}
