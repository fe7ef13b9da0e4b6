//go:build linux && amd64

package cpuarch

//go:noescape
func cpuidLow(eaxArg, ecxArg uint32) (eax, ebx, ecx, edx uint32)

// CPUID executes the CPUID instruction for the given leaf/subleaf and
// returns the raw EAX:EBX:ECX:EDX result. Grounded on the teacher's
// cpuid/cpuid.go, which declares the identical `cpuid_low` stub backed
// by a hand-written .s file; the asm body here follows the same idiom
// golang.org/x/sys/cpu uses for its own `cpuid` stub.
func CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32) {
	return cpuidLow(leaf, subleaf)
}

// Vendor reads CPUID leaf 0 and decodes the 12-character vendor string
// from EBX:EDX:ECX, per spec.md §4.1.
func Vendor() string {
	_, ebx, ecx, edx := CPUID(0, 0)

	b := make([]byte, 0, 12)
	for _, r := range [3]uint32{ebx, edx, ecx} {
		b = append(b, byte(r), byte(r>>8), byte(r>>16), byte(r>>24))
	}

	return string(b)
}

// MaxBasicLeaf returns the highest supported basic CPUID leaf (the EAX
// result of leaf 0).
func MaxBasicLeaf() uint32 {
	eax, _, _, _ := CPUID(0, 0)

	return eax
}

// MaxExtendedLeaf returns the highest supported extended CPUID leaf (the
// EAX result of leaf 0x80000000).
func MaxExtendedLeaf() uint32 {
	eax, _, _, _ := CPUID(0x80000000, 0)

	return eax
}
