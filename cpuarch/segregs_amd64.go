//go:build linux && amd64

package cpuarch

//go:noescape
func loadDSLow(sel uint16)

//go:noescape
func loadESLow(sel uint16)

//go:noescape
func loadFSLow(sel uint16)

//go:noescape
func loadGSLow(sel uint16)

// LoadDS / LoadES / LoadFS / LoadGS reload a segment register from a
// selector already present in the GDT/crossGDT (spec.md §4.6 step 15d:
// "restore DS/ES/FS/GS selectors"). FS/GS base MSRs are restored
// separately since reloading the selector alone resets the base on
// some microarchitectures.
func LoadDS(sel uint16) { loadDSLow(sel) }
func LoadES(sel uint16) { loadESLow(sel) }
func LoadFS(sel uint16) { loadFSLow(sel) }
func LoadGS(sel uint16) { loadGSLow(sel) }
