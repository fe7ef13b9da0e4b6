//go:build !test

// Command vswitchctl is the core's debug/introspection CLI (spec.md
// §9), the counterpart of the teacher's `main.go` + `tools/testCaps.go` +
// `probe/cpuid.go` dispatch: a thin flag-parsing front end over the
// probe and PT-patch engine packages, useful for sizing and profiling
// them. The patch dry run touches no hardware; the probe subcommand runs
// CPUID and RDMSR on the CPUs it probes.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/felixge/fgprof"
	"github.com/pkg/profile"
)

func main() {
	profileKind := os.Getenv("VSWITCHCTL_PROFILE")

	stop := startProfile(profileKind)
	defer stop()

	probeArgs, patchArgs, err := ParseArgs(os.Args)
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case probeArgs != nil:
		err = runProbe(probeArgs)
	case patchArgs != nil:
		err = runPatch(patchArgs)
	}

	if err != nil {
		log.Fatal(err)
	}
}

// startProfile wires the teacher's profiling stack (pkg/profile,
// felixge/fgprof, transitively google/pprof) into whichever subcommand
// runs, selected by the VSWITCHCTL_PROFILE environment variable rather
// than a flag so it composes with either subcommand's own flag set
// without a collision: "cpu", "mem" or "fgprof"; any other value
// disables profiling.
func startProfile(kind string) func() {
	switch kind {
	case "cpu":
		p := profile.Start(profile.CPUProfile, profile.ProfilePath("."))

		return p.Stop

	case "mem":
		p := profile.Start(profile.MemProfile, profile.ProfilePath("."))

		return p.Stop

	case "fgprof":
		f, err := os.Create("fgprof.pprof")
		if err != nil {
			log.Printf("vswitchctl: fgprof: %v", err)

			return func() {}
		}

		stopFgprof := fgprof.Start(f, fgprof.FormatPprof)

		return func() {
			if err := stopFgprof(); err != nil {
				log.Printf("vswitchctl: fgprof stop: %v", err)
			}

			f.Close()
		}

	default:
		return func() {}
	}
}

func runProbe(c *ProbeArgs) error {
	caps, err := probeHWCaps(c.NumPCPUs)
	if err != nil {
		return err
	}

	fmt.Printf("vendor=%s physAddrWidth=%d vtSupported=%v svmSupported=%v\n",
		caps.Vendor, caps.PhysAddrWidth, caps.VTSupported, caps.SVMSupported)

	return nil
}

func runPatch(c *PatchArgs) error {
	result, err := dryRunPatch(c.NumPages, c.MonStart, c.MonEnd)
	if err != nil {
		return err
	}

	fmt.Printf("patched %d pages\n", result)

	return nil
}
