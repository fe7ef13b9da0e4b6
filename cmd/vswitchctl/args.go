package main

import (
	"errors"
	"flag"
)

// ErrInvalidSubcommand mirrors the teacher's flag.ErrorInvalidSubcommands
// (gokvm flag/flag.go), one sentinel per CLI rather than a distinct error
// type per subcommand.
var ErrInvalidSubcommand = errors.New("vswitchctl: expected 'probe' or 'patch' subcommand")

// ProbeArgs configures the `probe` subcommand: probe the first NumPCPUs
// logical CPUs and print their combined HW-caps result as one line
// (spec.md §4.1).
type ProbeArgs struct {
	NumPCPUs int
}

func parseProbeArgs(args []string) (*ProbeArgs, error) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	c := &ProbeArgs{}

	fs.IntVar(&c.NumPCPUs, "n", 1, "number of logical CPUs to probe")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return c, nil
}

// PatchArgs configures the `patch` subcommand: a dry run of the PT-patch
// engine's tree-walk over a synthetic set of LPNs, for sizing and
// profiling the patch-table logic in isolation from real hardware
// (spec.md §4.4 — "the hottest pure-Go loop in the core").
type PatchArgs struct {
	NumPages int
	MonStart uint64
	MonEnd   uint64
}

func parsePatchArgs(args []string) (*PatchArgs, error) {
	fs := flag.NewFlagSet("patch", flag.ExitOnError)
	c := &PatchArgs{}

	fs.IntVar(&c.NumPages, "n", 64, "number of synthetic monitor pages to patch")
	fs.Uint64Var(&c.MonStart, "mon-start", 0xFFFFFFFF80000000, "monitor region start LPN base address")
	fs.Uint64Var(&c.MonEnd, "mon-end", 0xFFFFFFFF80100000, "monitor region end LPN base address")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return c, nil
}

// ParseArgs dispatches on args[1], the same shape as the teacher's
// flag.ParseArgs.
func ParseArgs(args []string) (*ProbeArgs, *PatchArgs, error) {
	if len(args) < 2 {
		return nil, nil, ErrInvalidSubcommand
	}

	switch args[1] {
	case "probe":
		c, err := parseProbeArgs(args[2:])

		return c, nil, err

	case "patch":
		c, err := parsePatchArgs(args[2:])

		return nil, c, err
	}

	return nil, nil, ErrInvalidSubcommand
}
