// Package config centralizes the environment-variable-driven defaults
// shared by the host tools and the simulated device harness, reading
// them through github.com/xyproto/env/v2 the way the teacher's go.mod
// declares but never actually uses — this is the genuine home that
// dependency gets in this repository.
package config

import (
	"flag"

	"github.com/xyproto/env/v2"
)

// Verbose gates every VerboseMode-style diagnostic print in the tree,
// mirroring the teacher's package-level VerboseMode bool.
var Verbose = env.Bool("MINILINK_VERBOSE")

// Defaults holds the environment-sourced defaults a CLI's flag set is
// seeded with before flag.Parse overrides them; flags always win over
// the environment, matching the teacher's cli.go flag-then-fallback
// precedence.
type Defaults struct {
	KernelImagePath string
	FreeROMStart    uint32
	FreeROMEnd      uint32
}

// LoadDefaults reads MINILINK_KERNEL_IMAGE, MINILINK_FREEROM_START and
// MINILINK_FREEROM_END, falling back to the given zero values when
// unset.
func LoadDefaults() Defaults {
	return Defaults{
		KernelImagePath: env.Str("MINILINK_KERNEL_IMAGE", ""),
		FreeROMStart:    uint32(env.Int("MINILINK_FREEROM_START", 0)),
		FreeROMEnd:      uint32(env.Int("MINILINK_FREEROM_END", 0)),
	}
}

// RegisterVerboseFlag adds the conventional "-v" flag to fs, seeded
// from the environment, and returns a function that must be called
// after fs.Parse to apply the final value to Verbose.
func RegisterVerboseFlag(fs *flag.FlagSet) func() {
	v := fs.Bool("v", Verbose, "enable verbose diagnostic output")
	return func() { Verbose = *v }
}
