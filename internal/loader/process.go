// Package loader implements C7: the device-side loader that consumes a
// program file and a kernel symbol file, resolves imports, relocates
// sections into simulated flash/RAM, and publishes a running process.
package loader

// Process is a process descriptor address, opaque from the loader's
// point of view — just the runtime address a process list entry lives
// at, matching the design note that the installed header's pointer
// fields are modeled as offsets into a byte-slice arena, never
// language-native references.
type Process uint32

// ProcessList is the runtime's live process list. The loader only
// reads it and appends through Start, per §5's shared-resource model:
// the list itself is owned by the surrounding runtime, not the loader.
type ProcessList struct {
	procs []Process
}

// NewProcessList returns an empty process list.
func NewProcessList() *ProcessList {
	return &ProcessList{}
}

// Start appends a new live process at addr and returns its descriptor.
func (pl *ProcessList) Start(addr uint32) Process {
	p := Process(addr)
	pl.procs = append(pl.procs, p)
	return p
}

// Live returns a snapshot of the currently live processes.
func (pl *ProcessList) Live() []Process {
	out := make([]Process, len(pl.procs))
	copy(out, pl.procs)
	return out
}

// inRange reports whether addr is in [start, start+size).
func inRange(addr, start, size uint32) bool {
	return addr >= start && addr < start+size
}
