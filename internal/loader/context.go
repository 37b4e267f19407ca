package loader

import (
	"fmt"
	"sync"

	"github.com/xyproto/minilink/internal/devsim"
	"github.com/xyproto/minilink/internal/format"
)

// Status is the device-side load outcome, matching the error taxonomy
// verbatim by value.
type Status int

const (
	StatusOK         Status = 0
	StatusBadFile    Status = 1
	StatusBusy       Status = 2
	StatusUnresolved Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadFile:
		return "bad file"
	case StatusBusy:
		return "busy"
	case StatusUnresolved:
		return "unresolved symbol"
	default:
		return "unknown status"
	}
}

// Filesystem is the byte-oriented open/read collaborator the loader
// reads program and symbol files through.
type Filesystem interface {
	ReadFile(name string) ([]byte, error)
}

// Context carries the loader's process-wide mutable state: the free-ROM
// cursor, the flash and RAM backing stores, and a misuse guard against
// concurrent loads (§5: "not a concurrency feature").
type Context struct {
	mu sync.Mutex

	flash *devsim.Flash
	ram   *devsim.RAM
	fs    Filesystem

	freeROMStart         uint32 // mutable cursor: next free byte in the ROM region
	originalFreeROMStart uint32 // fixed: where the installed-module chain begins
	freeROMEnd           uint32 // fixed ceiling: start of the vector table
	noinitEnd            uint32 // resident boundary consulted by IsLoaded: addresses below it are never a loaded process

	ramAlloc *devsim.Allocator // general allocator for DATA+BSS/MIG/MIGPTR

	initialized bool
	procs       *ProcessList
}

// NewContext constructs an uninitialized loader context over the given
// simulated backing stores. freeROMStart/freeROMEnd are the
// linker-supplied bounds of the ROM region available for installs;
// noinitEnd is the resident-data boundary IsLoaded tests against.
func NewContext(flash *devsim.Flash, ram *devsim.RAM, fs Filesystem, freeROMStart, freeROMEnd, noinitEnd uint32, procs *ProcessList) *Context {
	return &Context{
		flash:                flash,
		ram:                  ram,
		fs:                   fs,
		freeROMStart:         freeROMStart,
		originalFreeROMStart: freeROMStart,
		freeROMEnd:           freeROMEnd,
		noinitEnd:            noinitEnd,
		// The general allocator hands out RAM starting at noinitEnd:
		// everything below it is resident (statically initialized)
		// RAM, everything from noinitEnd upward is available to the
		// loader, the same boundary IsLoaded tests addresses against.
		ramAlloc: devsim.NewAllocator(ram, int(noinitEnd), ram.Size()-int(noinitEnd)),
		procs:    procs,
	}
}

// Init scans backward from freeROMEnd over erased bytes (0xFF or 0x00)
// to find the end of any already-installed module chain, advancing the
// free-ROM cursor past it, then forward-validates that chain via
// InstalledWalk. It must be called exactly once; a second call panics,
// the misuse guard §9 calls for around the loader's process-wide state.
func (c *Context) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		panic("loader: Init called twice on the same Context")
	}

	pos := c.freeROMEnd
	for pos > c.freeROMStart {
		b, err := c.flash.Read(int(pos-1), 1)
		if err != nil {
			return fmt.Errorf("loader: Init: reading flash at %d: %w", pos-1, err)
		}
		if b[0] == 0xFF || b[0] == 0x00 {
			pos--
			continue
		}
		break
	}
	c.freeROMStart = pos
	c.initialized = true

	mods, err := c.installedModules()
	if err != nil {
		return fmt.Errorf("loader: Init: validating installed chain: %w", err)
	}
	// A module whose last bytes are 0x00 stops the backward scan inside
	// it, so the cursor is raised to the end of the chain as well.
	if len(mods) > 0 {
		last := mods[len(mods)-1]
		end := last.flashOffset + uint32(format.InstalledHeaderSize) + uint32(last.header.Mem[format.SectionText].Size)
		if end > c.freeROMStart {
			c.freeROMStart = end
		}
	}
	return nil
}
