package loader

import (
	"fmt"

	"github.com/xyproto/minilink/internal/format"
)

// installedModule pairs a decoded installed-program header with the
// flash offset its header begins at, the book-keeping InstalledWalk,
// CleanSpace, and FilenameFor all need.
type installedModule struct {
	header      format.InstalledHeader
	flashOffset uint32
}

// installedModules walks the chain beginning at the aligned ROM cursor
// base (originalFreeROMStart, the linker-given chain start, not the
// moving freeROMStart cursor — the chain is walked from the bottom of the free
// region up), advancing by sizeof(header)+text_size per step, stopping
// when the magic doesn't match or the next step would exceed
// freeROMEnd. This is Operation InstalledWalk.
func (c *Context) installedModules() ([]installedModule, error) {
	var out []installedModule
	pos := c.chainBase()

	for pos+uint32(format.InstalledHeaderSize) <= c.freeROMEnd {
		raw, err := c.flash.Read(int(pos), format.InstalledHeaderSize)
		if err != nil {
			return nil, fmt.Errorf("loader: reading installed header at %d: %w", pos, err)
		}
		hdr, err := format.DecodeInstalledHeader(raw)
		if err != nil {
			// A decode failure this deep into the chain means flash
			// content stopped looking like a header; treat it the
			// same as hitting erased space; the earlier decoded
			// magic mismatch for freshly erased bytes is the common
			// case.
			break
		}
		if hdr.Magic != format.MagicInstalled {
			break
		}
		step := uint32(format.InstalledHeaderSize) + uint32(hdr.Mem[format.SectionText].Size)
		if pos+step > c.freeROMEnd {
			break
		}
		out = append(out, installedModule{header: hdr, flashOffset: pos})
		pos += step
	}
	return out, nil
}

// chainBase is the fixed address the installed-module chain always
// begins scanning from, distinct from freeROMStart which moves forward
// as Init and Load consume space.
func (c *Context) chainBase() uint32 {
	return c.originalFreeROMStart
}
