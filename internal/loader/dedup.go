package loader

import "github.com/xyproto/minilink/internal/format"

// findInstalled walks the installed-module chain looking for a module
// that is identical to the one about to be loaded, per Testable
// Property 7: equality is (crc, text_size, source_file), matching the
// original's program_already_loaded check.
func (c *Context) findInstalled(crc uint32, textSize uint16, sourceFile string) (*installedModule, error) {
	mods, err := c.installedModules()
	if err != nil {
		return nil, err
	}
	for i := range mods {
		m := &mods[i]
		if m.header.CRC == crc && m.header.Mem[format.SectionText].Size == textSize && m.header.SourceFile == sourceFile {
			return m, nil
		}
	}
	return nil, nil
}

// liveProcessOwnedBy reports whether any currently live process is a
// descriptor living inside m's DATA range — the same ownership test
// FilenameFor and CleanSpace use to attribute a process to the
// installed module that created it.
func (c *Context) liveProcessOwnedBy(m installedModule) (Process, bool) {
	data := m.header.Mem[format.SectionData]
	for _, p := range c.procs.Live() {
		if inRange(uint32(p), data.Ptr, uint32(data.Size)) {
			return p, true
		}
	}
	return 0, false
}
