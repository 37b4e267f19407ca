package loader

import "github.com/xyproto/minilink/internal/format"

// CleanSpace implements Operation CleanSpace (§4.7): it refuses to
// reclaim the ROM region if any live process is still owned by an
// installed module, otherwise it re-initializes the ROM cursor and
// erases [freerom_start, freerom_end) in erase-unit-sized chunks,
// ready for a fresh round of installs.
func (c *Context) CleanSpace() (Process, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mods, err := c.installedModules()
	if err != nil {
		return 0, false
	}
	for _, m := range mods {
		if p, busy := c.liveProcessOwnedBy(m); busy {
			return p, true
		}
	}

	start := int(c.originalFreeROMStart)
	length := int(c.freeROMEnd) - start
	if length > 0 {
		if err := c.flash.EraseRange(start, length); err != nil {
			return 0, false
		}
	}
	c.freeROMStart = c.originalFreeROMStart
	return 0, false
}

// IsLoaded reports whether a process descriptor lies above the
// resident __noinit_end boundary, the simple address test §4.7 names.
func (c *Context) IsLoaded(p Process) bool {
	return uint32(p) >= c.noinitEnd
}

// FilenameFor finds the installed module whose DATA range contains p's
// descriptor address and returns its source filename.
func (c *Context) FilenameFor(p Process) (string, bool) {
	m, ok := c.moduleOwning(p)
	if !ok {
		return "", false
	}
	return m.header.SourceFile, true
}

// InfoHeaderFor returns the installed program info header of the
// module that owns p, if any.
func (c *Context) InfoHeaderFor(p Process) (*format.InstalledHeader, bool) {
	m, ok := c.moduleOwning(p)
	if !ok {
		return nil, false
	}
	hdr := m.header
	return &hdr, true
}

func (c *Context) moduleOwning(p Process) (installedModule, bool) {
	mods, err := c.installedModules()
	if err != nil {
		return installedModule{}, false
	}
	for _, m := range mods {
		data := m.header.Mem[format.SectionData]
		if inRange(uint32(p), data.Ptr, uint32(data.Size)) {
			return m, true
		}
	}
	return installedModule{}, false
}
