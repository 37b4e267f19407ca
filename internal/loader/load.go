package loader

import (
	"github.com/xyproto/minilink/internal/devsim"
	"github.com/xyproto/minilink/internal/format"
	"github.com/xyproto/minilink/internal/reloc"
	"github.com/xyproto/minilink/internal/symtab"
)

// Load reads the program file at progPath and the kernel symbol file
// at symPath, validates them, resolves every import against the
// kernel symbol table, relocates the module's sections into flash and
// RAM (or reuses an already-installed copy), and publishes a new
// process. It implements Operation Load (§4.7).
func (c *Context) Load(progPath, symPath string) (Process, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(progPath) >= format.MaxSourceFileLen {
		return 0, StatusBadFile
	}

	symRaw, err := c.fs.ReadFile(symPath)
	if err != nil || !checkFile(symRaw, format.SymbolHeaderSize+1, format.MagicSymbol) {
		return 0, StatusBadFile
	}
	progRaw, err := c.fs.ReadFile(progPath)
	if err != nil || !checkFile(progRaw, format.ProgramHeaderSize+1, format.MagicProgram) {
		return 0, StatusBadFile
	}

	ph, err := format.DecodeProgramHeader(progRaw)
	if err != nil {
		return 0, StatusBadFile
	}
	for _, sz := range []uint16{ph.TextSize, ph.DataSize, ph.BSSSize, ph.MigSize, ph.MigPtrSize} {
		if sz%2 != 0 {
			return 0, StatusBadFile
		}
	}

	n := int(ph.SymEntries)
	importCur := symtab.NewImportCursor(progRaw[format.ProgramHeaderSize:], n)
	imports := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if !importCur.Advance() {
			return 0, StatusBadFile
		}
		imports = append(imports, importCur.CurrentName())
	}
	relocStart := format.ProgramHeaderSize + importCur.Pos()

	kernelEntries := symRaw[format.SymbolHeaderSize : len(symRaw)-1]
	kernelCur := symtab.NewCursor(kernelEntries, len(kernelEntries))
	kernelValues := make([]uint16, n)
	for i, name := range imports {
		v, ok := kernelCur.Resolve(name)
		if !ok {
			return 0, StatusUnresolved
		}
		kernelValues[i] = v
	}

	if existing, err := c.findInstalled(ph.Common.CRC, ph.TextSize, progPath); err != nil {
		return 0, StatusBadFile
	} else if existing != nil {
		if _, busy := c.liveProcessOwnedBy(*existing); busy {
			return 0, StatusBusy
		}
		return c.procs.Start(existing.header.Mem[format.SectionData].Ptr), StatusOK
	}

	return c.installFresh(&ph, progRaw[relocStart:], imports, kernelValues, progPath)
}

// installFresh allocates flash and RAM for a module with no existing
// installed copy, relocates every section into place, writes the
// installed header, and publishes the resulting process (§4.7 steps
// 5-7).
func (c *Context) installFresh(ph *format.ProgramHeader, relocBlob []byte, imports []string, kernelValues []uint16, sourceFile string) (Process, Status) {
	flashSize := format.InstalledHeaderSize + int(ph.TextSize)
	if int(c.freeROMEnd)-int(c.freeROMStart) < flashSize {
		return 0, StatusBusy
	}
	headerAddr := c.freeROMStart
	textAddr := headerAddr + uint32(format.InstalledHeaderSize)

	ramMark := c.ramAlloc.Mark()
	fail := func() (Process, Status) {
		c.ramAlloc.Unwind(ramMark)
		return 0, StatusBadFile
	}
	outOfMemory := func() (Process, Status) {
		c.ramAlloc.Unwind(ramMark)
		return 0, StatusBusy
	}

	var dataBase, migBase, migPtrBase int
	var err error
	// DATA is always allocated, even when empty, so the module's
	// process handle (the DATA base address) is always a valid,
	// in-range RAM address.
	dataBase, err = c.ramAlloc.Alloc(int(ph.DataSize) + int(ph.BSSSize))
	if err != nil {
		return outOfMemory()
	}
	if ph.MigSize > 0 {
		migBase, err = c.ramAlloc.Alloc(int(ph.MigSize))
		if err != nil {
			return outOfMemory()
		}
	}
	if ph.MigPtrSize > 0 {
		migPtrBase, err = c.ramAlloc.Alloc(int(ph.MigPtrSize))
		if err != nil {
			return outOfMemory()
		}
	}

	sizes := map[format.Section]int{
		format.SectionText:   int(ph.TextSize),
		format.SectionData:   int(ph.DataSize),
		format.SectionBSS:    int(ph.BSSSize),
		format.SectionMig:    int(ph.MigSize),
		format.SectionMigPtr: int(ph.MigPtrSize),
	}
	resolver := &moduleResolver{
		kernelValues: kernelValues,
		bases:        reloc.BaseOffsets(sizes),
		placement: map[format.Section]sectionPlacement{
			format.SectionText:   {base: textAddr, size: int(ph.TextSize)},
			format.SectionData:   {base: uint32(dataBase), size: int(ph.DataSize)},
			format.SectionBSS:    {base: uint32(dataBase) + uint32(ph.DataSize), size: int(ph.BSSSize)},
			format.SectionMig:    {base: uint32(migBase), size: int(ph.MigSize)},
			format.SectionMigPtr: {base: uint32(migPtrBase), size: int(ph.MigPtrSize)},
		},
	}

	if ph.BSSSize > 0 {
		if err := c.ram.Zero(dataBase+int(ph.DataSize), int(ph.BSSSize)); err != nil {
			return fail()
		}
	}

	pos := 0
	for _, sec := range format.RelocEmissionOrder {
		size := int(ph.SizeOf(sec))
		var w interface {
			Write([]byte) (int, error)
		}
		switch sec {
		case format.SectionData:
			w = devsim.NewSequentialWriter(c.ram, dataBase)
		case format.SectionMig:
			w = devsim.NewSequentialWriter(c.ram, migBase)
		case format.SectionMigPtr:
			w = devsim.NewSequentialWriter(c.ram, migPtrBase)
		case format.SectionText:
			if err := c.flash.Setup(); err != nil {
				return fail()
			}
			fw := devsim.NewFlashWriter(c.flash, int(textAddr))
			consumed, derr := reloc.DecodeBounded(relocBlob[pos:], len(imports), resolver, fw, size)
			pos += consumed
			if derr != nil {
				c.flash.Done()
				return fail()
			}
			if err := fw.Flush(); err != nil {
				c.flash.Done()
				return fail()
			}
			if err := c.flash.Done(); err != nil {
				return fail()
			}
			continue
		}
		consumed, derr := reloc.DecodeBounded(relocBlob[pos:], len(imports), resolver, w, size)
		pos += consumed
		if derr != nil {
			return fail()
		}
	}

	hdr := format.InstalledHeader{
		Magic: format.MagicInstalled,
		CRC:   ph.Common.CRC,
		Mem: [format.NumSections]format.MemEntry{
			format.SectionText:   {Ptr: textAddr, Size: ph.TextSize},
			format.SectionData:   {Ptr: uint32(dataBase), Size: ph.DataSize},
			format.SectionBSS:    {Ptr: uint32(dataBase) + uint32(ph.DataSize), Size: ph.BSSSize},
			format.SectionMig:    {Ptr: uint32(migBase), Size: ph.MigSize},
			format.SectionMigPtr: {Ptr: uint32(migPtrBase), Size: ph.MigPtrSize},
		},
		Process:    textAddr + uint32(ph.ProcessOffset),
		SourceFile: sourceFile,
	}
	headerBytes, err := format.EncodeInstalledHeader(&hdr)
	if err != nil {
		return fail()
	}
	if err := c.flash.Setup(); err != nil {
		return fail()
	}
	if err := c.flash.WriteWord(int(headerAddr), headerBytes); err != nil {
		c.flash.Done()
		return fail()
	}
	if err := c.flash.Done(); err != nil {
		return fail()
	}

	c.freeROMStart = headerAddr + uint32(flashSize)
	// The published process handle is the module's relocated DATA
	// base address, not header.Process (the TEXT-resident autostart
	// list pointer): IsLoaded/FilenameFor/CleanSpace are specified as
	// address-range tests against a module's DATA region, and walking
	// the relocated autostart array to recover genuine per-process
	// struct addresses is outside a simulated loader's scope.
	return c.procs.Start(hdr.Mem[format.SectionData].Ptr), StatusOK
}
