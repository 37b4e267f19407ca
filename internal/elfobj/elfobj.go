// Package elfobj is the ELF reader collaborator named in §6: it reads a
// compiled ELF object and exposes a neutral, in-memory model of its
// sections, symbols, and relocations for the module builder (C5) and
// symbol-table builder (C6) to consume. It is built on stdlib
// debug/elf, the same approach the teacher uses in cffi.go's
// ExtractSymbolsFromSo rather than a third-party BFD-equivalent.
package elfobj

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// MSP430 relocation type numbers. debug/elf has no R_MSP430_* constants
// of its own; these are the values msp430-elf-gcc's binutils assigns.
// Only these two kinds are ever accepted (§4.4 point 3); any other
// relocation type read from an object file is a hard error.
const (
	RMSP43016     = 2
	RMSP43016Byte = 5
)

// Symbol is one entry of an ELF object's symbol table, reduced to the
// fields the builder needs.
type Symbol struct {
	Name     string
	Value    uint32
	Section  string // name of the defining section; "" if undefined/common/absolute
	Global   bool
	Absolute bool // true for an ELF SHN_ABS symbol: Value is its final value, not an offset
}

// Defined reports whether the symbol resolves to a concrete value at
// build time, either because it lives in one of the object's own
// sections or because it is an ELF absolute symbol.
func (s Symbol) Defined() bool { return s.Section != "" || s.Absolute }

// Relocation is one R_MSP430_16 / R_MSP430_16_BYTE site within a
// section, already resolved to its target symbol name.
type Relocation struct {
	Offset int
	Symbol string
	Addend int16
	Byte   bool // true for R_MSP430_16_BYTE, false for R_MSP430_16
}

// Section is one of the five sections the module builder understands:
// .text, .data, .bss, mig, mig_ptr.
type Section struct {
	Name        string
	Content     []byte
	Size        int // may exceed len(Content) for a NOBITS (.bss) section
	Relocations []Relocation
}

// Object is the neutral model the builder operates against.
type Object struct {
	Sections map[string]*Section
	Symbols  map[string]*Symbol
}

// Load reads path as an ELF object and builds an Object model of it.
func Load(path string) (*Object, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfobj: opening %s: %w", path, err)
	}
	defer f.Close()
	return FromFile(f)
}

// FromFile builds an Object model from an already-open *elf.File,
// letting callers (and tests) supply one however they construct it.
func FromFile(f *elf.File) (*Object, error) {
	obj := &Object{
		Sections: make(map[string]*Section),
		Symbols:  make(map[string]*Symbol),
	}

	elfSyms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("elfobj: reading symbol table: %w", err)
	}

	symIndex := make([]*Symbol, len(elfSyms)+1) // ELF symbol 0 is always the null entry
	for i, es := range elfSyms {
		sec := ""
		if int(es.Section) >= 0 && int(es.Section) < len(f.Sections) {
			sec = f.Sections[es.Section].Name
		}
		sym := &Symbol{
			Name:     es.Name,
			Value:    uint32(es.Value),
			Section:  sec,
			Global:   elf.ST_BIND(es.Info) == elf.STB_GLOBAL,
			Absolute: es.Section == elf.SHN_ABS,
		}
		obj.Symbols[es.Name] = sym
		symIndex[i+1] = sym
	}

	for _, sh := range f.Sections {
		if !wantedSection(sh.Name) {
			continue
		}
		sec := &Section{Name: sh.Name, Size: int(sh.Size)}
		if sh.Type != elf.SHT_NOBITS {
			data, err := sh.Data()
			if err != nil {
				return nil, fmt.Errorf("elfobj: reading section %s: %w", sh.Name, err)
			}
			sec.Content = data
		}
		obj.Sections[sh.Name] = sec
	}

	for _, sh := range f.Sections {
		if sh.Type != elf.SHT_REL && sh.Type != elf.SHT_RELA {
			continue
		}
		target := relocationTargetName(f, sh)
		if !wantedSection(target) {
			continue
		}
		dest, ok := obj.Sections[target]
		if !ok {
			continue
		}
		data, err := sh.Data()
		if err != nil {
			return nil, fmt.Errorf("elfobj: reading relocations for %s: %w", target, err)
		}
		relocs, err := decodeRelocs(data, sh.Type == elf.SHT_RELA, symIndex)
		if err != nil {
			return nil, fmt.Errorf("elfobj: section %s: %w", target, err)
		}
		dest.Relocations = append(dest.Relocations, relocs...)
	}

	return obj, nil
}

func wantedSection(name string) bool {
	switch name {
	case ".text", ".data", ".bss", "mig", "mig_ptr":
		return true
	default:
		return false
	}
}

// relocationTargetName finds the section a SHT_REL/SHT_RELA section
// applies to. debug/elf exposes this via the section header's Info
// field (the target section index) for REL/RELA sections.
func relocationTargetName(f *elf.File, sh *elf.Section) string {
	idx := int(sh.Info)
	if idx < 0 || idx >= len(f.Sections) {
		return ""
	}
	return f.Sections[idx].Name
}

const (
	elf32RelSize  = 8  // r_offset(4) + r_info(4)
	elf32RelaSize = 12 // + r_addend(4)
)

func decodeRelocs(data []byte, withAddend bool, symIndex []*Symbol) ([]Relocation, error) {
	entrySize := elf32RelSize
	if withAddend {
		entrySize = elf32RelaSize
	}
	if len(data)%entrySize != 0 {
		return nil, fmt.Errorf("relocation section size %d is not a multiple of %d", len(data), entrySize)
	}

	var out []Relocation
	for off := 0; off < len(data); off += entrySize {
		rOffset := binary.LittleEndian.Uint32(data[off:])
		rInfo := binary.LittleEndian.Uint32(data[off+4:])
		symIdx := rInfo >> 8
		relType := rInfo & 0xFF

		var addend int32
		if withAddend {
			addend = int32(binary.LittleEndian.Uint32(data[off+8:]))
		}

		if int(symIdx) >= len(symIndex) || symIndex[symIdx] == nil {
			return nil, fmt.Errorf("relocation references invalid symbol index %d", symIdx)
		}
		sym := symIndex[symIdx]

		var isByte bool
		switch relType {
		case RMSP43016:
			isByte = false
		case RMSP43016Byte:
			isByte = true
		default:
			return nil, fmt.Errorf("unsupported relocation type %d on symbol %q", relType, sym.Name)
		}

		out = append(out, Relocation{
			Offset: int(rOffset),
			Symbol: sym.Name,
			Addend: int16(addend),
			Byte:   isByte,
		})
	}
	return out, nil
}
