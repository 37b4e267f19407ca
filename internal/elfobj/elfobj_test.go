package elfobj

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"
)

// buildTinyELF32 hand-assembles a minimal relocatable ELF32 object: a
// single .text section containing two zero bytes, a symbol table with
// one undefined global symbol "foo", and a .rel.text section with one
// R_MSP430_16 relocation against "foo" at offset 0. It exists so
// elfobj.Load can be exercised against a real (if minimal) ELF byte
// stream rather than only against hand-built Object values, the way a
// production ELF reader would be tested.
func buildTinyELF32(t *testing.T) []byte {
	t.Helper()

	const (
		shNull = iota
		shText
		shSymtab
		shStrtab
		shRelText
		shShstrtab
		numSections
	)

	shstrtab := []byte{0}
	addShstr := func(s string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, append([]byte(s), 0)...)
		return off
	}
	nameText := addShstr(".text")
	nameSymtab := addShstr(".symtab")
	nameStrtab := addShstr(".strtab")
	nameRelText := addShstr(".rel.text")
	nameShstrtab := addShstr(".shstrtab")

	strtab := []byte{0}
	addStr := func(s string) uint32 {
		off := uint32(len(strtab))
		strtab = append(strtab, append([]byte(s), 0)...)
		return off
	}
	fooName := addStr("foo")

	textContent := []byte{0x00, 0x00}

	// Elf32_Sym: st_name(4) st_value(4) st_size(4) st_info(1) st_other(1) st_shndx(2)
	sym := func(name uint32, value uint32, info byte, shndx uint16) []byte {
		b := make([]byte, 16)
		binary.LittleEndian.PutUint32(b[0:], name)
		binary.LittleEndian.PutUint32(b[4:], value)
		binary.LittleEndian.PutUint32(b[8:], 0)
		b[12] = info
		b[13] = 0
		binary.LittleEndian.PutUint16(b[14:], shndx)
		return b
	}
	var symtab []byte
	symtab = append(symtab, sym(0, 0, 0, 0)...) // null symbol, index 0
	const stbGlobal = 1
	const sttNotype = 0
	symtab = append(symtab, sym(fooName, 0, byte(stbGlobal<<4|sttNotype), uint16(elf.SHN_UNDEF))...) // index 1: "foo"

	// Elf32_Rel: r_offset(4) r_info(4), r_info = (sym<<8)|type
	rel := make([]byte, 8)
	binary.LittleEndian.PutUint32(rel[0:], 0) // offset 0 in .text
	binary.LittleEndian.PutUint32(rel[4:], uint32(1)<<8|uint32(RMSP43016))

	// Lay out the file: header, then section contents in order, then
	// the section header table.
	const ehsize = 52
	const shentsize = 40

	offText := uint32(ehsize)
	offSymtab := offText + uint32(len(textContent))
	offStrtab := offSymtab + uint32(len(symtab))
	offRelText := offStrtab + uint32(len(strtab))
	offShstrtab := offRelText + uint32(len(rel))
	offShoff := offShstrtab + uint32(len(shstrtab))

	var buf bytes.Buffer

	ident := [16]byte{0x7f, 'E', 'L', 'F', 1, 1, 1, 0}
	buf.Write(ident[:])
	write16 := func(v uint16) { binary.Write(&buf, binary.LittleEndian, v) }
	write32 := func(v uint32) { binary.Write(&buf, binary.LittleEndian, v) }

	write16(uint16(elf.ET_REL))
	write16(105) // e_machine: EM_MSP430
	write32(1)   // e_version
	write32(0)   // e_entry
	write32(0)   // e_phoff
	write32(offShoff)
	write32(0) // e_flags
	write16(ehsize)
	write16(0) // e_phentsize
	write16(0) // e_phnum
	write16(shentsize)
	write16(numSections)
	write16(shShstrtab)

	buf.Write(textContent)
	buf.Write(symtab)
	buf.Write(strtab)
	buf.Write(rel)
	buf.Write(shstrtab)

	writeShdr := func(name, typ, flags, addr, offset, size, link, info, align, entsize uint32) {
		write32(name)
		write32(typ)
		write32(flags)
		write32(addr)
		write32(offset)
		write32(size)
		write32(link)
		write32(info)
		write32(align)
		write32(entsize)
	}

	writeShdr(0, 0, 0, 0, 0, 0, 0, 0, 0, 0) // SHN_UNDEF
	writeShdr(nameText, uint32(elf.SHT_PROGBITS), uint32(elf.SHF_ALLOC|elf.SHF_EXECINSTR), 0, offText, uint32(len(textContent)), 0, 0, 1, 0)
	writeShdr(nameSymtab, uint32(elf.SHT_SYMTAB), 0, 0, offSymtab, uint32(len(symtab)), shStrtab, 1, 4, 16)
	writeShdr(nameStrtab, uint32(elf.SHT_STRTAB), 0, 0, offStrtab, uint32(len(strtab)), 0, 0, 1, 0)
	writeShdr(nameRelText, uint32(elf.SHT_REL), 0, 0, offRelText, uint32(len(rel)), shSymtab, shText, 4, 8)
	writeShdr(nameShstrtab, uint32(elf.SHT_STRTAB), 0, 0, offShstrtab, uint32(len(shstrtab)), 0, 0, 1, 0)

	return buf.Bytes()
}

func TestLoadFromSyntheticELF(t *testing.T) {
	raw := buildTinyELF32(t)
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("elf.NewFile: %v", err)
	}
	defer f.Close()

	obj, err := FromFile(f)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}

	text, ok := obj.Sections[".text"]
	if !ok {
		t.Fatal("missing .text section")
	}
	if !bytes.Equal(text.Content, []byte{0, 0}) {
		t.Fatalf(".text content = % x, want 00 00", text.Content)
	}
	if len(text.Relocations) != 1 {
		t.Fatalf("got %d relocations on .text, want 1", len(text.Relocations))
	}
	r := text.Relocations[0]
	if r.Symbol != "foo" || r.Offset != 0 || r.Byte {
		t.Fatalf("relocation = %+v, want Symbol=foo Offset=0 Byte=false", r)
	}

	sym, ok := obj.Symbols["foo"]
	if !ok {
		t.Fatal("missing symbol foo")
	}
	if sym.Defined() {
		t.Fatal("foo should be undefined (a kernel import)")
	}
	if !sym.Global {
		t.Fatal("foo should be global")
	}
}
