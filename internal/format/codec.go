package format

import (
	"fmt"

	"github.com/xyproto/minilink/internal/lebuf"
)

// EncodeCommonHeader appends magic and a placeholder crc (zero) to c.
// The caller back-patches the CRC once the full file is known, per the
// CRC-back-patching protocol shared by C5 and C6.
func EncodeCommonHeader(c *lebuf.Cursor, magic uint16) {
	c.WriteU16(magic)
	c.WriteU32(0)
}

// EncodeSymbolHeader appends a full symbol-file header with a zero CRC
// placeholder.
func EncodeSymbolHeader(c *lebuf.Cursor, kernelCRC uint32) {
	EncodeCommonHeader(c, MagicSymbol)
	c.WriteU32(kernelCRC)
}

// EncodeProgramHeader appends a full program-file header with a zero CRC
// placeholder.
func EncodeProgramHeader(c *lebuf.Cursor, h *ProgramHeader) {
	EncodeCommonHeader(c, MagicProgram)
	c.WriteU16(h.ProcessOffset)
	c.WriteU16(h.TextSize)
	c.WriteU16(h.DataSize)
	c.WriteU16(h.BSSSize)
	c.WriteU16(h.MigSize)
	c.WriteU16(h.MigPtrSize)
	c.WriteU16(h.SymEntries)
}

// PatchCRC overwrites the crc field (bytes [2:6]) of a managed file's
// in-memory buffer with value, little-endian.
func PatchCRC(buf []byte, value uint32) error {
	if len(buf) < CommonHeaderSize {
		return fmt.Errorf("format: buffer too short to hold a common header")
	}
	buf[2] = byte(value)
	buf[3] = byte(value >> 8)
	buf[4] = byte(value >> 16)
	buf[5] = byte(value >> 24)
	return nil
}

// ZeroedCRCCopy returns a copy of buf with the crc field (bytes [2:6])
// zeroed, for CRC verification. It never mutates buf itself — this is
// the fix for the original C's ml_file_check, which mutated the read
// buffer in place across a re-read.
func ZeroedCRCCopy(buf []byte) ([]byte, error) {
	if len(buf) < CommonHeaderSize {
		return nil, fmt.Errorf("format: buffer too short to hold a common header")
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	cp[2], cp[3], cp[4], cp[5] = 0, 0, 0, 0
	return cp, nil
}

// DecodeCommonHeader reads the magic/crc pair from the start of buf.
func DecodeCommonHeader(buf []byte) (CommonHeader, error) {
	if len(buf) < CommonHeaderSize {
		return CommonHeader{}, fmt.Errorf("format: short common header")
	}
	magic, err := lebuf.ReadU16(buf[0:2])
	if err != nil {
		return CommonHeader{}, err
	}
	crc, err := lebuf.ReadU32(buf[2:6])
	if err != nil {
		return CommonHeader{}, err
	}
	return CommonHeader{Magic: magic, CRC: crc}, nil
}

// DecodeSymbolHeader reads a full symbol-file header from buf.
func DecodeSymbolHeader(buf []byte) (SymbolHeader, error) {
	if len(buf) < SymbolHeaderSize {
		return SymbolHeader{}, fmt.Errorf("format: short symbol header")
	}
	common, err := DecodeCommonHeader(buf)
	if err != nil {
		return SymbolHeader{}, err
	}
	kernelCRC, err := lebuf.ReadU32(buf[CommonHeaderSize:])
	if err != nil {
		return SymbolHeader{}, err
	}
	return SymbolHeader{Common: common, KernelCRC: kernelCRC}, nil
}

// EncodeInstalledHeader serializes h as the fixed InstalledHeaderSize
// on-disk layout written to flash immediately before a module's text.
// CRC is written as given and never back-patched; the loader fills it
// with the CRC copied from the source program file's header.
func EncodeInstalledHeader(h *InstalledHeader) ([]byte, error) {
	if len(h.SourceFile) > MaxSourceFileLen {
		return nil, fmt.Errorf("format: source filename %q exceeds %d bytes", h.SourceFile, MaxSourceFileLen)
	}
	c := lebuf.NewCursor(make([]byte, 0, InstalledHeaderSize))
	c.WriteU16(h.Magic)
	c.WriteU32(h.CRC)
	for _, m := range h.Mem {
		c.WriteU32(m.Ptr)
		c.WriteU16(m.Size)
	}
	c.WriteU32(h.Process)
	name := make([]byte, MaxSourceFileLen)
	copy(name, h.SourceFile)
	c.Write(name)
	return c.Bytes(), nil
}

// DecodeInstalledHeader reads an InstalledHeader from buf.
func DecodeInstalledHeader(buf []byte) (InstalledHeader, error) {
	if len(buf) < InstalledHeaderSize {
		return InstalledHeader{}, fmt.Errorf("format: short installed header")
	}
	var h InstalledHeader
	off := 0
	read16 := func() uint16 { v, _ := lebuf.ReadU16(buf[off:]); off += 2; return v }
	read32 := func() uint32 { v, _ := lebuf.ReadU32(buf[off:]); off += 4; return v }

	h.Magic = read16()
	h.CRC = read32()
	for i := range h.Mem {
		h.Mem[i].Ptr = read32()
		h.Mem[i].Size = read16()
	}
	h.Process = read32()
	name := buf[off : off+MaxSourceFileLen]
	off += MaxSourceFileLen
	nul := len(name)
	for i, b := range name {
		if b == 0 {
			nul = i
			break
		}
	}
	h.SourceFile = string(name[:nul])
	return h, nil
}

// DecodeProgramHeader reads a full program-file header from buf.
func DecodeProgramHeader(buf []byte) (ProgramHeader, error) {
	if len(buf) < ProgramHeaderSize {
		return ProgramHeader{}, fmt.Errorf("format: short program header")
	}
	common, err := DecodeCommonHeader(buf)
	if err != nil {
		return ProgramHeader{}, err
	}
	off := CommonHeaderSize
	read16 := func() uint16 {
		v, _ := lebuf.ReadU16(buf[off:])
		off += 2
		return v
	}
	h := ProgramHeader{Common: common}
	h.ProcessOffset = read16()
	h.TextSize = read16()
	h.DataSize = read16()
	h.BSSSize = read16()
	h.MigSize = read16()
	h.MigPtrSize = read16()
	h.SymEntries = read16()
	return h, nil
}
