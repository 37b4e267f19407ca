// Package kernelimage parses and builds the OS image info structure
// that prefixes a kernel (or application) flash image, restoring
// filelib.c's build_kernel_header/read_kernel_header/convert_* helpers
// that the distilled spec left implicit (§12 Supplemented Features).
package kernelimage

import (
	"fmt"

	"github.com/xyproto/minilink/internal/format"
	"github.com/xyproto/minilink/internal/lebuf"
)

// InfoSize is the fixed byte size of the OS image info structure:
// signature(2) + image_size(2) + image_crc(4) + entry_point(2) +
// nmem_start(2) + nmem_size(2).
const InfoSize = 2 + 2 + 4 + 2 + 2 + 2

// Info is the OS image info structure (§6 OS image info).
type Info struct {
	Signature  uint16
	ImageSize  uint16
	ImageCRC   uint32
	EntryPoint uint16
	NMemStart  uint16
	NMemSize   uint16
}

// ConvertHeader serializes info as InfoSize little-endian bytes,
// mirroring filelib.c's convert_kernel_header field-by-field cursor
// writer.
func ConvertHeader(info Info) []byte {
	c := lebuf.NewCursor(nil)
	c.WriteU16(info.Signature)
	c.WriteU16(info.ImageSize)
	c.WriteU32(info.ImageCRC)
	c.WriteU16(info.EntryPoint)
	c.WriteU16(info.NMemStart)
	c.WriteU16(info.NMemSize)
	return c.Bytes()
}

// ReadHeader parses the first InfoSize bytes of src as an Info
// structure, the way read_kernel_header does, including its minimum
// length check.
func ReadHeader(src []byte) (Info, error) {
	if len(src) < InfoSize {
		return Info{}, fmt.Errorf("kernelimage: image too short: %d bytes, want at least %d", len(src), InfoSize)
	}
	var info Info
	off := 0
	read16 := func() uint16 {
		v, _ := lebuf.ReadU16(src[off:])
		off += 2
		return v
	}
	info.Signature = read16()
	info.ImageSize = read16()
	crc, _ := lebuf.ReadU32(src[off:])
	info.ImageCRC = crc
	off += 4
	info.EntryPoint = read16()
	info.NMemStart = read16()
	info.NMemSize = read16()
	return info, nil
}

// ExpectKernelSignature verifies a parsed header carries the kernel
// (not application) signature, the check mksymtab.c's
// read_kernel_header performs before trusting image_crc.
func ExpectKernelSignature(info Info) error {
	if info.Signature != format.OSImageKernel {
		return fmt.Errorf("kernelimage: signature 0x%04x is not the kernel signature 0x%04x", info.Signature, format.OSImageKernel)
	}
	return nil
}
