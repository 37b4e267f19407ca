// Package symbuild implements C6: the host-side kernel symbol-table
// builder. It shares its framing with builder (C5) — collect symbols
// from an elfobj.Object, encode them, back-patch the CRC — but the
// payload is simpler: every globally bound, defined symbol in the
// kernel's own (already linked) ELF image, each carrying its final
// absolute address rather than a section-relative one.
package symbuild

import (
	"fmt"
	"sort"

	"github.com/xyproto/minilink/internal/crc32k"
	"github.com/xyproto/minilink/internal/elfobj"
	"github.com/xyproto/minilink/internal/format"
	"github.com/xyproto/minilink/internal/kernelimage"
	"github.com/xyproto/minilink/internal/lebuf"
	"github.com/xyproto/minilink/internal/symtab"
)

// Options controls what kernel_crc a symbol file is pinned to.
type Options struct {
	// KernelImage, if non-nil, is the raw bytes of the kernel image
	// this symbol table describes. Its OS image info header is parsed
	// for image_crc, which is embedded as the symbol file's kernel_crc.
	// If nil, kernel_crc is written as zero (§4.3: "zero if unknown").
	KernelImage []byte
}

// BuildSymbolTable collects every exported (globally bound, defined)
// symbol in obj, encodes them as a kernel symbol file (header, the
// delta-compressed symbol table, EOF sentinel), and returns it with its
// CRC back-patched.
func BuildSymbolTable(obj *elfobj.Object, opts Options) ([]byte, error) {
	var kernelCRC uint32
	if opts.KernelImage != nil {
		info, err := kernelimage.ReadHeader(opts.KernelImage)
		if err != nil {
			return nil, fmt.Errorf("symbuild: reading kernel image header: %w", err)
		}
		if err := kernelimage.ExpectKernelSignature(info); err != nil {
			return nil, fmt.Errorf("symbuild: %w", err)
		}
		kernelCRC = info.ImageCRC
	}

	names := make([]string, 0, len(obj.Symbols))
	for name, sym := range obj.Symbols {
		if sym.Global && sym.Defined() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	entries := make([]symtab.Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, symtab.Entry{Name: name, Value: uint16(obj.Symbols[name].Value)})
	}

	encoded, err := symtab.Encode(entries)
	if err != nil {
		return nil, fmt.Errorf("symbuild: encoding symbol table: %w", err)
	}

	cur := lebuf.NewCursor(make([]byte, 0, format.SymbolHeaderSize+len(encoded)+1))
	format.EncodeSymbolHeader(cur, kernelCRC)
	cur.Write(encoded)
	cur.WriteByte(format.EOFSentinel)

	ob := format.NewOutputBuffer("kernel-symbol-table")
	if _, err := ob.Write(cur.Bytes()); err != nil {
		return nil, err
	}
	return ob.Commit(crc32k.Checksum)
}
