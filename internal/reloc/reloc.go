// Package reloc implements C4: the escape-byte relocation stream codec
// shared by the host module builder and the device loader.
package reloc

import (
	"fmt"
	"sort"

	"github.com/xyproto/minilink/internal/format"
)

// Kind identifies what a single relocation site resolves against.
type Kind int

const (
	// KindAbsolute symbols are written as a raw little-endian u16, with
	// no escape processing at all — see §9 Open Questions: preserved
	// for format fidelity, not a bug introduced here.
	KindAbsolute Kind = iota
	// KindImport references an undefined/common (kernel) symbol by its
	// sorted-by-name index among the module's used imports.
	KindImport
	// KindLocal references a symbol defined in one of the module's own
	// sections.
	KindLocal
)

// Reloc describes one R_MSP430_16 / R_MSP430_16_BYTE relocation site
// within a section's raw content.
type Reloc struct {
	// Offset is the byte offset within the section content where the
	// 16-bit field being relocated begins.
	Offset int
	Kind   Kind

	// AbsoluteValue is used when Kind == KindAbsolute.
	AbsoluteValue uint16

	// ImportIndex is used when Kind == KindImport: the symbol's index
	// among the sorted, deduplicated list of used imports.
	ImportIndex int

	// Section and ValueWithinSection are used when Kind == KindLocal:
	// the symbol is defined at ValueWithinSection bytes into Section.
	Section            format.Section
	ValueWithinSection int

	// Addend is added to the resolved value. For KindImport, a nonzero
	// Addend switches the opcode range and appends two addend bytes.
	Addend int16
}

// MaxOpcode is the largest opcode representable in the 16-bit opcode
// field; the builder must hard-fail rather than emit anything larger
// (§9 Open Questions, the base_offset overflow hazard).
const MaxOpcode = 0xFFFF

func escapeFilterAppend(out []byte, src []byte) []byte {
	for _, b := range src {
		if b == format.EscapeByte {
			out = append(out, format.EscapeByte, 0, 0)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// BaseOffsets computes the running base_offset for each section in
// format.BaseOffsetOrder (TEXT, DATA, BSS, MIG, MIGPTR), given each
// section's final size, for use by opcode computation in EncodeSection.
func BaseOffsets(sizes map[format.Section]int) map[format.Section]int {
	bases := make(map[format.Section]int, format.NumSections)
	running := 0
	for _, s := range format.BaseOffsetOrder {
		bases[s] = running
		running += sizes[s]
	}
	return bases
}

// EncodeSection produces the escape-byte stream for one section's
// content and relocations, given n (the number of used kernel imports)
// and the base offsets of every local section (see BaseOffsets).
func EncodeSection(content []byte, relocs []Reloc, n int, bases map[format.Section]int) ([]byte, error) {
	sorted := make([]Reloc, len(relocs))
	copy(sorted, relocs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var out []byte
	pos := 0
	for _, r := range sorted {
		if r.Offset < pos {
			return nil, fmt.Errorf("reloc: overlapping relocation at offset %d", r.Offset)
		}
		if r.Offset+2 > len(content) {
			return nil, fmt.Errorf("reloc: relocation at offset %d exceeds section length %d", r.Offset, len(content))
		}
		out = escapeFilterAppend(out, content[pos:r.Offset])

		switch r.Kind {
		case KindAbsolute:
			v := r.AbsoluteValue + uint16(r.Addend)
			out = append(out, byte(v), byte(v>>8))

		case KindImport:
			if r.ImportIndex < 0 || r.ImportIndex >= n {
				return nil, fmt.Errorf("reloc: import index %d out of range [0,%d)", r.ImportIndex, n)
			}
			if r.Addend == 0 {
				op := r.ImportIndex + 1
				if op > MaxOpcode {
					return nil, fmt.Errorf("reloc: opcode %d overflows 16 bits", op)
				}
				out = append(out, format.EscapeByte, byte(op), byte(op>>8))
			} else {
				op := n + r.ImportIndex + 1
				if op > MaxOpcode {
					return nil, fmt.Errorf("reloc: opcode %d overflows 16 bits", op)
				}
				a := uint16(r.Addend)
				out = append(out, format.EscapeByte, byte(op), byte(op>>8), byte(a), byte(a>>8))
			}

		case KindLocal:
			base, ok := bases[r.Section]
			if !ok {
				return nil, fmt.Errorf("reloc: unknown local section %v", r.Section)
			}
			op := 2*n + 1 + base + r.ValueWithinSection + int(r.Addend)
			if op <= 2*n {
				return nil, fmt.Errorf("reloc: computed opcode %d collides with the import range", op)
			}
			if op > MaxOpcode {
				return nil, fmt.Errorf("reloc: opcode %d overflows 16 bits (base_offset overflow)", op)
			}
			out = append(out, format.EscapeByte, byte(op), byte(op>>8))

		default:
			return nil, fmt.Errorf("reloc: unknown relocation kind %v", r.Kind)
		}

		pos = r.Offset + 2
	}
	out = escapeFilterAppend(out, content[pos:])
	return out, nil
}
