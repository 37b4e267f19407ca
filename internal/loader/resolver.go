package loader

import (
	"fmt"

	"github.com/xyproto/minilink/internal/format"
	"github.com/xyproto/minilink/internal/reloc"
)

// sectionPlacement is where one section's bytes finally live once a
// module is loaded: a flash address for TEXT, a RAM address for
// everything else.
type sectionPlacement struct {
	base uint32
	size int
}

// moduleResolver implements reloc.Resolver against one in-progress
// Load: kernelValues holds each import's resolved kernel address, in
// the same order as the module's sorted import list; placement gives
// the final base address of each of the five sections, in the linear
// order TEXT, DATA, BSS, MIG, MIGPTR that local-reference opcodes are
// computed against (format.BaseOffsetOrder).
type moduleResolver struct {
	kernelValues []uint16
	placement    map[format.Section]sectionPlacement
	bases        map[format.Section]int
}

func (r *moduleResolver) KernelValue(importIndex int) (uint16, error) {
	if importIndex < 0 || importIndex >= len(r.kernelValues) {
		return 0, fmt.Errorf("loader: import index %d out of range [0,%d)", importIndex, len(r.kernelValues))
	}
	return r.kernelValues[importIndex], nil
}

func (r *moduleResolver) LocalAddress(linearOffset int) (uint16, error) {
	for _, s := range format.BaseOffsetOrder {
		base := r.bases[s]
		size := r.placement[s].size
		if linearOffset >= base && linearOffset < base+size {
			return uint16(r.placement[s].base + uint32(linearOffset-base)), nil
		}
	}
	return 0, fmt.Errorf("loader: local offset %d does not fall within any section", linearOffset)
}

// reloc.Resolver is satisfied by *moduleResolver.
var _ reloc.Resolver = (*moduleResolver)(nil)
