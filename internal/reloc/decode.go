package reloc

import (
	"fmt"
	"io"

	"github.com/xyproto/minilink/internal/format"
)

// Resolver supplies the two kinds of address a decoded opcode can
// reference: a kernel import's resolved value, or the final runtime
// address corresponding to a linear offset into the concatenation of
// TEXT, DATA, BSS, MIG, MIGPTR (in that order).
type Resolver interface {
	KernelValue(importIndex int) (uint16, error)
	LocalAddress(linearOffset int) (uint16, error)
}

// Decode consumes one section's escape-byte stream in full, writing
// the resolved output to w. n is sym_entries (the number of kernel
// imports this module references). The decoder never looks more than
// one opcode plus addend ahead; the "12 bytes of lookahead" described
// in §4.4 is an implementation detail of the original C's fixed double
// buffer and is not needed by a slice-backed Go decoder, which can see
// the whole remaining stream already in memory.
func Decode(stream []byte, n int, resolver Resolver, w io.Writer) error {
	_, err := DecodeBounded(stream, n, resolver, w, len(stream)+1)
	return err
}

// DecodeBounded decodes stream up until w has received exactly
// targetOutput bytes, then stops and reports how many input bytes were
// consumed to produce them. A program file concatenates four sections'
// streams back to back with no stored per-stream byte length; a reader
// that knows each section's declared output size (TextSize, DataSize,
// ...) uses DecodeBounded to find where one section's stream ends and
// the next begins, the way the device loader walks a module file
// section by section.
func DecodeBounded(stream []byte, n int, resolver Resolver, w io.Writer, targetOutput int) (consumed int, err error) {
	i := 0
	produced := 0
	runStart := 0

	// flush writes stream[runStart:end] verbatim, but never overshoots
	// targetOutput: a run of non-escape bytes may straddle the boundary
	// between one section's declared output size and the next
	// section's stream when the caller is walking a concatenated blob
	// (DecodeBounded's reason for existing), so a long run is clipped
	// to however many bytes are still wanted and runStart advances only
	// by what was actually consumed.
	flush := func(end int) error {
		avail := end - runStart
		if avail <= 0 {
			return nil
		}
		want := targetOutput - produced
		if want < avail {
			avail = want
		}
		if avail <= 0 {
			return nil
		}
		if _, err := w.Write(stream[runStart : runStart+avail]); err != nil {
			return err
		}
		produced += avail
		runStart += avail
		return nil
	}
	emit := func(b []byte) error {
		if _, err := w.Write(b); err != nil {
			return err
		}
		produced += len(b)
		return nil
	}

	for i < len(stream) && produced < targetOutput {
		if stream[i] != format.EscapeByte {
			i++
			continue
		}
		if err := flush(i); err != nil {
			return i, err
		}
		if produced >= targetOutput {
			// flush clipped mid-run: the target was reached before
			// reaching this escape byte, so only runStart input bytes
			// were actually consumed to produce it.
			return runStart, nil
		}
		runStart = i
		i++
		if i+2 > len(stream) {
			return i, fmt.Errorf("reloc: truncated stream: missing opcode after escape at %d", i-1)
		}
		op := int(stream[i]) | int(stream[i+1])<<8
		i += 2

		switch {
		case op == 0:
			if err := emit([]byte{format.EscapeByte}); err != nil {
				return i, err
			}

		case op >= 1 && op <= n:
			addr, err := resolver.KernelValue(op - 1)
			if err != nil {
				return i, fmt.Errorf("reloc: resolving import %d: %w", op-1, err)
			}
			if err := emit([]byte{byte(addr), byte(addr >> 8)}); err != nil {
				return i, err
			}

		case op >= n+1 && op <= 2*n:
			if i+2 > len(stream) {
				return i, fmt.Errorf("reloc: truncated stream: missing addend for opcode %d", op)
			}
			addend := int16(int(stream[i]) | int(stream[i+1])<<8)
			i += 2
			addr, err := resolver.KernelValue(op - n - 1)
			if err != nil {
				return i, fmt.Errorf("reloc: resolving import %d: %w", op-n-1, err)
			}
			v := uint16(int32(addr) + int32(addend))
			if err := emit([]byte{byte(v), byte(v >> 8)}); err != nil {
				return i, err
			}

		default: // op > 2n
			linear := op - 2*n - 1
			addr, err := resolver.LocalAddress(linear)
			if err != nil {
				return i, fmt.Errorf("reloc: resolving local offset %d: %w", linear, err)
			}
			if err := emit([]byte{byte(addr), byte(addr >> 8)}); err != nil {
				return i, err
			}
		}
		runStart = i
	}
	if produced < targetOutput {
		if err := flush(i); err != nil {
			return i, err
		}
	}
	// runStart equals i unless the final flush clipped the run, in which
	// case only the bytes up to runStart were consumed.
	return runStart, nil
}
