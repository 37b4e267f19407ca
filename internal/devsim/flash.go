// Package devsim is a simulated device backend standing in for the
// real flash programmer, RAM allocator, and filesystem collaborators
// named as external in §6 — byte-slice-backed arenas with write-once
// flash semantics, so the loader (C7) is exercised end-to-end in tests
// and in cmd/minilink-demo without real microcontroller hardware
// (§12 Supplemented Features).
package devsim

import "fmt"

// EraseValue is the byte value erased flash reads as.
const EraseValue = 0xFF

// Flash simulates a write-once NOR flash region: every byte can only
// be programmed once after being erased, mirroring real flash's
// "writes only clear bits" behavior closely enough that writing twice
// without an intervening erase is rejected outright.
type Flash struct {
	data      []byte
	written   []bool
	eraseUnit int
	setup     bool
}

// NewFlash allocates a simulated flash region of size bytes, erased
// (all EraseValue) at start, with the given erase-unit granularity.
func NewFlash(size, eraseUnit int) *Flash {
	f := &Flash{
		data:      make([]byte, size),
		written:   make([]bool, size),
		eraseUnit: eraseUnit,
	}
	for i := range f.data {
		f.data[i] = EraseValue
	}
	return f
}

// EraseUnitSize returns the erase granularity, published the way the
// real flash programmer collaborator publishes erase_unit_size.
func (f *Flash) EraseUnitSize() int { return f.eraseUnit }

// Size returns the total size of the simulated flash region.
func (f *Flash) Size() int { return len(f.data) }

// Setup brackets the start of a programming sequence; writes are only
// accepted between Setup and Done, mirroring flash_setup/flash_done.
func (f *Flash) Setup() error {
	if f.setup {
		return fmt.Errorf("devsim: flash already in a setup sequence")
	}
	f.setup = true
	return nil
}

// Done closes a programming sequence begun by Setup.
func (f *Flash) Done() error {
	if !f.setup {
		return fmt.Errorf("devsim: flash Done called without a matching Setup")
	}
	f.setup = false
	return nil
}

// WriteWord programs a batch of bytes at offset. It refuses to
// reprogram any byte that is already marked written (would require an
// intervening erase on real flash).
func (f *Flash) WriteWord(offset int, data []byte) error {
	if !f.setup {
		return fmt.Errorf("devsim: flash write outside a Setup/Done bracket")
	}
	if offset < 0 || offset+len(data) > len(f.data) {
		return fmt.Errorf("devsim: flash write at %d..%d out of range [0,%d)", offset, offset+len(data), len(f.data))
	}
	for i, b := range data {
		if f.written[offset+i] {
			return fmt.Errorf("devsim: flash byte at offset %d already programmed since last erase", offset+i)
		}
		f.data[offset+i] = b
		f.written[offset+i] = true
	}
	return nil
}

// Read returns a copy of the flash bytes in [offset, offset+length).
func (f *Flash) Read(offset, length int) ([]byte, error) {
	if offset < 0 || offset+length > len(f.data) {
		return nil, fmt.Errorf("devsim: flash read at %d..%d out of range [0,%d)", offset, offset+length, len(f.data))
	}
	out := make([]byte, length)
	copy(out, f.data[offset:offset+length])
	return out, nil
}

// EraseRange erases [start, start+length) to EraseValue, one erase
// unit at a time, and clears the written bitmap over that range.
func (f *Flash) EraseRange(start, length int) error {
	if start < 0 || start+length > len(f.data) {
		return fmt.Errorf("devsim: erase range %d..%d out of bounds [0,%d)", start, start+length, len(f.data))
	}
	if f.eraseUnit <= 0 {
		return fmt.Errorf("devsim: invalid erase unit size %d", f.eraseUnit)
	}
	for off := start; off < start+length; off += f.eraseUnit {
		end := off + f.eraseUnit
		if end > start+length {
			end = start + length
		}
		for i := off; i < end; i++ {
			f.data[i] = EraseValue
			f.written[i] = false
		}
	}
	return nil
}

// IsErased reports whether every byte in [offset, offset+length) reads
// as either EraseValue or zero — the two values §4.7's Init treats as
// "erased" when scanning backward to find prior installed modules.
func (f *Flash) IsErased(offset, length int) bool {
	if offset < 0 || offset+length > len(f.data) {
		return false
	}
	for i := offset; i < offset+length; i++ {
		if f.data[i] != EraseValue && f.data[i] != 0x00 {
			return false
		}
	}
	return true
}
