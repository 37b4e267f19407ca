package devsim

import "fmt"

// RAM simulates the freely read/write/zeroable memory region that
// DATA, MIG, MIGPTR sections and BSS are allocated from, plus the
// "general allocator" collaborator named in §4.7.
type RAM struct {
	data []byte
}

// NewRAM allocates a simulated RAM region of size bytes, zeroed.
func NewRAM(size int) *RAM {
	return &RAM{data: make([]byte, size)}
}

// Size returns the total size of the region.
func (r *RAM) Size() int { return len(r.data) }

// WriteAt writes data at offset.
func (r *RAM) WriteAt(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > len(r.data) {
		return fmt.Errorf("devsim: RAM write at %d..%d out of range [0,%d)", offset, offset+len(data), len(r.data))
	}
	copy(r.data[offset:], data)
	return nil
}

// Read returns a copy of the bytes in [offset, offset+length).
func (r *RAM) Read(offset, length int) ([]byte, error) {
	if offset < 0 || offset+length > len(r.data) {
		return nil, fmt.Errorf("devsim: RAM read at %d..%d out of range [0,%d)", offset, offset+length, len(r.data))
	}
	out := make([]byte, length)
	copy(out, r.data[offset:offset+length])
	return out, nil
}

// Zero clears [offset, offset+length) to zero, used for BSS.
func (r *RAM) Zero(offset, length int) error {
	if offset < 0 || offset+length > len(r.data) {
		return fmt.Errorf("devsim: RAM zero at %d..%d out of range [0,%d)", offset, offset+length, len(r.data))
	}
	for i := offset; i < offset+length; i++ {
		r.data[i] = 0
	}
	return nil
}

// SequentialWriter is an io.Writer that appends to RAM starting at
// base, advancing a cursor — the "direct byte store" writer §4.4
// routes DATA/MIG/MIGPTR relocations through.
type SequentialWriter struct {
	ram    *RAM
	base   int
	cursor int
}

// NewSequentialWriter returns a writer appending to ram starting at base.
func NewSequentialWriter(ram *RAM, base int) *SequentialWriter {
	return &SequentialWriter{ram: ram, base: base}
}

func (w *SequentialWriter) Write(p []byte) (int, error) {
	if err := w.ram.WriteAt(w.base+w.cursor, p); err != nil {
		return 0, err
	}
	w.cursor += len(p)
	return len(p), nil
}

// Written returns the number of bytes written so far.
func (w *SequentialWriter) Written() int { return w.cursor }

// Allocator is a bump allocator over a RAM region with LIFO unwind
// support, mirroring §5's "RAM allocations for non-text sections are
// freed" rollback-on-failure behavior.
type Allocator struct {
	ram   *RAM
	base  int
	limit int
	next  int
}

// NewAllocator returns an allocator handing out RAM starting at base,
// refusing to exceed limit bytes total.
func NewAllocator(ram *RAM, base, limit int) *Allocator {
	return &Allocator{ram: ram, base: base, limit: limit}
}

// Mark returns a snapshot of the allocator's current position, to pass
// to Unwind on failure.
func (a *Allocator) Mark() int { return a.next }

// Unwind resets the allocator back to a mark captured by Mark,
// releasing everything allocated since.
func (a *Allocator) Unwind(mark int) { a.next = mark }

// Alloc reserves size bytes, returning their absolute RAM offset.
func (a *Allocator) Alloc(size int) (int, error) {
	if a.next+size > a.limit {
		return 0, fmt.Errorf("devsim: RAM allocator out of memory: need %d, have %d", size, a.limit-a.next)
	}
	offset := a.base + a.next
	a.next += size
	return offset, nil
}
