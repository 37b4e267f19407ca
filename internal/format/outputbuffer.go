package format

import "fmt"

// OutputBuffer is the commit-lifecycle discipline every module builder
// (C5) and symbol-table builder (C6) writes through. It is adapted
// from the teacher's SafeBuffer/ScopedBuffer pair: writes accumulate
// freely into an in-memory buffer until Commit computes and
// back-patches the file's CRC over a zeroed-CRC copy of everything
// written, after which the buffer is sealed and refuses further
// writes. That mirrors the module-file immutability the format itself
// relies on — once a file's CRC is in place its bytes never change
// again — the same way SafeBuffer panicked on writes after Commit() to
// catch a builder that kept appending past what it had already
// measured and checksummed.
type OutputBuffer struct {
	name      string
	buf       []byte
	committed bool
}

// NewOutputBuffer returns an empty, uncommitted buffer. name is used
// only in error messages, the way SafeBuffer used it for debug logging.
func NewOutputBuffer(name string) *OutputBuffer {
	return &OutputBuffer{name: name}
}

// Write appends p. It is an error, not a panic, to write after Commit —
// builders are expected to check this at construction boundaries
// rather than rely on a crash for an internal class of reuse bug.
func (b *OutputBuffer) Write(p []byte) (int, error) {
	if b.committed {
		return 0, fmt.Errorf("format: OutputBuffer(%s): write after commit", b.name)
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte.
func (b *OutputBuffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

// Len returns the number of bytes written so far.
func (b *OutputBuffer) Len() int { return len(b.buf) }

// IsCommitted reports whether Commit has already run.
func (b *OutputBuffer) IsCommitted() bool { return b.committed }

// Commit computes the file's CRC by calling crc over a copy of the
// buffer with the crc field zeroed (see ZeroedCRCCopy), patches that
// value into the buffer's header in place, seals the buffer against
// further writes, and returns the final bytes.
func (b *OutputBuffer) Commit(crc func([]byte) uint32) ([]byte, error) {
	if b.committed {
		return nil, fmt.Errorf("format: OutputBuffer(%s): already committed", b.name)
	}
	zeroed, err := ZeroedCRCCopy(b.buf)
	if err != nil {
		return nil, fmt.Errorf("format: OutputBuffer(%s): %w", b.name, err)
	}
	if err := PatchCRC(b.buf, crc(zeroed)); err != nil {
		return nil, fmt.Errorf("format: OutputBuffer(%s): %w", b.name, err)
	}
	b.committed = true
	return b.buf, nil
}

// Reset clears the buffer for reuse, uncommitting it.
func (b *OutputBuffer) Reset() {
	b.buf = b.buf[:0]
	b.committed = false
}
