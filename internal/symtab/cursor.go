package symtab

import "fmt"

// Cursor is the small state machine the device loader pumps while
// walking an on-disk symbol list: it reconstructs one entry at a time
// from the previous entry's name and value, never materializing the
// full table. This is the object design notes call for instead of a
// generator: Advance, CurrentName, CurrentValue, SharedPrefixWith.
type Cursor struct {
	buf       []byte
	pos       int
	remaining int

	name  []byte
	value uint16
	err   error
}

// NewCursor returns a cursor over buf (the symbol entries region only,
// header already stripped) that will yield n entries.
func NewCursor(buf []byte, n int) *Cursor {
	return &Cursor{buf: buf, remaining: n}
}

// Err returns the error that caused the most recent Advance to fail, if
// any.
func (c *Cursor) Err() error { return c.err }

// Advance decodes the next on-disk entry, reconstructing its name and
// value from the previous one. It returns false when the entry count is
// exhausted or a decoding error occurred (check Err to distinguish).
func (c *Cursor) Advance() bool {
	if c.err != nil || c.remaining <= 0 {
		return false
	}
	c.remaining--

	if c.pos >= len(c.buf) {
		c.err = fmt.Errorf("symtab: truncated stream: expected attr byte")
		return false
	}
	attr := c.buf[c.pos]
	c.pos++

	mode := int(attr >> 6)
	shared := int(attr & 0x3F)
	if shared > len(c.name) {
		c.err = fmt.Errorf("symtab: shared prefix %d exceeds previous name length %d", shared, len(c.name))
		return false
	}

	nulIdx := -1
	for i := c.pos; i < len(c.buf); i++ {
		if c.buf[i] == 0 {
			nulIdx = i
			break
		}
	}
	if nulIdx < 0 {
		c.err = fmt.Errorf("symtab: truncated stream: missing name terminator")
		return false
	}
	tail := c.buf[c.pos:nulIdx]
	c.name = append(append([]byte{}, c.name[:shared]...), tail...)
	c.pos = nulIdx + 1

	var width int
	switch mode {
	case modeAbsolute:
		width = 2
	case modePrevMinus, modePrevPlus, modePrevPlus1:
		width = 1
	default:
		c.err = fmt.Errorf("symtab: impossible mode %d", mode)
		return false
	}
	if c.pos+width > len(c.buf) {
		c.err = fmt.Errorf("symtab: truncated stream: missing value bytes")
		return false
	}

	var newValue uint16
	switch mode {
	case modeAbsolute:
		newValue = uint16(c.buf[c.pos]) | uint16(c.buf[c.pos+1])<<8
	case modePrevMinus:
		b := int64(c.buf[c.pos])
		newValue = uint16(int64(c.value) - 1 - b)
	case modePrevPlus:
		b := int64(c.buf[c.pos])
		newValue = uint16(int64(c.value) + b)
	case modePrevPlus1:
		b := int64(c.buf[c.pos])
		newValue = uint16(int64(c.value) + 0x100 + b)
	}
	c.pos += width
	c.value = newValue

	return true
}

// CurrentName returns the fully reconstructed name of the entry most
// recently yielded by Advance.
func (c *Cursor) CurrentName() string { return string(c.name) }

// CurrentValue returns the resolved 16-bit value of the entry most
// recently yielded by Advance.
func (c *Cursor) CurrentValue() uint16 { return c.value }

// SharedPrefixWith returns the number of leading bytes the current
// entry's name shares with key. Resolve does not call it: it compares
// each reconstructed name with the key in full.
func (c *Cursor) SharedPrefixWith(key string) int {
	return commonPrefixLen(string(c.name), key)
}

// Resolve drives the cursor forward looking for name, relying on both
// the cursor's stream and the caller's search key being sorted
// ascending. It returns (value, true) on an exact match; (0, false)
// once the stream's current name sorts lexicographically past name
// (the ordered early-exit in §4.3's Lookup contract) or the stream is
// exhausted. It never reads past the point where it can determine the
// symbol is absent: Testable Property 5.
func (c *Cursor) Resolve(name string) (uint16, bool) {
	for c.err == nil && c.remaining > 0 {
		if !c.Advance() {
			return 0, false
		}
		cur := c.CurrentName()
		if cur == name {
			return c.CurrentValue(), true
		}
		if cur > name {
			return 0, false
		}
	}
	return 0, false
}
