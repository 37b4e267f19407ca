// Package symtab implements C3: the delta-compressed, alphabetically
// sorted kernel symbol table codec shared by the host symbol-table
// builder and the device-side loader.
package symtab

import (
	"fmt"
	"sort"
)

// Entry is one kernel-exported symbol: its name and its resolved 16-bit
// address.
type Entry struct {
	Name  string
	Value uint16
}

// address-encoding modes, stored in attr's top two bits.
const (
	modeAbsolute  = 0 // value stored as a plain 2-byte u16
	modePrevMinus = 1 // value = previous - 1 - b
	modePrevPlus  = 2 // value = previous + b
	modePrevPlus1 = 3 // value = previous + 0x100 + b
)

const maxShared = 63

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Encode sorts entries alphabetically and produces the delta-compressed
// on-disk byte stream described by §4.3. It does not include the file
// header or the EOF sentinel; callers append those.
func Encode(entries []Entry) ([]byte, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return nil, fmt.Errorf("symtab: duplicate symbol name %q", sorted[i].Name)
		}
	}

	var out []byte
	prevName := ""
	var prevValue int64

	for _, e := range sorted {
		shared := commonPrefixLen(prevName, e.Name)
		if shared > maxShared {
			shared = maxShared
		}
		if shared > len(prevName) {
			shared = len(prevName)
		}

		delta := int64(e.Value) - prevValue

		var mode int
		var v uint16
		var width int
		switch {
		case delta >= -256 && delta <= -1:
			mode = modePrevMinus
			v = uint16(-delta - 1)
			width = 1
		case delta >= 0 && delta <= 255:
			mode = modePrevPlus
			v = uint16(delta)
			width = 1
		case delta >= 256 && delta <= 511:
			mode = modePrevPlus1
			v = uint16(delta - 256)
			width = 1
		default:
			mode = modeAbsolute
			v = e.Value
			width = 2
		}

		attr := byte(mode<<6) | byte(shared)
		out = append(out, attr)
		out = append(out, []byte(e.Name[shared:])...)
		out = append(out, 0)
		if width == 1 {
			out = append(out, byte(v))
		} else {
			out = append(out, byte(v), byte(v>>8))
		}

		prevName = e.Name
		prevValue = int64(e.Value)
	}

	return out, nil
}

// Decode walks n on-disk entries from buf and returns the reconstructed
// (name, value) list, the way the device loader's full-materialization
// test helper does. The production loader instead drives a Cursor (see
// cursor.go) so it never has to hold the whole table in RAM.
func Decode(buf []byte, n int) ([]Entry, error) {
	c := NewCursor(buf, n)
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		if !c.Advance() {
			return nil, fmt.Errorf("symtab: truncated stream at entry %d: %w", i, c.Err())
		}
		out = append(out, Entry{Name: c.CurrentName(), Value: c.CurrentValue()})
	}
	return out, nil
}
