package symtab

import (
	"bytes"
	"testing"
)

// TestEncodeDecodeRoundTrip is Testable Property 3: for sorted lists of
// (name, value), encode then decode yields the same list back.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]Entry{
		{},
		{{Name: "A", Value: 0x1000}},
		{{Name: "A", Value: 0x1000}, {Name: "B", Value: 0x1010}, {Name: "C", Value: 0x1011}},
		{{Name: "alpha", Value: 10}, {Name: "alphabet", Value: 11}, {Name: "beta", Value: 300}},
		{{Name: "a", Value: 0}, {Name: "ab", Value: 0xFFFF}, {Name: "abc", Value: 1}},
	}
	for i, entries := range cases {
		encoded, err := Encode(entries)
		if err != nil {
			t.Fatalf("case %d: Encode: %v", i, err)
		}
		decoded, err := Decode(encoded, len(entries))
		if err != nil {
			t.Fatalf("case %d: Decode: %v", i, err)
		}
		if len(decoded) != len(entries) {
			t.Fatalf("case %d: got %d entries, want %d", i, len(decoded), len(entries))
		}
		for j := range entries {
			if decoded[j] != entries[j] {
				t.Fatalf("case %d entry %d: got %+v, want %+v", i, j, decoded[j], entries[j])
			}
		}
	}
}

// TestAllModesExercised drives the delta through all four mode
// boundaries named in §8 Testable Property 3: -1, -256, 0, 255, 256,
// 511, 1000.
func TestAllModesExercised(t *testing.T) {
	deltas := []int64{-1, -256, 0, 255, 256, 511, 1000}
	entries := make([]Entry, 0, len(deltas)+1)
	// Names must sort ascending; values follow the requested deltas off
	// a running base chosen so every value stays within uint16 range.
	base := int64(20000)
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	entries = append(entries, Entry{Name: names[0], Value: uint16(base)})
	for i, d := range deltas {
		base += d
		entries = append(entries, Entry{Name: names[i+1], Value: uint16(base)})
	}

	encoded, err := Encode(entries)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(encoded, len(entries))
	if err != nil {
		t.Fatal(err)
	}
	for i := range entries {
		if decoded[i] != entries[i] {
			t.Fatalf("entry %d: got %+v, want %+v", i, decoded[i], entries[i])
		}
	}
}

// TestEntryAFirstSymbolIsAbsolute checks that the first symbol of the
// tiny-kernel scenario (S1), A=0x1000, is encoded in absolute mode: its
// delta from the zero baseline (prev_name="", prev_value=0) exceeds 511,
// so no one-byte delta mode applies. Only this first entry of S1 is
// checked here.
func TestEntryAFirstSymbolIsAbsolute(t *testing.T) {
	encoded, err := Encode([]Entry{{Name: "A", Value: 0x1000}})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x00, 'A', 0x00, 0x00, 0x10}
	if !bytes.Equal(encoded, want) {
		t.Fatalf("got % x, want % x", encoded, want)
	}
}

// TestResolveOrderedLookup is Testable Property 5: the ordered scan
// returns unresolved as soon as the stream's current name sorts past
// the search key, without over-reading.
func TestResolveOrderedLookup(t *testing.T) {
	entries := []Entry{
		{Name: "alpha", Value: 1},
		{Name: "beta", Value: 2},
		{Name: "gamma", Value: 3},
	}
	encoded, err := Encode(entries)
	if err != nil {
		t.Fatal(err)
	}

	for _, e := range entries {
		c := NewCursor(encoded, len(entries))
		v, ok := c.Resolve(e.Name)
		if !ok || v != e.Value {
			t.Fatalf("Resolve(%q) = (%v, %v), want (%v, true)", e.Name, v, ok, e.Value)
		}
	}

	c := NewCursor(encoded, len(entries))
	if _, ok := c.Resolve("aardvark"); ok {
		t.Fatalf("Resolve(\"aardvark\") should fail: lexicographically before first entry")
	}

	c = NewCursor(encoded, len(entries))
	if _, ok := c.Resolve("zzz"); ok {
		t.Fatalf("Resolve(\"zzz\") should fail: lexicographically after last entry")
	}

	c = NewCursor(encoded, len(entries))
	if _, ok := c.Resolve("betax"); ok {
		t.Fatalf("Resolve(\"betax\") should fail: not present, sorts between beta and gamma")
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	_, err := Encode([]Entry{{Name: "a", Value: 1}, {Name: "a", Value: 2}})
	if err == nil {
		t.Fatal("expected error for duplicate symbol name")
	}
}
