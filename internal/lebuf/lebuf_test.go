package lebuf

import (
	"bytes"
	"testing"
)

func TestReadU16ShortInput(t *testing.T) {
	if _, err := ReadU16([]byte{0x01}); err != ErrShortInput {
		t.Fatalf("got %v, want ErrShortInput", err)
	}
}

func TestReadU32ShortInput(t *testing.T) {
	if _, err := ReadU32([]byte{0x01, 0x02, 0x03}); err != ErrShortInput {
		t.Fatalf("got %v, want ErrShortInput", err)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	c := NewCursor(nil)
	if err := c.WriteU16(0x1234); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteU32(0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x34, 0x12, 0xef, 0xbe, 0xad, 0xde}
	if !bytes.Equal(c.Bytes(), want) {
		t.Fatalf("got %x, want %x", c.Bytes(), want)
	}

	v16, err := ReadU16(c.Bytes())
	if err != nil || v16 != 0x1234 {
		t.Fatalf("ReadU16 = %x, %v", v16, err)
	}
	v32, err := ReadU32(c.Bytes()[2:])
	if err != nil || v32 != 0xdeadbeef {
		t.Fatalf("ReadU32 = %x, %v", v32, err)
	}
}

func TestFixedCursorNoSpace(t *testing.T) {
	c := NewFixedCursor(make([]byte, 3))
	if err := c.WriteU16(1); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteU16(2); err != ErrNoSpace {
		t.Fatalf("got %v, want ErrNoSpace", err)
	}
}

func TestFixedCursorWriteBytesNoSpace(t *testing.T) {
	c := NewFixedCursor(make([]byte, 2))
	if err := c.WriteBytes([]byte{1, 2, 3}); err != ErrNoSpace {
		t.Fatalf("got %v, want ErrNoSpace", err)
	}
}
