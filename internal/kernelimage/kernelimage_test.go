package kernelimage

import "testing"

func TestConvertReadRoundTrip(t *testing.T) {
	info := Info{
		Signature:  0x2A6B,
		ImageSize:  0x1234,
		ImageCRC:   0xdeadbeef,
		EntryPoint: 0xC000,
		NMemStart:  0x2000,
		NMemSize:   0x0200,
	}
	buf := ConvertHeader(info)
	if len(buf) != InfoSize {
		t.Fatalf("ConvertHeader produced %d bytes, want %d", len(buf), InfoSize)
	}
	got, err := ReadHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != info {
		t.Fatalf("got %+v, want %+v", got, info)
	}
	if err := ExpectKernelSignature(got); err != nil {
		t.Fatal(err)
	}
}

func TestReadHeaderTooShort(t *testing.T) {
	if _, err := ReadHeader(make([]byte, InfoSize-1)); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestExpectKernelSignatureRejectsApplication(t *testing.T) {
	info := Info{Signature: 0x2A6C}
	if err := ExpectKernelSignature(info); err == nil {
		t.Fatal("expected error for application signature")
	}
}
