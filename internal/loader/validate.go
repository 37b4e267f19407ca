package loader

import (
	"github.com/xyproto/minilink/internal/crc32k"
	"github.com/xyproto/minilink/internal/format"
)

// checkFile verifies the invariant every managed file shares: it is at
// least minLen bytes, begins with the expected magic, and its stored
// CRC matches crc32k.Checksum of the file with the crc field read back
// as zero — computed over a copy, never the buffer itself (§9 Open
// Questions, the bug fixed relative to the original C's in-place
// zeroing).
func checkFile(raw []byte, minLen int, wantMagic uint16) bool {
	if len(raw) < minLen {
		return false
	}
	common, err := format.DecodeCommonHeader(raw)
	if err != nil || common.Magic != wantMagic {
		return false
	}
	zeroed, err := format.ZeroedCRCCopy(raw)
	if err != nil {
		return false
	}
	return crc32k.Checksum(zeroed) == common.CRC
}
