// Package crx converts Chrome CRX3 extension packages into plain zip
// archives by stripping the vendor signing header.
package crx

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Errors returned for malformed CRX input. Callers match them with errors.Is.
var (
	ErrBadMagic      = errors.New("invalid package: bad magic")
	ErrTruncated     = errors.New("invalid package: truncated")
	ErrCorruptHeader = errors.New("invalid package: corrupt header length")
)

// magic is the 4-byte ASCII signature every CRX package starts with.
const magic = "Cr24"

// fixedHeaderLen covers the magic, the format version, and the header
// length field. The signed metadata block follows immediately after.
const fixedHeaderLen = 12

// ToZip strips the CRX3 header from raw and returns the embedded zip
// archive. The layout is:
//
//	bytes 0..4   magic "Cr24"
//	bytes 4..8   format version (little-endian uint32)
//	bytes 8..12  header length N (little-endian uint32)
//	bytes 12..12+N  signed metadata block
//	bytes 12+N..    zip archive
//
// The returned slice aliases raw and is not re-validated as a well-formed
// archive; opening it is the caller's concern.
func ToZip(raw []byte) ([]byte, error) {
	if len(raw) < len(magic) || string(raw[:len(magic)]) != magic {
		return nil, ErrBadMagic
	}
	if len(raw) < fixedHeaderLen {
		return nil, ErrTruncated
	}

	headerLen := binary.LittleEndian.Uint32(raw[8:fixedHeaderLen])

	// 64-bit math so a hostile length field cannot overflow the offset.
	offset := uint64(headerLen) + fixedHeaderLen
	if offset > uint64(len(raw)) {
		return nil, ErrCorruptHeader
	}

	return raw[offset:], nil
}
