// Package format defines the self-describing binary array and blob files
// used for persisted transpose output and lookup sidecars.
//
// The three pipeline artifacts (header offsets, row offsets, column-chunk
// metadata) are raw packed records with no header; this package covers the
// headered files only, plus raw memory-mapped access used by their readers.
package format

import "encoding/binary"

const (
	// MagicNumber identifies tabular-index array files.
	MagicNumber uint32 = 0x54414258 // "TABX"
	// Version is the current array file format version.
	Version uint32 = 1
)

// Header prefixes every array file.
type Header struct {
	Magic   uint32
	Version uint32
	Count   uint64 // number of elements
	Width   uint32 // element width in bytes
}

// HeaderSize is the encoded header length in bytes.
const HeaderSize = 4 + 4 + 8 + 4

// EncodeHeader packs a header little-endian.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.Count)
	binary.LittleEndian.PutUint32(buf[16:20], h.Width)
	return buf
}

// DecodeHeader unpacks a header, validating only the buffer length.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrInvalidHeader
	}
	return Header{
		Magic:   binary.LittleEndian.Uint32(buf[0:4]),
		Version: binary.LittleEndian.Uint32(buf[4:8]),
		Count:   binary.LittleEndian.Uint64(buf[8:16]),
		Width:   binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}
