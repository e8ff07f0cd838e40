// Package objectmeta implements the on-disk object metadata format: a
// versioned preamble (expiry, size, block size, response headers) followed
// by a dense one-byte-per-block coverage map.
//
// File Format (little-endian throughout):
//
//	offset  size  field
//	  0      1    version           (0 = V0; unknown version is a hard error)
//	  1      8    exp_ts            (u64)
//	  9      8    size_bytes        (u64)
//	 17      4    block_size        (u32)
//	 21      2    headers_count     (u16)
//	 23      …    headers[0..N]     each: u16 name_len | name | u16 value_len | value
//	  …      …    coverage_map      one byte per block (0 or 1)
package objectmeta

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// VersionV0 is the only currently supported on-disk format version.
const VersionV0 = uint8(0)

// Preamble field offsets and sizes, per the layout documented above.
const (
	offsetVersion    = 0
	offsetExpTS      = 1
	offsetSizeBytes  = 9
	offsetBlockSize  = 17
	offsetHeaderCnt  = 21
	offsetHeadersEnd = 23

	sizeVersion   = 1
	sizeExpTS     = 8
	sizeSizeBytes = 8
	sizeBlockSize = 4
	sizeHeaderCnt = 2

	preambleFixedSize = offsetHeadersEnd
)

// MaxHeaders is the largest number of headers a preamble can carry; the
// on-disk header count is a u16.
const MaxHeaders = 65535

var (
	// ErrUnsupportedVersion is returned when the leading version byte is
	// not a recognized format version.
	ErrUnsupportedVersion = errors.New("objectmeta: unsupported version")
	// ErrCorrupted is returned when the buffer is too short, contains
	// invalid UTF-8, or otherwise fails to parse as a preamble.
	ErrCorrupted = errors.New("objectmeta: corrupted metadata")
	// ErrTooManyHeaders is returned by Serialize when a preamble carries
	// more headers than fit in the u16 header count field.
	ErrTooManyHeaders = errors.New("objectmeta: too many headers")
)

// Header is a single stored response header.
type Header struct {
	Name  string
	Value string
}

// Preamble is the fixed-schema portion of an object's metadata, distinct
// from the coverage map that follows it on disk.
type Preamble struct {
	Version   uint8
	ExpTS     uint64
	SizeBytes uint64
	BlockSize uint32
	Headers   []Header
}

// Serialize encodes the preamble only — no coverage map — and asserts that
// the result's length is exactly the sum of the field sizes.
func Serialize(p Preamble) ([]byte, error) {
	if len(p.Headers) > MaxHeaders {
		return nil, fmt.Errorf("%w: %d headers", ErrTooManyHeaders, len(p.Headers))
	}

	size := preambleFixedSize
	for _, h := range p.Headers {
		size += 2 + len(h.Name) + 2 + len(h.Value)
	}

	buf := make([]byte, size)
	buf[offsetVersion] = p.Version
	binary.LittleEndian.PutUint64(buf[offsetExpTS:], p.ExpTS)
	binary.LittleEndian.PutUint64(buf[offsetSizeBytes:], p.SizeBytes)
	binary.LittleEndian.PutUint32(buf[offsetBlockSize:], p.BlockSize)
	binary.LittleEndian.PutUint16(buf[offsetHeaderCnt:], uint16(len(p.Headers)))

	off := offsetHeadersEnd
	for _, h := range p.Headers {
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(h.Name)))
		off += 2
		copy(buf[off:], h.Name)
		off += len(h.Name)
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(h.Value)))
		off += 2
		copy(buf[off:], h.Value)
		off += len(h.Value)
	}

	if off != size {
		return nil, fmt.Errorf("objectmeta: internal error: computed size %d, wrote %d", size, off)
	}

	return buf, nil
}

// Deserialize parses a preamble from the front of buf and returns the byte
// offset at which the coverage map begins.
//
// Header parsing stops as soon as fewer than 2 bytes remain (not enough for
// a length prefix) or a declared name_len would overrun the buffer; in both
// cases the remainder of buf is treated as the coverage map, not an error —
// tolerant of writers that stop emitting headers early. A value length that
// overruns the buffer after a valid name length is a hard error, since a
// writer that committed to a header should have written it in full.
func Deserialize(buf []byte) (Preamble, int, error) {
	if len(buf) < preambleFixedSize {
		return Preamble{}, 0, fmt.Errorf("%w: buffer shorter than fixed preamble", ErrCorrupted)
	}

	version := buf[offsetVersion]
	if version != VersionV0 {
		return Preamble{}, 0, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, version)
	}

	p := Preamble{
		Version:   version,
		ExpTS:     binary.LittleEndian.Uint64(buf[offsetExpTS:]),
		SizeBytes: binary.LittleEndian.Uint64(buf[offsetSizeBytes:]),
		BlockSize: binary.LittleEndian.Uint32(buf[offsetBlockSize:]),
	}

	headerCount := binary.LittleEndian.Uint16(buf[offsetHeaderCnt:])

	off := offsetHeadersEnd
	for i := uint16(0); i < headerCount; i++ {
		if len(buf)-off < 2 {
			break
		}
		nameLen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if off+nameLen > len(buf) {
			off -= 2
			break
		}
		name := buf[off : off+nameLen]
		off += nameLen

		if len(buf)-off < 2 {
			return Preamble{}, 0, fmt.Errorf("%w: header value length truncated", ErrCorrupted)
		}
		valueLen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if off+valueLen > len(buf) {
			return Preamble{}, 0, fmt.Errorf("%w: header value truncated", ErrCorrupted)
		}
		value := buf[off : off+valueLen]
		off += valueLen

		if !utf8.Valid(name) || !utf8.Valid(value) {
			return Preamble{}, 0, fmt.Errorf("%w: header is not valid UTF-8", ErrCorrupted)
		}

		p.Headers = append(p.Headers, Header{Name: string(name), Value: string(value)})
	}

	return p, off, nil
}
