package eventqueue

import (
	"encoding/binary"
	"errors"
)

const (
	// HeaderSize is the size of the header that precedes the records of every store.
	HeaderSize = 8

	// Magic identifies an initialized store. It is neither zero nor a fill pattern
	// commonly found in erased or uninitialized memory.
	Magic uint32 = 0xd19cab61
)

var ErrShortHeader = errors.New("store header truncated")

// Header describes the contents of a store.
//
// Tag is the store capacity for Buffer and NVRAM media, used to detect a store
// written with a different configuration. For File media it holds the number of
// records already drained but not yet reclaimed.
type Header struct {
	Magic     uint32
	Tag       uint16
	NumEvents uint16
}

// NewHeader returns an initialized, empty header.
func NewHeader(tag uint16) Header {
	return Header{Magic: Magic, Tag: tag}
}

// ParseHeader decodes a header. A short input is reported as ErrShortHeader.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	return Header{
		Magic:     binary.LittleEndian.Uint32(b[0:4]),
		Tag:       binary.LittleEndian.Uint16(b[4:6]),
		NumEvents: binary.LittleEndian.Uint16(b[6:8]),
	}, nil
}

// Valid reports whether h belongs to a store configured with expectedTag.
func (h Header) Valid(expectedTag uint16) bool {
	return h.Magic == Magic && h.Tag == expectedTag
}

// AppendBinary appends the on-media form of h to b.
func (h Header) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, h.Magic)
	b = binary.LittleEndian.AppendUint16(b, h.Tag)
	b = binary.LittleEndian.AppendUint16(b, h.NumEvents)
	return b, nil
}

// MarshalBinary returns the on-media form of h.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, HeaderSize))
}
