package eventqueue

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Flags is an opaque bitset handed to the sink with every event. The queue
// stores it verbatim and never interprets it.
type Flags uint8

const (
	FlagNoAck   Flags = 0x01
	FlagWithAck Flags = 0x02
	FlagPrivate Flags = 0x04
	FlagPublic  Flags = 0x08
)

const (
	// recordHeaderSize is ttl:i32, flags:u8, reserved:u8, reserved:u16.
	recordHeaderSize = 8
	recordAlign      = 4

	// DefaultTTL matches the ttl used by callers that do not care about it.
	DefaultTTL = 60
)

var (
	ErrEmptyName     = errors.New("event name must not be empty")
	ErrNameTooLong   = errors.New("event name too long")
	ErrDataTooLong   = errors.New("event data too long")
	ErrEmbeddedNUL   = errors.New("event name or data contains a NUL byte")
	ErrShortRecord   = errors.New("record truncated")
	ErrCorruptRecord = errors.New("record corrupt")
)

// Event is a single unit of work as seen by producers and sinks.
type Event struct {
	Name  string `json:"name"`
	Data  string `json:"data"`
	TTL   int32  `json:"ttl"`
	Flags Flags  `json:"flags"`
}

// Record is a decoded stored event. Name and Data alias the buffer the record
// was decoded from; call Event to detach it.
type Record struct {
	TTL   int32
	Flags Flags
	Name  []byte
	Data  []byte
}

// Event returns a copy of the record that does not alias any queue memory.
func (r Record) Event() Event {
	return Event{
		Name:  string(r.Name),
		Data:  string(r.Data),
		TTL:   r.TTL,
		Flags: r.Flags,
	}
}

// Codec packs events into the on-media record format:
//
//	ttl:i32 flags:u8 reserved:u8 reserved:u16 name\0 data\0 [pad to 4]
//
// MaxNameLen and MaxDataLen exclude the NUL terminator.
type Codec struct {
	MaxNameLen int
	MaxDataLen int
}

// DefaultCodec allows 64 byte names and 623 byte payloads including the terminator.
var DefaultCodec = Codec{MaxNameLen: 63, MaxDataLen: 622}

func align(n int) int {
	if rem := n % recordAlign; rem != 0 {
		n += recordAlign - rem
	}
	return n
}

func (c Codec) validate(ev Event) error {
	switch {
	case ev.Name == "":
		return ErrEmptyName
	case len(ev.Name) > c.MaxNameLen:
		return fmt.Errorf("%w: %d > %d", ErrNameTooLong, len(ev.Name), c.MaxNameLen)
	case len(ev.Data) > c.MaxDataLen:
		return fmt.Errorf("%w: %d > %d", ErrDataTooLong, len(ev.Data), c.MaxDataLen)
	case bytes.IndexByte([]byte(ev.Name), 0) >= 0, bytes.IndexByte([]byte(ev.Data), 0) >= 0:
		return ErrEmbeddedNUL
	}
	return nil
}

// EncodedSize returns the number of bytes ev occupies on media.
func (c Codec) EncodedSize(ev Event) (int, error) {
	if err := c.validate(ev); err != nil {
		return 0, err
	}
	return align(recordHeaderSize + len(ev.Name) + 1 + len(ev.Data) + 1), nil
}

// MaxEncodedSize is the largest record the codec can produce.
func (c Codec) MaxEncodedSize() int {
	return align(recordHeaderSize + c.MaxNameLen + 1 + c.MaxDataLen + 1)
}

// Encode appends the encoded form of ev to dst.
func (c Codec) Encode(dst []byte, ev Event) ([]byte, error) {
	size, err := c.EncodedSize(ev)
	if err != nil {
		return dst, err
	}
	start := len(dst)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(ev.TTL))
	dst = append(dst, byte(ev.Flags), 0, 0, 0)
	dst = append(dst, ev.Name...)
	dst = append(dst, 0)
	dst = append(dst, ev.Data...)
	dst = append(dst, 0)
	for len(dst)-start < size {
		dst = append(dst, 0)
	}
	return dst, nil
}

// Decode parses the record at the start of src and returns it with the number
// of bytes it occupies, padding included. Padding missing at the very end of
// src is tolerated. Decode never reads beyond len(src).
func (c Codec) Decode(src []byte) (Record, int, error) {
	if len(src) < recordHeaderSize {
		return Record{}, 0, ErrShortRecord
	}
	rec := Record{
		TTL:   int32(binary.LittleEndian.Uint32(src[0:4])),
		Flags: Flags(src[4]),
	}

	rest := src[recordHeaderSize:]
	nameEnd := bytes.IndexByte(rest, 0)
	if nameEnd < 0 {
		return Record{}, 0, ErrShortRecord
	}
	if nameEnd == 0 || nameEnd > c.MaxNameLen {
		return Record{}, 0, fmt.Errorf("%w: name length %d", ErrCorruptRecord, nameEnd)
	}
	rec.Name = rest[:nameEnd:nameEnd]

	rest = rest[nameEnd+1:]
	dataEnd := bytes.IndexByte(rest, 0)
	if dataEnd < 0 {
		return Record{}, 0, ErrShortRecord
	}
	if dataEnd > c.MaxDataLen {
		return Record{}, 0, fmt.Errorf("%w: data length %d", ErrCorruptRecord, dataEnd)
	}
	rec.Data = rest[:dataEnd:dataEnd]

	n := align(recordHeaderSize + nameEnd + 1 + dataEnd + 1)
	if n > len(src) {
		n = len(src)
	}
	return rec, n, nil
}
