package storage

import (
	"errors"
	"fmt"
	"io"
)

// Kind selects how the queue lays records out on a medium.
type Kind int

const (
	// KindBuffer is a fixed, directly addressable memory region.
	KindBuffer Kind = iota
	// KindNVRAM is a fixed region reachable only through explicit I/O calls.
	KindNVRAM
	// KindFile is an append-only file that can be truncated.
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindNVRAM:
		return "nvram"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a name produced by Kind.String back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "buffer":
		return KindBuffer, nil
	case "nvram":
		return KindNVRAM, nil
	case "file":
		return KindFile, nil
	default:
		return 0, fmt.Errorf("unknown storage kind %q", s)
	}
}

var (
	ErrOutOfRange   = errors.New("access outside of medium capacity")
	ErrGrowTruncate = errors.New("truncate cannot grow a medium")
)

// Medium is the byte store backing a queue.
type Medium interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the current length of the medium.
	Size() (int64, error)
	// Capacity returns the largest length the medium may reach.
	Capacity() int64
	Kind() Kind
}

// Truncater is implemented by media that can shrink.
type Truncater interface {
	Truncate(size int64) error
}

// Mover is implemented by media that can shift a range in place.
type Mover interface {
	// Move copies n bytes from src to dst. Overlapping ranges are allowed.
	Move(dst, src, n int64) error
}

// Viewer is implemented by media that can expose their bytes without copying.
// The returned slice aliases the medium and is invalidated by any write.
type Viewer interface {
	View(off, n int64) ([]byte, error)
}

func checkRange(off, n, capacity int64) error {
	if off < 0 || n < 0 || off+n > capacity {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, off, off+n, capacity)
	}
	return nil
}
