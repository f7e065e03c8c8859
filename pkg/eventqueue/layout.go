package eventqueue

import (
	"errors"
	"fmt"
	"io"

	"github.com/ava-labs/publish-queue/pkg/eventqueue/storage"
)

// layout is the record arrangement strategy for one kind of medium. All methods
// are called with the queue mutex held.
type layout interface {
	// load validates the store and walks its records. Anything inconsistent
	// reinitializes the store; reset reports whether that happened.
	load() (reset bool, err error)
	// append writes rec after the newest record. It returns false when rec
	// does not fit and eviction is required.
	append(rec []byte) (bool, error)
	// remove deletes the oldest record, or the second oldest when second is set.
	// It returns false when there is no such record.
	remove(second bool) (bool, error)
	// oldest returns the oldest record without removing it.
	oldest() (Record, bool, error)
	clear() error
	// clearWhileSending reports whether clear is safe while the oldest record
	// is being published.
	clearWhileSending() bool
	count() int
	used() int64
}

// mediumIO bundles a medium with the codec and the scratch space shared by
// the layouts.
type mediumIO struct {
	medium storage.Medium
	codec  Codec

	// publishBuf holds the record returned by the last oldest call on media
	// that cannot be viewed in place.
	publishBuf []byte
	// walkBuf is used to measure records and to move bytes between offsets.
	walkBuf []byte
}

func newMediumIO(m storage.Medium, c Codec) *mediumIO {
	return &mediumIO{
		medium:     m,
		codec:      c,
		publishBuf: make([]byte, c.MaxEncodedSize()),
		walkBuf:    make([]byte, c.MaxEncodedSize()),
	}
}

func (m *mediumIO) readFull(p []byte, off int64) error {
	n, err := m.medium.ReadAt(p, off)
	if n == len(p) && (err == nil || errors.Is(err, io.EOF)) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("failed to read %d bytes at %d: %w", len(p), off, err)
}

func (m *mediumIO) writeFull(p []byte, off int64) error {
	n, err := m.medium.WriteAt(p, off)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("failed to write %d bytes at %d: %w", len(p), off, err)
	}
	return nil
}

func (m *mediumIO) readHeader() (Header, error) {
	var b [HeaderSize]byte
	if err := m.readFull(b[:], 0); err != nil {
		return Header{}, err
	}
	return ParseHeader(b[:])
}

func (m *mediumIO) writeHeader(h Header) error {
	var b [HeaderSize]byte
	out, _ := h.AppendBinary(b[:0])
	return m.writeFull(out, 0)
}

// recordAt decodes the record starting at off, never looking at or beyond end.
// On media without views the bytes are read into scratch, which the returned
// record then aliases.
func (m *mediumIO) recordAt(off, end int64, scratch []byte) (Record, int64, error) {
	n := min(int64(m.codec.MaxEncodedSize()), end-off)
	if n < recordHeaderSize {
		return Record{}, 0, fmt.Errorf("%w: %d bytes left at %d", ErrShortRecord, max(n, 0), off)
	}

	var buf []byte
	if v, ok := m.medium.(storage.Viewer); ok {
		var err error
		if buf, err = v.View(off, n); err != nil {
			return Record{}, 0, err
		}
	} else {
		buf = scratch[:n]
		if err := m.readFull(buf, off); err != nil {
			return Record{}, 0, err
		}
	}

	rec, size, err := m.codec.Decode(buf)
	if err != nil {
		return Record{}, 0, fmt.Errorf("record at %d: %w", off, err)
	}
	if size%recordAlign != 0 {
		return Record{}, 0, fmt.Errorf("%w: record at %d runs past %d", ErrCorruptRecord, off, end)
	}
	return rec, int64(size), nil
}

// sizeAt returns the length of the record at off.
func (m *mediumIO) sizeAt(off, end int64) (int64, error) {
	_, n, err := m.recordAt(off, end, m.walkBuf)
	return n, err
}

// walk measures count consecutive records starting at off and returns the
// offset just past each of them.
func (m *mediumIO) walk(off, end int64, count int) ([]int64, error) {
	ends := make([]int64, 0, count)
	for range count {
		n, err := m.sizeAt(off, end)
		if err != nil {
			return nil, err
		}
		off += n
		ends = append(ends, off)
	}
	return ends, nil
}

// move copies n bytes from src down to dst (dst < src).
func (m *mediumIO) move(dst, src, n int64) error {
	if n <= 0 || dst == src {
		return nil
	}
	if mv, ok := m.medium.(storage.Mover); ok {
		return mv.Move(dst, src, n)
	}
	for done := int64(0); done < n; {
		chunk := min(int64(len(m.walkBuf)), n-done)
		buf := m.walkBuf[:chunk]
		if err := m.readFull(buf, src+done); err != nil {
			return err
		}
		if err := m.writeFull(buf, dst+done); err != nil {
			return err
		}
		done += chunk
	}
	return nil
}
