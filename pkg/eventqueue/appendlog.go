package eventqueue

import (
	"math"

	"github.com/ava-labs/publish-queue/pkg/eventqueue/storage"
)

// appendLog keeps records in a file that only ever grows at the tail. Drained
// records are not moved; the header tag counts them instead, and the file is
// truncated back to the bare header once every record has been drained.
//
// When the file would exceed its capacity, drained records are reclaimed by
// moving the live records down before anything unsent is evicted.
type appendLog struct {
	io       *mediumIO
	trunc    storage.Truncater
	capacity int64
	hdr      Header
	// head is the offset of the oldest unsent record, tail the end of the newest.
	head int64
	tail int64
}

var _ layout = (*appendLog)(nil)

func newAppendLog(m *mediumIO, t storage.Truncater) *appendLog {
	return &appendLog{io: m, trunc: t, capacity: m.medium.Capacity()}
}

func (a *appendLog) load() (bool, error) {
	size, err := a.io.medium.Size()
	if err != nil || size < HeaderSize {
		return true, a.reset()
	}
	hdr, err := a.io.readHeader()
	if err != nil || hdr.Magic != Magic || hdr.Tag > hdr.NumEvents {
		return true, a.reset()
	}
	ends, err := a.io.walk(HeaderSize, size, int(hdr.NumEvents))
	if err != nil {
		return true, a.reset()
	}
	if hdr.Tag == hdr.NumEvents {
		// Drained before the truncate landed.
		return false, a.reset()
	}

	a.hdr = hdr
	a.head = HeaderSize
	if hdr.Tag > 0 {
		a.head = ends[hdr.Tag-1]
	}
	a.tail = ends[len(ends)-1]
	if size > a.tail {
		// Bytes of an append whose header update never landed.
		if err := a.trunc.Truncate(a.tail); err != nil {
			return true, a.reset()
		}
	}
	return false, nil
}

func (a *appendLog) reset() error {
	hdr := NewHeader(0)
	if err := a.io.writeHeader(hdr); err != nil {
		return err
	}
	if err := a.trunc.Truncate(HeaderSize); err != nil {
		return err
	}
	a.hdr = hdr
	a.head = HeaderSize
	a.tail = HeaderSize
	return nil
}

// compact reclaims the space held by drained records.
func (a *appendLog) compact() error {
	if a.hdr.Tag == 0 {
		return nil
	}
	live := a.tail - a.head
	if err := a.io.move(HeaderSize, a.head, live); err != nil {
		return err
	}
	hdr := a.hdr
	hdr.NumEvents -= hdr.Tag
	hdr.Tag = 0
	if err := a.io.writeHeader(hdr); err != nil {
		return err
	}
	a.hdr = hdr
	a.head = HeaderSize
	a.tail = HeaderSize + live
	return a.trunc.Truncate(a.tail)
}

func (a *appendLog) append(rec []byte) (bool, error) {
	n := int64(len(rec))
	if a.tail+n > a.capacity || a.hdr.NumEvents == math.MaxUint16 {
		if err := a.compact(); err != nil {
			return false, err
		}
		if a.tail+n > a.capacity || a.hdr.NumEvents == math.MaxUint16 {
			return false, nil
		}
	}
	if err := a.io.writeFull(rec, a.tail); err != nil {
		return false, err
	}
	hdr := a.hdr
	hdr.NumEvents++
	if err := a.io.writeHeader(hdr); err != nil {
		return false, err
	}
	a.hdr = hdr
	a.tail += n
	return true, nil
}

func (a *appendLog) remove(second bool) (bool, error) {
	if second {
		return a.removeSecond()
	}
	if a.count() == 0 {
		return false, nil
	}
	n, err := a.io.sizeAt(a.head, a.tail)
	if err != nil {
		return false, err
	}
	if a.hdr.Tag+1 == a.hdr.NumEvents {
		return true, a.reset()
	}
	hdr := a.hdr
	hdr.Tag++
	if err := a.io.writeHeader(hdr); err != nil {
		return false, err
	}
	a.hdr = hdr
	a.head += n
	return true, nil
}

func (a *appendLog) removeSecond() (bool, error) {
	if a.count() < 2 {
		return false, nil
	}
	first, err := a.io.sizeAt(a.head, a.tail)
	if err != nil {
		return false, err
	}
	start := a.head + first
	n, err := a.io.sizeAt(start, a.tail)
	if err != nil {
		return false, err
	}
	if err := a.io.move(start, start+n, a.tail-(start+n)); err != nil {
		return false, err
	}
	hdr := a.hdr
	hdr.NumEvents--
	if err := a.io.writeHeader(hdr); err != nil {
		return false, err
	}
	a.hdr = hdr
	a.tail -= n
	return true, a.trunc.Truncate(a.tail)
}

func (a *appendLog) oldest() (Record, bool, error) {
	if a.count() == 0 {
		return Record{}, false, nil
	}
	rec, _, err := a.io.recordAt(a.head, a.tail, a.io.publishBuf)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (a *appendLog) clear() error {
	return a.reset()
}

// clearWhileSending is true because the in-flight record was copied out of
// the file when it was read.
func (a *appendLog) clearWhileSending() bool { return true }

func (a *appendLog) count() int { return int(a.hdr.NumEvents - a.hdr.Tag) }

func (a *appendLog) used() int64 { return a.tail }
