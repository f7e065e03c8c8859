package eventqueue

import (
	"fmt"

	"github.com/ava-labs/publish-queue/pkg/eventqueue/storage"
)

// Snapshot is a read-only decoding of a store.
type Snapshot struct {
	Kind   storage.Kind
	Header Header
	Size   int64
	// Valid is false when opening the store with New would reinitialize it.
	Valid  bool
	Reason string
	// Sent is the number of drained records still present in a file store.
	Sent   int
	Events []Event
}

// Inspect decodes the store on m without modifying it.
func Inspect(m storage.Medium, c Codec) (Snapshot, error) {
	snap := Snapshot{Kind: m.Kind()}
	size, err := m.Size()
	if err != nil {
		return snap, fmt.Errorf("failed to size medium: %w", err)
	}
	snap.Size = size

	mio := newMediumIO(m, c)
	hdr, err := mio.readHeader()
	if err != nil {
		snap.Reason = fmt.Sprintf("unreadable header: %v", err)
		return snap, nil
	}
	snap.Header = hdr

	switch {
	case hdr.Magic != Magic:
		snap.Reason = fmt.Sprintf("bad magic %#08x", hdr.Magic)
		return snap, nil
	case m.Kind() != storage.KindFile && hdr.Tag != uint16(m.Capacity()):
		snap.Reason = fmt.Sprintf("store written for capacity %d, medium has %d", hdr.Tag, m.Capacity())
		return snap, nil
	case m.Kind() == storage.KindFile && hdr.Tag > hdr.NumEvents:
		snap.Reason = fmt.Sprintf("%d records sent of %d", hdr.Tag, hdr.NumEvents)
		return snap, nil
	}

	end := m.Capacity()
	if m.Kind() == storage.KindFile {
		end = size
		snap.Sent = int(hdr.Tag)
	}
	off := int64(HeaderSize)
	for i := range int(hdr.NumEvents) {
		rec, n, err := mio.recordAt(off, end, mio.walkBuf)
		if err != nil {
			snap.Reason = fmt.Sprintf("record %d: %v", i, err)
			snap.Events = nil
			return snap, nil
		}
		if i >= snap.Sent {
			snap.Events = append(snap.Events, rec.Event())
		}
		off += n
	}
	snap.Valid = true
	return snap, nil
}
