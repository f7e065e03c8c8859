package eventqueue

// shiftLog keeps records packed right after the header of a fixed region.
// Removing a record shifts everything after it down, since the region can
// never be extended.
type shiftLog struct {
	io       *mediumIO
	capacity int64
	hdr      Header
	nextFree int64
}

var _ layout = (*shiftLog)(nil)

func newShiftLog(m *mediumIO) *shiftLog {
	return &shiftLog{io: m, capacity: m.medium.Capacity()}
}

func (s *shiftLog) tag() uint16 { return uint16(s.capacity) }

func (s *shiftLog) load() (bool, error) {
	hdr, err := s.io.readHeader()
	if err != nil || !hdr.Valid(s.tag()) {
		return true, s.reset()
	}
	ends, err := s.io.walk(HeaderSize, s.capacity, int(hdr.NumEvents))
	if err != nil {
		return true, s.reset()
	}
	s.hdr = hdr
	s.nextFree = HeaderSize
	if len(ends) > 0 {
		s.nextFree = ends[len(ends)-1]
	}
	return false, nil
}

func (s *shiftLog) reset() error {
	hdr := NewHeader(s.tag())
	if err := s.io.writeHeader(hdr); err != nil {
		return err
	}
	s.hdr = hdr
	s.nextFree = HeaderSize
	return nil
}

func (s *shiftLog) append(rec []byte) (bool, error) {
	if s.capacity-s.nextFree < int64(len(rec)) {
		return false, nil
	}
	if err := s.io.writeFull(rec, s.nextFree); err != nil {
		return false, err
	}
	hdr := s.hdr
	hdr.NumEvents++
	if err := s.io.writeHeader(hdr); err != nil {
		return false, err
	}
	s.hdr = hdr
	s.nextFree += int64(len(rec))
	return true, nil
}

func (s *shiftLog) remove(second bool) (bool, error) {
	need := uint16(1)
	if second {
		need = 2
	}
	if s.hdr.NumEvents < need {
		return false, nil
	}

	start := int64(HeaderSize)
	if second {
		n, err := s.io.sizeAt(start, s.nextFree)
		if err != nil {
			return false, err
		}
		start += n
	}
	n, err := s.io.sizeAt(start, s.nextFree)
	if err != nil {
		return false, err
	}

	if err := s.io.move(start, start+n, s.nextFree-(start+n)); err != nil {
		return false, err
	}
	hdr := s.hdr
	hdr.NumEvents--
	if err := s.io.writeHeader(hdr); err != nil {
		return false, err
	}
	s.hdr = hdr
	s.nextFree -= n
	return true, nil
}

func (s *shiftLog) oldest() (Record, bool, error) {
	if s.hdr.NumEvents == 0 {
		return Record{}, false, nil
	}
	rec, _, err := s.io.recordAt(HeaderSize, s.nextFree, s.io.publishBuf)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *shiftLog) clear() error {
	return s.reset()
}

func (s *shiftLog) clearWhileSending() bool { return false }

func (s *shiftLog) count() int { return int(s.hdr.NumEvents) }

func (s *shiftLog) used() int64 { return s.nextFree }
