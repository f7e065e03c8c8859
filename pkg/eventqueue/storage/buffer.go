package storage

// Buffer is a fixed-size region of memory. When the region is supplied by the
// caller and outlives the process state (retained RAM, a shared mapping), the
// queue stored in it survives restarts.
type Buffer struct {
	region []byte
}

var (
	_ Medium = (*Buffer)(nil)
	_ Mover  = (*Buffer)(nil)
	_ Viewer = (*Buffer)(nil)
)

// NewBuffer allocates a zeroed region of size bytes.
func NewBuffer(size int) *Buffer {
	return &Buffer{region: make([]byte, size)}
}

// NewBufferFrom uses region as the medium. The caller keeps ownership of the
// memory but must not modify it while a queue uses it.
func NewBufferFrom(region []byte) *Buffer {
	return &Buffer{region: region}
}

func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, int64(len(p)), b.Capacity()); err != nil {
		return 0, err
	}
	return copy(p, b.region[off:]), nil
}

func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, int64(len(p)), b.Capacity()); err != nil {
		return 0, err
	}
	return copy(b.region[off:], p), nil
}

func (b *Buffer) Size() (int64, error) { return b.Capacity(), nil }

func (b *Buffer) Capacity() int64 { return int64(len(b.region)) }

func (b *Buffer) Kind() Kind { return KindBuffer }

func (b *Buffer) Move(dst, src, n int64) error {
	if err := checkRange(src, n, b.Capacity()); err != nil {
		return err
	}
	if err := checkRange(dst, n, b.Capacity()); err != nil {
		return err
	}
	copy(b.region[dst:dst+n], b.region[src:src+n])
	return nil
}

func (b *Buffer) View(off, n int64) ([]byte, error) {
	if err := checkRange(off, n, b.Capacity()); err != nil {
		return nil, err
	}
	return b.region[off : off+n : off+n], nil
}

// Bytes returns the whole region.
func (b *Buffer) Bytes() []byte { return b.region }
