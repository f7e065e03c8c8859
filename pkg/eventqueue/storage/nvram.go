package storage

import (
	"fmt"
	"io"
	"os"
)

// Device is a random access non-volatile memory such as an external FRAM or
// EEPROM chip. Every call is a bus transaction; nothing is memory mapped.
type Device interface {
	io.ReaderAt
	io.WriterAt
}

// NVRAM exposes a fixed-size window of a Device as a Medium.
type NVRAM struct {
	dev  Device
	size int64
}

var _ Medium = (*NVRAM)(nil)

// NewNVRAM uses the first size bytes of dev.
func NewNVRAM(dev Device, size int64) *NVRAM {
	return &NVRAM{dev: dev, size: size}
}

func (n *NVRAM) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, int64(len(p)), n.size); err != nil {
		return 0, err
	}
	return n.dev.ReadAt(p, off)
}

func (n *NVRAM) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, int64(len(p)), n.size); err != nil {
		return 0, err
	}
	return n.dev.WriteAt(p, off)
}

func (n *NVRAM) Size() (int64, error) { return n.size, nil }

func (n *NVRAM) Capacity() int64 { return n.size }

func (n *NVRAM) Kind() Kind { return KindNVRAM }

// Close releases the device if it holds resources.
func (n *NVRAM) Close() error {
	if c, ok := n.dev.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenNVRAMImage opens (creating if needed) a file of exactly size bytes and
// uses it as the device, e.g. a raw MTD partition or a disk image of one.
func OpenNVRAMImage(path string, size int64) (*NVRAM, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open nvram image %q: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat nvram image %q: %w", path, err)
	}
	if st.Mode().IsRegular() && st.Size() < size {
		// A fresh image reads back as zeroes, which never passes header validation.
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to size nvram image %q: %w", path, err)
		}
	}
	return NewNVRAM(f, size), nil
}
