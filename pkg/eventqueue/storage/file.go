package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// File is an append-only file medium. The file is opened and closed around
// every operation and synced after every write so that a power loss never
// leaves an open handle with unflushed data behind.
type File struct {
	path    string
	maxSize int64
}

var (
	_ Medium    = (*File)(nil)
	_ Truncater = (*File)(nil)
)

// NewFile returns a medium stored at path that never grows beyond maxSize.
// The file is created on first write.
func NewFile(path string, maxSize int64) *File {
	return &File{path: path, maxSize: maxSize}
}

// Path returns the location of the file.
func (f *File) Path() string { return f.path }

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, int64(len(p)), f.maxSize); err != nil {
		return 0, err
	}
	fh, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, io.EOF
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open %q: %w", f.path, err)
	}
	defer fh.Close()
	return fh.ReadAt(p, off)
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, int64(len(p)), f.maxSize); err != nil {
		return 0, err
	}
	fh, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to open %q: %w", f.path, err)
	}
	n, err := fh.WriteAt(p, off)
	if err == nil {
		err = fh.Sync()
	}
	if cerr := fh.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func (f *File) Size() (int64, error) {
	st, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat %q: %w", f.path, err)
	}
	return st.Size(), nil
}

func (f *File) Capacity() int64 { return f.maxSize }

func (f *File) Kind() Kind { return KindFile }

// Truncate shrinks the file to size bytes.
func (f *File) Truncate(size int64) error {
	cur, err := f.Size()
	if err != nil {
		return err
	}
	if size > cur {
		return fmt.Errorf("%w: %d > %d", ErrGrowTruncate, size, cur)
	}
	if size == cur {
		return nil
	}
	if err := os.Truncate(f.path, size); err != nil {
		return fmt.Errorf("failed to truncate %q: %w", f.path, err)
	}
	return nil
}
