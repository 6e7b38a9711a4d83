// Package source implements the random-access byte source a PE image is
// parsed from: a private memory mapping of a file or a caller buffer.
package source

import (
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// ErrEmpty is returned for zero-length files and buffers.
var ErrEmpty = errors.New("the PE data is empty")

// Source represents an opened byte source.
type Source struct {
	file   *os.File
	mapped mmap.MMap
	data   []byte
}

// Open memory-maps a file. The mapping is copy-on-write, so patches applied
// to Bytes never reach the file.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}

	// Mapping an empty file fails on most platforms
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to stat file")
	}
	if st.Size() == 0 {
		f.Close()
		return nil, errors.WithStack(ErrEmpty)
	}

	m, err := mmap.Map(f, mmap.COPY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to map file")
	}

	return &Source{file: f, mapped: m, data: m}, nil
}

// ReadFile loads a whole file into memory instead of mapping it.
func ReadFile(path string) (*Source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}
	return FromBytes(b)
}

// FromBytes wraps a caller-owned buffer.
func FromBytes(b []byte) (*Source, error) {
	if len(b) == 0 {
		return nil, errors.WithStack(ErrEmpty)
	}
	return &Source{data: b}, nil
}

// Close releases the mapping and the file. It is safe to call more than once.
func (s *Source) Close() error {
	var err error
	if s.mapped != nil {
		err = s.mapped.Unmap()
		s.mapped = nil
	}
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
	}
	s.data = nil
	return errors.Wrap(err, "failed to close source")
}

// Mapped reports whether the source is backed by a memory mapping.
func (s *Source) Mapped() bool {
	return s.mapped != nil
}

// Bytes returns the underlying buffer. It must not be used after Close.
func (s *Source) Bytes() []byte {
	return s.data
}

// Len returns the total length of the source.
func (s *Source) Len() int {
	return len(s.data)
}

// Slice returns data[start:end] clamped to the buffer, never panicking.
func (s *Source) Slice(start, end int) []byte {
	return Clamp(s.data, start, end)
}

// ReadAt implements io.ReaderAt.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Clamp slices b like b[start:end], truncating the bounds to the buffer
// instead of panicking. A negative end means "to the end".
func Clamp(b []byte, start, end int) []byte {
	if start < 0 {
		start = 0
	}
	if end < 0 || end > len(b) {
		end = len(b)
	}
	if start > end {
		return b[:0]
	}
	return b[start:end]
}
