// Package source opens index documents and provides bounds-aware random access.
package source

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/simonhull/audioindex/internal/types"
)

// Source wraps an open document with size-aware reads and helpful error messages.
//
// Reads past the end of the document are not errors: they return the bytes
// that exist, which is how callers detect end of file. A short read that is
// not explained by the document size is reported as an I/O error.
type Source struct {
	r     io.ReaderAt
	c     io.Closer
	path  string
	size  int64
	reads int64
	bytes int64
}

// New creates a Source over an already open reader.
func New(r io.ReaderAt, size int64, path string) *Source {
	return &Source{
		r:    r,
		size: size,
		path: path,
	}
}

// Open opens path from fsys, or from the OS filesystem when fsys is nil.
//
// Files that implement io.ReaderAt are used directly. Files that only
// support seeking are adapted with a seek-then-read reader.
func Open(fsys fs.FS, path string) (*Source, error) {
	var (
		f   fs.File
		err error
	)
	if fsys == nil {
		f, err = os.Open(path)
	} else {
		f, err = fsys.Open(path)
	}
	if err != nil {
		return nil, &types.IOError{Path: path, What: "document", Err: err}
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &types.IOError{Path: path, What: "document size", Err: err}
	}

	var r io.ReaderAt
	switch v := f.(type) {
	case io.ReaderAt:
		r = v
	case io.ReadSeeker:
		r = &seekReaderAt{rs: v}
	default:
		f.Close()
		return nil, &types.IOError{
			Path: path,
			What: "document",
			Err:  errors.New("file supports neither ReadAt nor Seek"),
		}
	}

	return &Source{
		r:    r,
		c:    f,
		path: path,
		size: stat.Size(),
	}, nil
}

// Path returns the document path associated with this source.
func (s *Source) Path() string {
	return s.path
}

// Size returns the document size in bytes.
func (s *Source) Size() int64 {
	return s.size
}

// ReadAt reads up to len(b) bytes at off and returns how many were read.
//
// n is smaller than len(b) only when the document ends first. what
// describes the read for error messages.
func (s *Source) ReadAt(b []byte, off int64, what string) (int, error) {
	if off < 0 {
		return 0, &types.IOError{Path: s.path, What: what, Offset: off, Err: fmt.Errorf("negative offset")}
	}
	if off >= s.size || len(b) == 0 {
		return 0, nil
	}

	want := len(b)
	if remain := s.size - off; int64(want) > remain {
		want = int(remain)
	}

	n, err := s.r.ReadAt(b[:want], off)
	s.reads++
	s.bytes += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, &types.IOError{Path: s.path, What: what, Offset: off, Err: err}
	}
	if n < want {
		return n, &types.IOError{
			Path:   s.path,
			What:   what,
			Offset: off,
			Err:    fmt.Errorf("short read: got %d bytes, expected %d", n, want),
		}
	}

	return n, nil
}

// Reads returns the number of ReadAt calls that reached the storage.
func (s *Source) Reads() int64 {
	return s.reads
}

// BytesRead returns the number of bytes read from the storage.
func (s *Source) BytesRead() int64 {
	return s.bytes
}

// Close releases the underlying file, if Source opened it.
func (s *Source) Close() error {
	if s.c == nil {
		return nil
	}
	err := s.c.Close()
	s.c = nil
	return err
}

// seekReaderAt adapts a seekable file to io.ReaderAt. It is not safe for
// concurrent use, which matches how a Source is used.
type seekReaderAt struct {
	rs io.ReadSeeker
}

func (s *seekReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.rs, p)
}
