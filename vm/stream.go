package vm

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

// InputStream is a foreign byte source consumed by DocumentBuilder.
type InputStream interface {
	io.Reader
	io.Closer
}

// ByteArrayInputStream reads a foreign byte array from heap memory.
type ByteArrayInputStream struct {
	t      *Thread
	array  Ref
	pos    int
	length int
}

// NewByteArrayInputStream opens a stream over array.
func NewByteArrayInputStream(t *Thread, array Ref) (*ByteArrayInputStream, *Throwable) {
	t.enter("ByteArrayInputStream", "<init>")
	defer t.leave()

	arr, thr := lookupAs[*ByteArray](t, array)
	if thr != nil {
		return nil, thr
	}
	return &ByteArrayInputStream{t: t, array: array, length: arr.Len()}, nil
}

func (s *ByteArrayInputStream) Read(p []byte) (int, error) {
	if s.pos >= s.length {
		return 0, io.EOF
	}
	n := min(len(p), s.length-s.pos)
	data, thr := s.t.ByteArrayRegion(s.array, s.pos, n)
	if thr != nil {
		return 0, thr
	}
	copy(p, data)
	s.pos += n
	return n, nil
}

func (s *ByteArrayInputStream) Close() error { return nil }

// FileInputStream reads a local file.
type FileInputStream struct {
	f *os.File
}

// NewFileInputStream opens path for reading.
func NewFileInputStream(t *Thread, path string) (*FileInputStream, *Throwable) {
	t.enter("FileInputStream", "<init>")
	defer t.leave()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, t.throwf(ClassFileNotFoundException, "%s (No such file or directory)", path)
		}
		return nil, t.throwf(ClassIOException, "%v", err)
	}
	if st, err := f.Stat(); err == nil && st.IsDir() {
		f.Close()
		return nil, t.throwf(ClassFileNotFoundException, "%s (Is a directory)", path)
	}
	return &FileInputStream{f: f}, nil
}

func (s *FileInputStream) Read(p []byte) (int, error) {
	return s.f.Read(p)
}

func (s *FileInputStream) Close() error {
	return s.f.Close()
}
