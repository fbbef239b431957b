package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// File is a Source reading a local file. Local reads never stall for long,
// so the file is always reported as available.
type File struct {
	f    *os.File
	uri  string
	size int64

	mu  sync.Mutex
	pos int64

	// listener is never notified, the source is always available.
	listener Listener
}

var _ Source = (*File)(nil)

func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	file, err := NewFile(f)
	if err != nil {
		f.Close()

		return nil, err
	}

	return file, nil
}

// NewFile wraps an open file. The source starts at the file's current offset
// and takes ownership of f.
func NewFile(f *os.File) (*File, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file stats: %w", err)
	}

	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to get file offset: %w", err)
	}

	return &File{
		f:    f,
		uri:  f.Name(),
		size: info.Size(),
		pos:  pos,
	}, nil
}

func (s *File) URI() string {
	return s.uri
}

func (s *File) Size() int64 {
	return s.size
}

func (s *File) Seekable() bool {
	return true
}

func (s *File) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pos
}

func (s *File) IsAvailable() bool {
	return true
}

func (s *File) IsEOF() bool {
	return s.Position() >= s.size
}

func (s *File) Seek(_ context.Context, off int64) error {
	if off < 0 || off > s.size {
		return fmt.Errorf("seek offset %d out of range [0, %d]", off, s.size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pos = off

	return nil
}

func (s *File) Read(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	pos := s.Position()
	if pos >= s.size {
		return 0, io.EOF
	}

	n, err := s.f.ReadAt(p, pos)

	s.mu.Lock()
	s.pos += int64(n)
	s.mu.Unlock()

	if errors.Is(err, io.EOF) && n > 0 {
		return n, nil
	}

	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("failed to read file at %d: %w", pos, err)
	}

	return n, err
}

func (s *File) SetAvailabilityListener(fn func()) {
	s.listener.Set(fn)
}

func (s *File) Close() error {
	return s.f.Close()
}
