// Package source defines the sequential, seekable byte sources the read-ahead
// stream is built on, together with file and object storage implementations.
package source

import (
	"context"
	"errors"
	"sync"
)

// UnknownSize is returned by Source.Size when the length of the source is not known.
const UnknownSize int64 = -1

var ErrNotSeekable = errors.New("source is not seekable")

// Source is a byte stream that is read sequentially from its current position.
//
// Seek and Read may block on I/O. All other methods must return without
// blocking and be safe to call concurrently with an in-flight Seek or Read.
//
// The availability listener may be invoked from any goroutine, but never while
// the source holds a lock that one of its own query methods needs: the listener
// is allowed to call back into the source.
type Source interface {
	URI() string
	Size() int64
	Seekable() bool
	Position() int64
	IsAvailable() bool
	IsEOF() bool
	Seek(ctx context.Context, off int64) error
	// Read reads into p from the current position. It returns io.EOF once the
	// position reached the end of the source.
	Read(ctx context.Context, p []byte) (int, error)
	SetAvailabilityListener(fn func())
	Close() error
}

// Listener holds an availability callback that can be replaced at any time.
type Listener struct {
	mu sync.Mutex
	fn func()
}

func (l *Listener) Set(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fn = fn
}

// Notify invokes the current callback, if any, without holding any lock.
func (l *Listener) Notify() {
	l.mu.Lock()
	fn := l.fn
	l.mu.Unlock()

	if fn != nil {
		fn()
	}
}
