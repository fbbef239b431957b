package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ObjectStore gives ranged access to a single remote object.
type ObjectStore interface {
	Size(ctx context.Context) (int64, error)
	// NewRangeReader returns the object content from off to its end.
	NewRangeReader(ctx context.Context, off int64) (io.ReadCloser, error)
	String() string
}

// Object is a Source streaming a remote object. The response body for the
// current position is opened on the first Read and kept open for the
// following sequential reads; Seek drops it.
//
// Reads block on the network, so the object is always reported as available.
type Object struct {
	store ObjectStore
	size  int64

	mu  sync.Mutex
	pos int64

	// body is only touched by Seek, Read and Close, which are never called concurrently.
	body io.ReadCloser

	// listener is never notified, the source is always available.
	listener Listener
}

var _ Source = (*Object)(nil)

func NewObject(ctx context.Context, store ObjectStore) (*Object, error) {
	size, err := store.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get size of %s: %w", store, err)
	}

	return &Object{
		store: store,
		size:  size,
	}, nil
}

func (o *Object) URI() string {
	return o.store.String()
}

func (o *Object) Size() int64 {
	return o.size
}

func (o *Object) Seekable() bool {
	return true
}

func (o *Object) Position() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.pos
}

func (o *Object) IsAvailable() bool {
	return true
}

func (o *Object) IsEOF() bool {
	return o.Position() >= o.size
}

func (o *Object) Seek(_ context.Context, off int64) error {
	if off < 0 || off > o.size {
		return fmt.Errorf("seek offset %d out of range [0, %d]", off, o.size)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if off == o.pos {
		return nil
	}

	o.closeBody()
	o.pos = off

	return nil
}

func (o *Object) Read(ctx context.Context, p []byte) (int, error) {
	pos := o.Position()
	if pos >= o.size {
		return 0, io.EOF
	}

	if len(p) == 0 {
		return 0, nil
	}

	if o.body == nil {
		body, err := o.store.NewRangeReader(ctx, pos)
		if err != nil {
			return 0, fmt.Errorf("failed to open %s at %d: %w", o.store, pos, err)
		}

		o.body = body
	}

	var n int
	var err error
	for n == 0 && err == nil {
		n, err = o.body.Read(p)
	}

	o.mu.Lock()
	o.pos += int64(n)
	end := o.pos
	if err != nil {
		// The next read reopens the body at the new position.
		o.closeBody()
	}
	o.mu.Unlock()

	if errors.Is(err, io.EOF) {
		if end < o.size {
			return n, fmt.Errorf("object %s ended at %d, expected %d bytes: %w", o.store, end, o.size, io.ErrUnexpectedEOF)
		}

		if n == 0 {
			return 0, io.EOF
		}

		return n, nil
	}

	if err != nil {
		return n, fmt.Errorf("failed to read %s at %d: %w", o.store, pos, err)
	}

	return n, nil
}

func (o *Object) closeBody() {
	if o.body == nil {
		return
	}

	o.body.Close()
	o.body = nil
}

func (o *Object) SetAvailabilityListener(fn func()) {
	o.listener.Set(fn)
}

func (o *Object) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closeBody()

	return nil
}
