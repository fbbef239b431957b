package buffered

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e2b-dev/infra/packages/readahead/pkg/source"
)

// fakeSource serves data up to limit. Bytes at or past limit are not
// available until setLimit raises it, which also fires the availability
// listener. The data ends at eofAt, which may be shorter than the reported size.
// Positions in [stallStart, stallEnd) are never available.
type fakeSource struct {
	data  []byte
	eofAt int64

	mu         sync.Mutex
	pos        int64
	limit      int64
	stallStart int64
	stallEnd   int64
	seeks      []int64
	closed     bool
	seekHook   func(off int64) error
	readHook   func(pos int64) error

	reads       atomic.Int32
	inflight    atomic.Int32
	maxInflight atomic.Int32
	readDelay   time.Duration

	listener source.Listener
}

var _ source.Source = (*fakeSource)(nil)

func newFakeSource(data []byte) *fakeSource {
	return &fakeSource{
		data:  data,
		eofAt: int64(len(data)),
		limit: int64(len(data)),
	}
}

func (f *fakeSource) URI() string {
	return "fake://source"
}

func (f *fakeSource) Size() int64 {
	return int64(len(f.data))
}

func (f *fakeSource) Seekable() bool {
	return true
}

func (f *fakeSource) Position() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pos
}

func (f *fakeSource) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pos >= f.stallStart && f.pos < f.stallEnd {
		return false
	}

	return f.pos >= f.eofAt || f.pos < f.limit
}

func (f *fakeSource) IsEOF() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pos >= f.eofAt
}

func (f *fakeSource) begin() func() {
	n := f.inflight.Add(1)
	for {
		current := f.maxInflight.Load()
		if n <= current || f.maxInflight.CompareAndSwap(current, n) {
			break
		}
	}

	return func() {
		f.inflight.Add(-1)
	}
}

func (f *fakeSource) Seek(_ context.Context, off int64) error {
	defer f.begin()()

	f.mu.Lock()
	f.seeks = append(f.seeks, off)
	hook := f.seekHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(off); err != nil {
			return err
		}
	}

	f.mu.Lock()
	f.pos = off
	f.mu.Unlock()

	return nil
}

func (f *fakeSource) Read(_ context.Context, p []byte) (int, error) {
	defer f.begin()()

	f.reads.Add(1)

	if f.readDelay > 0 {
		time.Sleep(f.readDelay)
	}

	f.mu.Lock()
	pos := f.pos
	hook := f.readHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(pos); err != nil {
			return 0, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pos >= f.eofAt {
		return 0, io.EOF
	}

	end := min(f.limit, f.eofAt)
	if f.pos < f.stallEnd {
		end = min(end, f.stallStart)
	}
	if f.pos >= end {
		return 0, nil
	}

	n := copy(p, f.data[f.pos:end])
	f.pos += int64(n)

	return n, nil
}

func (f *fakeSource) SetAvailabilityListener(fn func()) {
	f.listener.Set(fn)
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

func (f *fakeSource) setLimit(limit int64) {
	f.mu.Lock()
	f.limit = limit
	f.mu.Unlock()

	f.listener.Notify()
}

func (f *fakeSource) setSeekHook(hook func(off int64) error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seekHook = hook
}

func (f *fakeSource) setReadHook(hook func(pos int64) error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.readHook = hook
}

func (f *fakeSource) seekCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]int64(nil), f.seeks...)
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}
