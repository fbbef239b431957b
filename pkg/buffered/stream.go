// Package buffered implements a read-ahead layer over a slow source.Source.
//
// A Stream owns a background fetch loop that keeps filling a sparse buffer
// from the source's current position while the consumer reads. Reads and
// seeks into already buffered data never touch the source.
package buffered

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/e2b-dev/infra/packages/readahead/internal/logger"
	"github.com/e2b-dev/infra/packages/readahead/internal/metrics"
	"github.com/e2b-dev/infra/packages/readahead/pkg/coverage"
	"github.com/e2b-dev/infra/packages/readahead/pkg/source"
)

const (
	DefaultChunkSize int64 = 128 * 1024
	DefaultMaxSize   int64 = 128 * 1024 * 1024
)

type Config struct {
	// ChunkSize caps a single source read done by the fetch loop.
	ChunkSize int64
	// MaxSize is the largest source that will be buffered.
	MaxSize int64
	// CacheDir holds the buffer in a sparse file when set, otherwise the
	// buffer lives in anonymous memory.
	CacheDir string
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}

	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}

	return c
}

type Option func(*Stream)

func WithLogger(l *zap.Logger) Option {
	return func(s *Stream) {
		s.logger = l
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(s *Stream) {
		s.metrics = m
	}
}

// Stream is a source.Source that serves reads from a buffer filled ahead of
// the consumer by a single background goroutine.
type Stream struct {
	id       uuid.UUID
	src      source.Source
	uri      string
	size     int64
	seekable bool

	chunkSize int64
	logger    *zap.Logger
	metrics   metrics.Metrics

	// ctx is passed to the blocking source calls of the fetch loop. Cancelling
	// it fails the in-flight and following source calls, Close does not.
	ctx  context.Context
	done chan struct{}

	mu sync.Mutex
	// wake is waited on by the fetch loop only.
	wake *sync.Cond
	// client is waited on by Read and Seek.
	client *sync.Cond

	buffer *coverage.Buffer
	offset int64
	idle   bool
	stop   bool
	closed bool

	seekRequested bool
	seekTarget    int64
	// seekBusy is held by the Seek call that owns the request slot.
	seekBusy bool
	// seekAbandoned is set when the owner stopped waiting, the fetch loop
	// then discards the result and frees the slot.
	seekAbandoned bool

	fetchErr error
	seekErr  error

	listener source.Listener
}

var _ source.Source = (*Stream)(nil)

// IsEligible reports whether src can be wrapped by a Stream: it has to be
// seekable and have a known, non-zero size of at most maxSize bytes.
func IsEligible(src source.Source, maxSize int64) bool {
	size := src.Size()

	return src.Seekable() && size > 0 && size <= maxSize
}

// New wraps src and starts the fetch loop. The Stream takes ownership of src
// and closes it in Close.
func New(ctx context.Context, src source.Source, cfg Config, opts ...Option) (*Stream, error) {
	cfg = cfg.withDefaults()

	if !IsEligible(src, cfg.MaxSize) {
		return nil, fmt.Errorf("%s (seekable %t, size %d, max %d): %w",
			src.URI(), src.Seekable(), src.Size(), cfg.MaxSize, ErrNotEligible)
	}

	size := src.Size()

	var buffer *coverage.Buffer
	var err error
	if cfg.CacheDir != "" {
		buffer, err = coverage.NewFileBacked(size, cfg.CacheDir)
	} else {
		buffer, err = coverage.New(size)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create buffer for %s: %w", src.URI(), err)
	}

	s := &Stream{
		id:        uuid.New(),
		src:       src,
		uri:       src.URI(),
		size:      size,
		seekable:  src.Seekable(),
		chunkSize: cfg.ChunkSize,
		ctx:       ctx,
		done:      make(chan struct{}),
		buffer:    buffer,
		offset:    min(max(src.Position(), 0), size),
	}

	s.wake = sync.NewCond(&s.mu)
	s.client = sync.NewCond(&s.mu)

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = zap.L()
	}

	if s.metrics.ReadsMetric == nil {
		s.metrics = metrics.NewNoop()
	}

	s.logger = s.logger.With(logger.WithStreamID(s.id), logger.WithURI(s.uri))

	src.SetAvailabilityListener(s.onSourceAvailable)

	go s.run()

	s.logger.Debug("read-ahead stream started",
		logger.WithSize("size", size),
		logger.WithOffset(s.offset),
		zap.Int64("chunk_size", s.chunkSize),
	)

	return s, nil
}

// onSourceAvailable is the availability listener registered with the source.
// Taking the lock makes sure the signal is not lost between the loop's state
// check and its wait.
func (s *Stream) onSourceAvailable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wake.Signal()
}

// wakeOnDone broadcasts cond when ctx is done, so waiters can observe ctx.Err().
func (s *Stream) wakeOnDone(ctx context.Context, cond *sync.Cond) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		cond.Broadcast()
	})
}

// available reports whether a Read at the current offset returns without waiting.
func (s *Stream) available() bool {
	return s.offset >= s.size || s.buffer.Has(s.offset)
}

// Read copies buffered data at the current offset into p, waiting for the
// fetch loop if the offset is not buffered yet. It returns io.EOF at the end
// of the stream and a *FetchError if the fetch loop failed to provide the data.
func (s *Stream) Read(ctx context.Context, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	if len(p) == 0 {
		return 0, nil
	}

	stop := s.wakeOnDone(ctx, s.client)
	defer stop()

	missed := false
	for {
		if s.closed {
			return 0, ErrClosed
		}

		if s.offset >= s.size {
			return 0, io.EOF
		}

		if data := s.buffer.Read(s.offset); len(data) > 0 {
			n := copy(p, data)
			s.offset += int64(n)

			if !s.available() {
				s.idle = false
				s.wake.Signal()
			}

			if missed {
				s.metrics.Miss(ctx, "read")
			} else {
				s.metrics.Hit(ctx, "read")
			}

			return n, nil
		}

		missed = true

		if s.fetchErr != nil {
			err := s.fetchErr
			s.fetchErr = nil
			s.wake.Signal()

			return 0, err
		}

		if s.idle {
			s.idle = false
			s.wake.Signal()
		}

		if err := ctx.Err(); err != nil {
			return 0, err
		}

		s.client.Wait()
	}
}

// Seek moves the stream to off. Offsets at or past the end move the stream to
// the end. Buffered offsets are served without involving the fetch loop,
// otherwise the source is repositioned and a failure is returned as a *SeekError.
//
// If ctx is done before the source seek completes, Seek returns ctx.Err(), the
// offset is left unchanged and the seek result is discarded.
func (s *Stream) Seek(ctx context.Context, off int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if off < 0 {
		return fmt.Errorf("seek to %d: %w", off, ErrNegativeOffset)
	}

	if s.seekFast(ctx, off) {
		return nil
	}

	stop := s.wakeOnDone(ctx, s.client)
	defer stop()

	for s.seekBusy {
		if s.closed {
			return ErrClosed
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		s.client.Wait()
	}

	if s.closed {
		return ErrClosed
	}

	// The data may have arrived while waiting for the slot.
	if s.seekFast(ctx, off) {
		return nil
	}

	s.metrics.Miss(ctx, "seek")

	s.seekBusy = true
	s.seekTarget = off
	s.seekRequested = true
	s.wake.Signal()

	for s.seekRequested {
		if s.closed {
			s.seekBusy = false

			return ErrClosed
		}

		if err := ctx.Err(); err != nil {
			s.seekAbandoned = true

			return err
		}

		s.client.Wait()
	}

	s.seekBusy = false
	// Let other Seek calls waiting for the slot in.
	s.client.Broadcast()

	// The fetch loop waits for the result to be taken before it looks at the offset again.
	defer s.wake.Signal()

	if s.seekErr != nil {
		err := s.seekErr
		s.seekErr = nil

		return err
	}

	s.offset = off

	return nil
}

func (s *Stream) seekFast(ctx context.Context, off int64) bool {
	if off >= s.size {
		s.offset = s.size

		return true
	}

	if s.buffer.Has(off) {
		s.offset = off
		s.metrics.Hit(ctx, "seek")

		return true
	}

	return false
}

func (s *Stream) URI() string {
	return s.uri
}

func (s *Stream) Size() int64 {
	return s.size
}

func (s *Stream) Seekable() bool {
	return s.seekable
}

func (s *Stream) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.offset
}

func (s *Stream) IsEOF() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.offset >= s.size
}

// IsAvailable reports whether Read would return without waiting.
func (s *Stream) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	return s.available()
}

// SetAvailabilityListener sets fn to be called, without any stream lock held,
// whenever the fetch loop committed new data or recorded an error.
//
// fn runs on the fetch loop goroutine and delays the next fetch until it
// returns. It may query the stream state but must not call Close, which
// waits for the fetch loop to exit, nor Read or Seek where they would wait
// for the fetch loop.
func (s *Stream) SetAvailabilityListener(fn func()) {
	s.listener.Set(fn)
}

type Stats struct {
	URI     string
	Size    int64
	Offset  int64
	Covered int64
	Ranges  []coverage.Range
	Idle    bool
}

func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		URI:    s.uri,
		Size:   s.size,
		Offset: s.offset,
		Idle:   s.idle,
	}

	if !s.closed {
		st.Covered = s.buffer.Covered()
		st.Ranges = s.buffer.Snapshot()
	}

	return st
}

// Close stops the fetch loop, waits for it to exit and closes the source.
// An in-flight source call is not interrupted.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return ErrClosed
	}

	s.closed = true
	s.stop = true
	s.wake.Signal()
	s.client.Broadcast()
	s.mu.Unlock()

	<-s.done

	s.src.SetAvailabilityListener(nil)

	s.mu.Lock()
	bufferErr := s.buffer.Close()
	s.mu.Unlock()

	var errs []error
	if bufferErr != nil {
		errs = append(errs, fmt.Errorf("failed to close buffer: %w", bufferErr))
	}

	if err := s.src.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close source %s: %w", s.uri, err))
	}

	s.logger.Debug("read-ahead stream closed")

	return errors.Join(errs...)
}
