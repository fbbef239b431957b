package buffered

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/e2b-dev/infra/packages/readahead/internal/logger"
	"github.com/e2b-dev/infra/packages/readahead/internal/metrics"
)

// snapshot captures the loop state. Must be called with s.mu held.
func (s *Stream) snapshot() snapshot {
	pos := s.src.Position()

	return snapshot{
		stop:            s.stop,
		seekRequested:   s.seekRequested,
		seekBusy:        s.seekBusy,
		idle:            s.idle,
		fetchFailed:     s.fetchErr != nil,
		size:            s.size,
		offset:          s.offset,
		offsetCovered:   s.buffer.Has(s.offset),
		sourcePos:       pos,
		sourceAvailable: s.src.IsAvailable(),
		sourceEOF:       s.src.IsEOF(),
		gapAtSource:     len(s.buffer.Write(pos)) > 0,
	}
}

// run is the fetch loop. It is the only goroutine calling Seek and Read on
// the source and the only one committing to the buffer.
func (s *Stream) run() {
	defer close(s.done)

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		switch decide(s.snapshot()) {
		case actionStop:
			return
		case actionSeek:
			s.seek()
		case actionReposition:
			s.reposition()
		case actionFetch:
			s.fetch()
		case actionTruncated:
			pos := s.src.Position()
			s.recordFetchError(s.offset, fmt.Errorf("source ended at %d of %d bytes: %w", pos, s.size, io.ErrUnexpectedEOF))
		case actionIdle:
			s.idle = true
			s.logger.Debug("read-ahead idle", logger.WithOffset(s.offset))
		case actionWait:
			s.wake.Wait()
		}
	}
}

// unlocked runs fn with s.mu released.
func (s *Stream) unlocked(fn func()) {
	s.mu.Unlock()
	defer s.mu.Lock()

	fn()
}

func (s *Stream) seek() {
	target := s.seekTarget

	var err error
	s.unlocked(func() {
		timer := s.metrics.Begin(s.metrics.SeekMetric)
		err = s.src.Seek(s.ctx, target)
		timer.End(s.ctx, metrics.OpKV("seek"), metrics.ErrorKV(err))
	})

	s.idle = false
	s.seekRequested = false

	switch {
	case s.seekAbandoned:
		if err != nil {
			s.logger.Debug("discarding error of abandoned seek", logger.WithOffset(target), zap.Error(err))
		}

		s.seekAbandoned = false
		s.seekBusy = false
	case err != nil:
		s.logger.Warn("seek failed", logger.WithOffset(target), zap.Error(err))
		s.seekErr = &SeekError{Offset: target, Err: err}
	default:
		s.logger.Debug("seeked source", logger.WithOffset(target))
	}

	s.client.Broadcast()
}

// reposition moves a source left at a position the consumer no longer
// needs to the consumer offset.
func (s *Stream) reposition() {
	target := s.offset
	from := s.src.Position()

	var err error
	s.unlocked(func() {
		timer := s.metrics.Begin(s.metrics.SeekMetric)
		err = s.src.Seek(s.ctx, target)
		timer.End(s.ctx, metrics.OpKV("reposition"), metrics.ErrorKV(err))
	})

	if err != nil {
		s.recordFetchError(target, err)

		return
	}

	s.logger.Debug("repositioned source", logger.WithSourcePosition(from), logger.WithOffset(target))
}

func (s *Stream) fetch() {
	pos := s.src.Position()

	w := s.buffer.Write(pos)
	if int64(len(w)) > s.chunkSize {
		w = w[:s.chunkSize]
	}

	var n int
	var err error
	// Nothing else writes to or reads from the uncommitted gap w.
	s.unlocked(func() {
		timer := s.metrics.Begin(s.metrics.FetchMetric)
		n, err = s.src.Read(s.ctx, w)
		timer.End(s.ctx, metrics.OpKV("fetch"), metrics.ErrorKV(err))
	})

	if n > 0 {
		s.buffer.Commit(pos, pos+int64(n))
		s.metrics.FetchedBytesMetric.Add(s.ctx, int64(n))
	}

	switch {
	case errors.Is(err, io.EOF):
		if n == 0 {
			err = fmt.Errorf("source reported end of data at %d of %d bytes: %w", pos, s.size, io.ErrUnexpectedEOF)
		} else {
			err = nil
		}
	case err == nil && n == 0:
		err = io.ErrNoProgress
	}

	if err != nil {
		s.recordFetchError(pos, err)

		return
	}

	s.client.Broadcast()
	s.unlocked(s.listener.Notify)
}

// recordFetchError stores err for the next Read that needs data and wakes
// everybody waiting on the stream.
func (s *Stream) recordFetchError(off int64, err error) {
	s.logger.Warn("fetch failed", logger.WithOffset(off), zap.Error(err))

	s.fetchErr = &FetchError{Offset: off, Err: err}

	s.client.Broadcast()
	s.unlocked(s.listener.Notify)
}
