package buffered

import (
	"errors"
	"fmt"
)

var (
	ErrClosed         = errors.New("stream is closed")
	ErrNotEligible    = errors.New("source is not eligible for read-ahead buffering")
	ErrNegativeOffset = errors.New("negative offset")
)

// FetchError is recorded by the fetch loop when repositioning the source for
// a fetch or reading from it fails. It is returned by the next Read that
// needs data which is not cached yet.
type FetchError struct {
	Offset int64
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch at offset %d failed: %v", e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SeekError is returned only by the Seek call that requested the failed
// reposition.
type SeekError struct {
	Offset int64
	Err    error
}

func (e *SeekError) Error() string {
	return fmt.Sprintf("seek to offset %d failed: %v", e.Offset, e.Err)
}

func (e *SeekError) Unwrap() error {
	return e.Err
}
