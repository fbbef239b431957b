package buffered

import (
	"context"
	"fmt"
	"io"
)

type readSeeker struct {
	ctx    context.Context
	stream *Stream
}

// ReadSeeker adapts the stream to io.ReadSeeker, all calls use ctx.
// Seeking past the end positions the stream at its end.
func (s *Stream) ReadSeeker(ctx context.Context) io.ReadSeeker {
	return &readSeeker{ctx: ctx, stream: s}
}

func (r *readSeeker) Read(p []byte) (int, error) {
	return r.stream.Read(r.ctx, p)
}

func (r *readSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.stream.Position() + offset
	case io.SeekEnd:
		abs = r.stream.Size() + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	if err := r.stream.Seek(r.ctx, abs); err != nil {
		return 0, err
	}

	return r.stream.Position(), nil
}
