package logger

import (
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func WithStreamID(streamID uuid.UUID) zap.Field {
	return zap.String("stream.id", streamID.String())
}

func WithURI(uri string) zap.Field {
	return zap.String("source.uri", uri)
}

func WithOffset(offset int64) zap.Field {
	return zap.Int64("offset", offset)
}

func WithSourcePosition(pos int64) zap.Field {
	return zap.Int64("source.position", pos)
}

// WithSize logs the size in bytes together with its human readable form.
func WithSize(key string, size int64) zap.Field {
	return zap.Dict(key,
		zap.Int64("bytes", size),
		zap.String("human", humanize.IBytes(uint64(max(size, 0)))),
	)
}
