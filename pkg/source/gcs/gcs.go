package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/e2b-dev/infra/packages/readahead/pkg/source"
)

const (
	googleOperationTimeout  = 5 * time.Second
	googleInitialBackoff    = 10 * time.Millisecond
	googleMaxBackoff        = 10 * time.Second
	googleBackoffMultiplier = 2
	googleMaxAttempts       = 10
)

var tracer = otel.Tracer("github.com/e2b-dev/infra/packages/readahead/pkg/source/gcs")

var ErrObjectNotExist = errors.New("object does not exist")

// Store reads a single object from a GCS bucket.
type Store struct {
	bucket string
	path   string
	handle *storage.ObjectHandle
}

var _ source.ObjectStore = (*Store)(nil)

func NewStore(client *storage.Client, bucket, path string) *Store {
	handle := client.Bucket(bucket).Object(path).Retryer(
		storage.WithMaxAttempts(googleMaxAttempts),
		storage.WithBackoff(gax.Backoff{
			Initial:    googleInitialBackoff,
			Max:        googleMaxBackoff,
			Multiplier: googleBackoffMultiplier,
		}),
		storage.WithPolicy(storage.RetryAlways),
	)

	return &Store{
		bucket: bucket,
		path:   path,
		handle: handle,
	}
}

func (s *Store) Size(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, googleOperationTimeout)
	defer cancel()

	attrs, err := s.handle.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return 0, fmt.Errorf("%s: %w", s, ErrObjectNotExist)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to get GCS object (%s) attributes: %w", s, err)
	}

	return attrs.Size, nil
}

func (s *Store) NewRangeReader(ctx context.Context, off int64) (io.ReadCloser, error) {
	_, span := tracer.Start(ctx, "open-range-reader", trace.WithAttributes(
		attribute.String("uri", s.String()),
		attribute.Int64("offset", off),
	))
	defer span.End()

	// The object should not be gzip compressed, a length of -1 reads until the end.
	reader, err := s.handle.NewRangeReader(ctx, off, -1)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to create GCS reader: %w", err)
	}

	return reader, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.path)
}
