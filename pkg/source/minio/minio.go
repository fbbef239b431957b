package minio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/e2b-dev/infra/packages/readahead/pkg/source"
)

var tracer = otel.Tracer("github.com/e2b-dev/infra/packages/readahead/pkg/source/minio")

var ErrObjectNotExist = errors.New("object does not exist")

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Store reads a single object from a MinIO or other S3 compatible server.
type Store struct {
	client *minio.Client
	bucket string
	key    string
}

var _ source.ObjectStore = (*Store)(nil)

func NewClient(opts Options) (*minio.Client, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for %s: %w", opts.Endpoint, err)
	}

	return client, nil
}

func NewStore(client *minio.Client, bucket, key string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		key:    key,
	}
}

func (s *Store) Size(ctx context.Context) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key, minio.StatObjectOptions{})
	if err != nil {
		return 0, s.wrapErr(err)
	}

	return info.Size, nil
}

func (s *Store) NewRangeReader(ctx context.Context, off int64) (io.ReadCloser, error) {
	_, span := tracer.Start(ctx, "open-range-reader", trace.WithAttributes(
		attribute.String("uri", s.String()),
		attribute.Int64("offset", off),
	))
	defer span.End()

	opts := minio.GetObjectOptions{}
	// An end of 0 means until the end of the object.
	if err := opts.SetRange(off, 0); err != nil {
		return nil, fmt.Errorf("invalid range at %d: %w", off, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.key, opts)
	if err != nil {
		span.RecordError(err)

		return nil, s.wrapErr(err)
	}

	return obj, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("minio://%s/%s", s.bucket, s.key)
}

func (s *Store) wrapErr(err error) error {
	errResp := minio.ToErrorResponse(err)
	if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
		return fmt.Errorf("%s: %w", s, ErrObjectNotExist)
	}

	return fmt.Errorf("%s: %w", s, err)
}
