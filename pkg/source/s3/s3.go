package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/e2b-dev/infra/packages/readahead/pkg/source"
)

const awsOperationTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/e2b-dev/infra/packages/readahead/pkg/source/s3")

var ErrObjectNotExist = errors.New("object does not exist")

// Store reads a single object from an S3 bucket.
type Store struct {
	client     *s3.Client
	bucketName string
	path       string
}

var _ source.ObjectStore = (*Store)(nil)

// NewStoreFromEnv creates a Store with the default AWS configuration chain.
func NewStoreFromEnv(ctx context.Context, bucketName, path string) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewStore(s3.NewFromConfig(cfg), bucketName, path), nil
}

func NewStore(client *s3.Client, bucketName, path string) *Store {
	return &Store{
		client:     client,
		bucketName: bucketName,
		path:       path,
	}
}

func (s *Store) Size(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, awsOperationTimeout)
	defer cancel()

	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.path),
	})
	if err != nil {
		return 0, s.wrapErr(err)
	}

	return aws.ToInt64(resp.ContentLength), nil
}

func (s *Store) NewRangeReader(ctx context.Context, off int64) (io.ReadCloser, error) {
	_, span := tracer.Start(ctx, "open-range-reader", trace.WithAttributes(
		attribute.String("uri", s.String()),
		attribute.Int64("offset", off),
	))
	defer span.End()

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.path),
		Range:  aws.String(rangeFrom(off)),
	})
	if err != nil {
		span.RecordError(err)

		return nil, s.wrapErr(err)
	}

	return resp.Body, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("s3://%s/%s", s.bucketName, s.path)
}

func (s *Store) wrapErr(err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%s: %w", s, ErrObjectNotExist)
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", s, ErrObjectNotExist)
	}

	return fmt.Errorf("%s: %w", s, err)
}

// rangeFrom formats an open ended HTTP range starting at off.
func rangeFrom(off int64) string {
	return fmt.Sprintf("bytes=%d-", off)
}
