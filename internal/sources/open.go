// Package sources opens a source.Source from a URI.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/e2b-dev/infra/packages/readahead/internal/cfg"
	"github.com/e2b-dev/infra/packages/readahead/pkg/source"
	"github.com/e2b-dev/infra/packages/readahead/pkg/source/gcs"
	"github.com/e2b-dev/infra/packages/readahead/pkg/source/minio"
	"github.com/e2b-dev/infra/packages/readahead/pkg/source/s3"
)

var ErrUnsupportedScheme = errors.New("unsupported scheme")

type objectLocation struct {
	scheme string
	bucket string
	key    string
}

func parse(uri string) (objectLocation, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return objectLocation{}, fmt.Errorf("invalid uri %q: %w", uri, err)
	}

	switch u.Scheme {
	case "":
		return objectLocation{scheme: "file", key: uri}, nil
	case "file":
		return objectLocation{scheme: "file", key: u.Path}, nil
	case "gs", "s3", "minio":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return objectLocation{}, fmt.Errorf("uri %q must have the form %s://bucket/key", uri, u.Scheme)
		}

		return objectLocation{scheme: u.Scheme, bucket: u.Host, key: key}, nil
	default:
		return objectLocation{}, fmt.Errorf("%q: %w", u.Scheme, ErrUnsupportedScheme)
	}
}

// closingSource closes an extra client together with the source.
type closingSource struct {
	source.Source

	client io.Closer
}

func (c closingSource) Close() error {
	return errors.Join(c.Source.Close(), c.client.Close())
}

// Open opens the source for uri. Plain paths and file:// URIs are opened from
// the local filesystem, gs://, s3:// and minio:// URIs name a bucket and a key.
func Open(ctx context.Context, uri string, config cfg.Config) (source.Source, error) {
	loc, err := parse(uri)
	if err != nil {
		return nil, err
	}

	switch loc.scheme {
	case "gs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}

		obj, err := source.NewObject(ctx, gcs.NewStore(client, loc.bucket, loc.key))
		if err != nil {
			client.Close()

			return nil, err
		}

		return closingSource{Source: obj, client: client}, nil
	case "s3":
		store, err := s3.NewStoreFromEnv(ctx, loc.bucket, loc.key)
		if err != nil {
			return nil, err
		}

		obj, err := source.NewObject(ctx, store)
		if err != nil {
			return nil, err
		}

		return obj, nil
	case "minio":
		client, err := minio.NewClient(minio.Options{
			Endpoint:  config.MinioConfig.Endpoint,
			AccessKey: config.MinioConfig.AccessKey,
			SecretKey: config.MinioConfig.SecretKey,
			UseSSL:    config.MinioConfig.UseSSL,
		})
		if err != nil {
			return nil, err
		}

		obj, err := source.NewObject(ctx, minio.NewStore(client, loc.bucket, loc.key))
		if err != nil {
			return nil, err
		}

		return obj, nil
	default:
		f, err := source.OpenFile(loc.key)
		if err != nil {
			return nil, err
		}

		return f, nil
	}
}
