package minio

import (
	"errors"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_String(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Options{Endpoint: "localhost:9000"})
	require.NoError(t, err)

	s := NewStore(client, "bucket", "a/b.bin")
	assert.Equal(t, "minio://bucket/a/b.bin", s.String())
}

func TestStore_WrapErr(t *testing.T) {
	t.Parallel()

	s := NewStore(nil, "bucket", "key")

	notFound := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	require.ErrorIs(t, s.wrapErr(notFound), ErrObjectNotExist)

	other := errors.New("connection refused")
	err := s.wrapErr(other)
	require.ErrorIs(t, err, other)
	require.NotErrorIs(t, err, ErrObjectNotExist)
}
