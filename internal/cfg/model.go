package cfg

import (
	"fmt"
	"reflect"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"

	"github.com/e2b-dev/infra/packages/readahead/pkg/buffered"
)

// ByteSize is a size in bytes, parsed from values like "128KiB" or "4MB".
type ByteSize int64

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(max(b, 0)))
}

func ParseByteSize(value string) (any, error) {
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return nil, fmt.Errorf("invalid byte size %q: %w", value, err)
	}

	return ByteSize(size), nil
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"   envDefault:"localhost:9000"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	UseSSL    bool   `env:"MINIO_USE_SSL"`
}

type Config struct {
	CacheDir    string   `env:"READAHEAD_CACHE_DIR"`
	ChunkSize   ByteSize `env:"READAHEAD_CHUNK_SIZE"   envDefault:"128KiB"`
	Debug       bool     `env:"READAHEAD_DEBUG"`
	MaxSize     ByteSize `env:"READAHEAD_MAX_SIZE"     envDefault:"128MiB"`
	ServiceName string   `env:"READAHEAD_SERVICE_NAME" envDefault:"readahead"`

	MinioConfig MinioConfig
}

// Buffered returns the part of the configuration used by read-ahead streams.
func (c Config) Buffered() buffered.Config {
	return buffered.Config{
		ChunkSize: int64(c.ChunkSize),
		MaxSize:   int64(c.MaxSize),
		CacheDir:  c.CacheDir,
	}
}

func Parse() (Config, error) {
	return env.ParseAsWithOptions[Config](env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(ByteSize(0)): ParseByteSize,
		},
	})
}
