package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/e2b-dev/infra/packages/readahead/internal/cfg"
	"github.com/e2b-dev/infra/packages/readahead/internal/logger"
	"github.com/e2b-dev/infra/packages/readahead/internal/metrics"
	"github.com/e2b-dev/infra/packages/readahead/internal/sources"
	"github.com/e2b-dev/infra/packages/readahead/pkg/buffered"
	"github.com/e2b-dev/infra/packages/readahead/pkg/source"
)

type options struct {
	uri      string
	offset   int64
	length   int64
	progress time.Duration
}

func main() {
	offset := flag.Int64("offset", 0, "start offset in bytes")
	length := flag.Int64("length", -1, "number of bytes to copy, -1 copies until the end")
	progress := flag.Duration("progress", 0, "progress log interval, 0 disables progress logs")

	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: %s [flags] <path|file://|gs://|s3://|minio://>", os.Args[0])
	}

	config, err := cfg.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %s", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l := logger.New(logger.Config{
		ServiceName: config.ServiceName,
		Debug:       config.Debug,
	})

	zap.ReplaceGlobals(l)

	err = run(ctx, l, config, options{
		uri:      flag.Arg(0),
		offset:   *offset,
		length:   *length,
		progress: *progress,
	}, os.Stdout)

	l.Sync()

	if err != nil {
		cancel()
		log.Fatalf("readahead-cat failed: %s", err)
	}
}

// sourceReader reads a source.Source as an io.Reader.
type sourceReader struct {
	ctx context.Context
	src source.Source
}

func (r sourceReader) Read(p []byte) (int, error) {
	return r.src.Read(r.ctx, p)
}

type countingWriter struct {
	w       io.Writer
	written *atomic.Int64
}

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.written.Add(int64(n))

	return n, err
}

func run(ctx context.Context, l *zap.Logger, config cfg.Config, opts options, out io.Writer) error {
	src, err := sources.Open(ctx, opts.uri, config)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", opts.uri, err)
	}

	m, err := metrics.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		src.Close()

		return err
	}

	var stream *buffered.Stream
	input := src

	stream, err = buffered.New(ctx, src, config.Buffered(), buffered.WithLogger(l), buffered.WithMetrics(m))
	switch {
	case errors.Is(err, buffered.ErrNotEligible):
		l.Info("reading source without read-ahead", logger.WithURI(src.URI()), zap.Error(err))
	case err != nil:
		src.Close()

		return err
	default:
		input = stream
	}

	defer input.Close()

	if opts.offset > 0 {
		if !input.Seekable() {
			return fmt.Errorf("seek to %d: %w", opts.offset, source.ErrNotSeekable)
		}

		if err := input.Seek(ctx, opts.offset); err != nil {
			return err
		}
	}

	var reader io.Reader = sourceReader{ctx: ctx, src: input}
	if opts.length >= 0 {
		reader = io.LimitReader(reader, opts.length)
	}

	var written atomic.Int64
	copied := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(copied)

		_, err := io.Copy(countingWriter{w: out, written: &written}, reader)

		return err
	})

	if opts.progress > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(opts.progress)
			defer ticker.Stop()

			for {
				select {
				case <-copied:
					return nil
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					l.Info("copying", logger.WithSize("copied", written.Load()), logger.WithOffset(input.Position()))
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("copy failed after %d bytes: %w", written.Load(), err)
	}

	fields := []zap.Field{
		logger.WithURI(input.URI()),
		logger.WithSize("copied", written.Load()),
	}

	if stream != nil {
		st := stream.Stats()
		fields = append(fields,
			logger.WithSize("size", st.Size),
			logger.WithSize("covered", st.Covered),
			zap.Int("ranges", len(st.Ranges)),
		)
	}

	l.Info("done", fields...)

	return nil
}
