package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	ResultHit  = "hit"
	ResultMiss = "miss"
)

type Metrics struct {
	FetchMetric        metric.Int64Histogram
	SeekMetric         metric.Int64Histogram
	FetchedBytesMetric metric.Int64Counter
	ReadsMetric        metric.Int64Counter
}

func NewMetrics(meterProvider metric.MeterProvider) (Metrics, error) {
	meter := meterProvider.Meter("readahead.buffered.metrics")

	fetch, err := meter.Int64Histogram("readahead.source.fetch",
		metric.WithDescription("Duration of source reads done by the fetch loop"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to get fetch metric: %w", err)
	}

	seek, err := meter.Int64Histogram("readahead.source.seek",
		metric.WithDescription("Duration of source seeks done by the fetch loop"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to get seek metric: %w", err)
	}

	fetchedBytes, err := meter.Int64Counter("readahead.source.fetched",
		metric.WithDescription("Bytes committed to the read-ahead buffer"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to get fetched bytes metric: %w", err)
	}

	reads, err := meter.Int64Counter("readahead.stream.reads",
		metric.WithDescription("Stream reads and seeks by buffer result"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to get reads metric: %w", err)
	}

	return Metrics{
		FetchMetric:        fetch,
		SeekMetric:         seek,
		FetchedBytesMetric: fetchedBytes,
		ReadsMetric:        reads,
	}, nil
}

// NewNoop returns metrics that record nothing.
func NewNoop() Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		// The noop provider never fails to create instruments.
		panic(err)
	}

	return m
}

func (c Metrics) Begin(metric metric.Int64Histogram) Stopwatch {
	return Stopwatch{metric: metric, start: time.Now()}
}

// Hit counts a call served from the buffer.
func (c Metrics) Hit(ctx context.Context, op string) {
	c.ReadsMetric.Add(ctx, 1, metric.WithAttributes(OpKV(op), ResultKV(ResultHit)))
}

// Miss counts a call that had to wait for the fetch loop.
func (c Metrics) Miss(ctx context.Context, op string) {
	c.ReadsMetric.Add(ctx, 1, metric.WithAttributes(OpKV(op), ResultKV(ResultMiss)))
}

func KV[T ~string](key string, value T) attribute.KeyValue {
	return attribute.String(key, string(value))
}

func OpKV(op string) attribute.KeyValue {
	return KV("op", op)
}

func ResultKV(result string) attribute.KeyValue {
	return KV("result", result)
}

func ErrorKV(err error) attribute.KeyValue {
	return attribute.Bool("error", err != nil)
}

type Stopwatch struct {
	metric metric.Int64Histogram
	start  time.Time
}

func (t Stopwatch) End(ctx context.Context, kv ...attribute.KeyValue) {
	amount := time.Since(t.start).Milliseconds()
	t.metric.Record(ctx, amount, metric.WithAttributes(kv...))
}
