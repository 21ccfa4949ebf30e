package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	metricsOnce     sync.Once
	cacheOperations metric.Int64Counter
	cacheDuration   metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/chinmina/chinmina-components/internal/cache")

		var err error
		cacheOperations, err = meter.Int64Counter(
			"cache.operations",
			metric.WithDescription("Token cache operations by outcome"),
		)
		if err != nil {
			otel.Handle(err)
		}

		cacheDuration, err = meter.Float64Histogram(
			"cache.operation.duration",
			metric.WithDescription("Token cache operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// Instrumented records a metric and a span event for every operation of the
// wrapped cache. Keys are never recorded: they carry tenant identifiers.
type Instrumented[T any] struct {
	wrapped   TokenCache[T]
	cacheType string
}

// NewInstrumented wraps cache, labelling its telemetry with cacheType.
func NewInstrumented[T any](cache TokenCache[T], cacheType string) *Instrumented[T] {
	initMetrics()
	return &Instrumented[T]{
		wrapped:   cache,
		cacheType: cacheType,
	}
}

func (i *Instrumented[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var (
		value T
		found bool
	)

	err := i.observe(ctx, "get", func() (string, error) {
		var err error
		value, found, err = i.wrapped.Get(ctx, key)
		if found {
			return "hit", err
		}
		return "miss", err
	})

	return value, found, err
}

func (i *Instrumented[T]) Set(ctx context.Context, key string, value T) error {
	return i.observe(ctx, "set", func() (string, error) {
		return "success", i.wrapped.Set(ctx, key, value)
	})
}

func (i *Instrumented[T]) Invalidate(ctx context.Context, key string) error {
	return i.observe(ctx, "invalidate", func() (string, error) {
		return "success", i.wrapped.Invalidate(ctx, key)
	})
}

func (i *Instrumented[T]) Close() error {
	return i.wrapped.Close()
}

// observe runs op and records its outcome. An error always records the
// "error" status, whatever op reported.
func (i *Instrumented[T]) observe(ctx context.Context, operation string, op func() (string, error)) error {
	start := time.Now()
	status, err := op()
	elapsed := time.Since(start)

	if err != nil {
		status = "error"
	}

	cacheType := attribute.String("cache.type", i.cacheType)
	opAttr := attribute.String("cache.operation", operation)

	if cacheOperations != nil {
		cacheOperations.Add(ctx, 1, metric.WithAttributes(cacheType, opAttr, attribute.String("cache.status", status)))
	}
	if cacheDuration != nil {
		cacheDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(cacheType, opAttr))
	}

	trace.SpanFromContext(ctx).AddEvent("cache."+operation, trace.WithAttributes(
		cacheType,
		attribute.String("cache.status", status),
		attribute.Float64("cache.duration", elapsed.Seconds()),
	))

	return err
}
