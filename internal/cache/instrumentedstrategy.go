package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	strategyMetricsOnce  sync.Once
	encryptionDuration   metric.Float64Histogram
	encryptionOperations metric.Int64Counter
)

func initStrategyMetrics() {
	strategyMetricsOnce.Do(func() {
		meter := otel.Meter("github.com/chinmina/chinmina-components/internal/cache")

		var err error
		encryptionDuration, err = meter.Float64Histogram(
			"cache.encryption.duration",
			metric.WithDescription("Token cache encryption operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}

		encryptionOperations, err = meter.Int64Counter(
			"cache.encryption.total",
			metric.WithDescription("Token cache encryption operations by outcome"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// InstrumentedStrategy records the outcome and duration of every encrypt and
// decrypt performed by the wrapped strategy.
type InstrumentedStrategy struct {
	wrapped EncryptionStrategy
}

func NewInstrumentedStrategy(strategy EncryptionStrategy) *InstrumentedStrategy {
	initStrategyMetrics()
	return &InstrumentedStrategy{wrapped: strategy}
}

func (s *InstrumentedStrategy) EncryptValue(ctx context.Context, token []byte, key string) (string, error) {
	start := time.Now()
	result, err := s.wrapped.EncryptValue(ctx, token, key)
	recordEncryption(ctx, "encrypt", time.Since(start), err)

	return result, err
}

func (s *InstrumentedStrategy) DecryptValue(ctx context.Context, value string, key string) ([]byte, error) {
	start := time.Now()
	result, err := s.wrapped.DecryptValue(ctx, value, key)
	recordEncryption(ctx, "decrypt", time.Since(start), err)

	return result, err
}

func (s *InstrumentedStrategy) StorageKey(key string) string {
	return s.wrapped.StorageKey(key)
}

func (s *InstrumentedStrategy) Close() error {
	return s.wrapped.Close()
}

// encryptionOutcome classifies err: "success", "unencrypted", "corrupt" or
// "error".
func encryptionOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUnencryptedValue):
		return "unencrypted"
	case errors.Is(err, ErrCorruptValue):
		return "corrupt"
	default:
		return "error"
	}
}

func recordEncryption(ctx context.Context, operation string, elapsed time.Duration, err error) {
	outcome := encryptionOutcome(err)
	opAttr := attribute.String("encryption.operation", operation)

	if encryptionDuration != nil {
		encryptionDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(opAttr))
	}
	if encryptionOperations != nil {
		encryptionOperations.Add(ctx, 1, metric.WithAttributes(opAttr, attribute.String("encryption.outcome", outcome)))
	}

	trace.SpanFromContext(ctx).AddEvent("cache."+operation, trace.WithAttributes(
		attribute.String("encryption.outcome", outcome),
		attribute.Float64("encryption.duration", elapsed.Seconds()),
	))
}
