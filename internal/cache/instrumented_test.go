package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type stubCache struct {
	value    string
	found    bool
	err      error
	closeErr error
	calls    []string
}

func (s *stubCache) Get(ctx context.Context, key string) (string, bool, error) {
	s.calls = append(s.calls, "get:"+key)
	return s.value, s.found, s.err
}

func (s *stubCache) Set(ctx context.Context, key string, token string) error {
	s.calls = append(s.calls, "set:"+key)
	return s.err
}

func (s *stubCache) Invalidate(ctx context.Context, key string) error {
	s.calls = append(s.calls, "invalidate:"+key)
	return s.err
}

func (s *stubCache) Close() error {
	return s.closeErr
}

// recordSpan runs fn inside a recorded span and returns the events it added.
func recordSpan(t *testing.T, fn func(ctx context.Context)) []sdktrace.Event {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx, span := provider.Tracer("test").Start(context.Background(), "test")
	fn(ctx)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	return spans[0].Events()
}

func eventStatus(t *testing.T, event sdktrace.Event) string {
	t.Helper()

	for _, attr := range event.Attributes {
		if attr.Key == attribute.Key("cache.status") {
			return attr.Value.AsString()
		}
	}
	t.Fatalf("event %q has no cache.status", event.Name)
	return ""
}

func TestInstrumented_Get(t *testing.T) {
	failure := errors.New("connection refused")

	cases := []struct {
		name   string
		stub   *stubCache
		status string
	}{
		{name: "hit", stub: &stubCache{value: "token", found: true}, status: "hit"},
		{name: "miss", stub: &stubCache{}, status: "miss"},
		{name: "error", stub: &stubCache{err: failure}, status: "error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			instrumented := NewInstrumented[string](tc.stub, "memory")

			var (
				value string
				found bool
				err   error
			)
			events := recordSpan(t, func(ctx context.Context) {
				value, found, err = instrumented.Get(ctx, "key")
			})

			assert.Equal(t, tc.stub.value, value)
			assert.Equal(t, tc.stub.found, found)
			assert.Equal(t, tc.stub.err, err)
			assert.Equal(t, []string{"get:key"}, tc.stub.calls)

			require.Len(t, events, 1)
			assert.Equal(t, "cache.get", events[0].Name)
			assert.Equal(t, tc.status, eventStatus(t, events[0]))
		})
	}
}

func TestInstrumented_Writes(t *testing.T) {
	failure := errors.New("read only replica")

	cases := []struct {
		name   string
		err    error
		status string
	}{
		{name: "success", status: "success"},
		{name: "error", err: failure, status: "error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubCache{err: tc.err}
			instrumented := NewInstrumented[string](stub, "distributed")

			var setErr, invalidateErr error
			events := recordSpan(t, func(ctx context.Context) {
				setErr = instrumented.Set(ctx, "key", "token")
				invalidateErr = instrumented.Invalidate(ctx, "key")
			})

			assert.Equal(t, tc.err, setErr)
			assert.Equal(t, tc.err, invalidateErr)
			assert.Equal(t, []string{"set:key", "invalidate:key"}, stub.calls)

			require.Len(t, events, 2)
			assert.Equal(t, "cache.set", events[0].Name)
			assert.Equal(t, "cache.invalidate", events[1].Name)
			assert.Equal(t, tc.status, eventStatus(t, events[0]))
			assert.Equal(t, tc.status, eventStatus(t, events[1]))
		})
	}
}

func TestInstrumented_EventsNeverCarryKeys(t *testing.T) {
	instrumented := NewInstrumented[string](&stubCache{}, "memory")

	events := recordSpan(t, func(ctx context.Context) {
		_, _, _ = instrumented.Get(ctx, "token://tenant-a/default#-")
	})

	require.Len(t, events, 1)
	for _, attr := range events[0].Attributes {
		assert.NotContains(t, attr.Value.Emit(), "tenant-a")
	}
}

func TestInstrumented_Close(t *testing.T) {
	closeErr := errors.New("close error")

	assert.NoError(t, NewInstrumented[string](&stubCache{}, "memory").Close())
	assert.Equal(t, closeErr, NewInstrumented[string](&stubCache{closeErr: closeErr}, "memory").Close())
}

func TestInstrumented_WithoutSpan(t *testing.T) {
	instrumented := NewInstrumented[string](&stubCache{value: "token", found: true}, "memory")

	value, found, err := instrumented.Get(context.Background(), "key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "token", value)
}
