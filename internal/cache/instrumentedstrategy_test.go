package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type mockStrategy struct {
	encryptResult string
	encryptErr    error
	decryptResult []byte
	decryptErr    error
	closeErr      error

	encryptCalls int
	decryptCalls int
}

func (m *mockStrategy) EncryptValue(_ context.Context, token []byte, key string) (string, error) {
	m.encryptCalls++
	return m.encryptResult, m.encryptErr
}

func (m *mockStrategy) DecryptValue(_ context.Context, value string, key string) ([]byte, error) {
	m.decryptCalls++
	return m.decryptResult, m.decryptErr
}

func (m *mockStrategy) StorageKey(key string) string {
	return "mock:" + key
}

func (m *mockStrategy) Close() error {
	return m.closeErr
}

func eventOutcome(t *testing.T, event sdktrace.Event) string {
	t.Helper()

	for _, attr := range event.Attributes {
		if attr.Key == attribute.Key("encryption.outcome") {
			return attr.Value.AsString()
		}
	}
	t.Fatalf("event %q has no encryption.outcome", event.Name)
	return ""
}

func TestEncryptionOutcome(t *testing.T) {
	cases := []struct {
		err      error
		expected string
	}{
		{err: nil, expected: "success"},
		{err: fmt.Errorf("%w: missing prefix", ErrUnencryptedValue), expected: "unencrypted"},
		{err: fmt.Errorf("%w: decryption failed", ErrCorruptValue), expected: "corrupt"},
		{err: errors.New("keyset unavailable"), expected: "error"},
	}

	for _, tc := range cases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, encryptionOutcome(tc.err))
		})
	}
}

func TestInstrumentedStrategy_Encrypt(t *testing.T) {
	cases := []struct {
		name    string
		mock    *mockStrategy
		outcome string
	}{
		{name: "success", mock: &mockStrategy{encryptResult: "encrypted"}, outcome: "success"},
		{name: "error", mock: &mockStrategy{encryptErr: errors.New("encrypt failed")}, outcome: "error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			instrumented := NewInstrumentedStrategy(tc.mock)

			var (
				result string
				err    error
			)
			events := recordSpan(t, func(ctx context.Context) {
				result, err = instrumented.EncryptValue(ctx, []byte("plaintext"), "key")
			})

			assert.Equal(t, tc.mock.encryptResult, result)
			assert.Equal(t, tc.mock.encryptErr, err)
			assert.Equal(t, 1, tc.mock.encryptCalls)

			require.Len(t, events, 1)
			assert.Equal(t, "cache.encrypt", events[0].Name)
			assert.Equal(t, tc.outcome, eventOutcome(t, events[0]))
		})
	}
}

func TestInstrumentedStrategy_Decrypt(t *testing.T) {
	cases := []struct {
		name    string
		mock    *mockStrategy
		outcome string
	}{
		{name: "success", mock: &mockStrategy{decryptResult: []byte("plaintext")}, outcome: "success"},
		{name: "unencrypted", mock: &mockStrategy{decryptErr: ErrUnencryptedValue}, outcome: "unencrypted"},
		{name: "corrupt", mock: &mockStrategy{decryptErr: ErrCorruptValue}, outcome: "corrupt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			instrumented := NewInstrumentedStrategy(tc.mock)

			var (
				result []byte
				err    error
			)
			events := recordSpan(t, func(ctx context.Context) {
				result, err = instrumented.DecryptValue(ctx, "stored", "key")
			})

			assert.Equal(t, tc.mock.decryptResult, result)
			assert.Equal(t, tc.mock.decryptErr, err)
			assert.Equal(t, 1, tc.mock.decryptCalls)

			require.Len(t, events, 1)
			assert.Equal(t, "cache.decrypt", events[0].Name)
			assert.Equal(t, tc.outcome, eventOutcome(t, events[0]))
		})
	}
}

func TestInstrumentedStrategy_Delegates(t *testing.T) {
	closeErr := errors.New("close failed")
	instrumented := NewInstrumentedStrategy(&mockStrategy{closeErr: closeErr})

	assert.Equal(t, "mock:key", instrumented.StorageKey("key"))
	assert.Equal(t, closeErr, instrumented.Close())
}

func TestInstrumentedStrategy_WithoutSpan(t *testing.T) {
	instrumented := NewInstrumentedStrategy(&mockStrategy{encryptResult: "encrypted"})

	result, err := instrumented.EncryptValue(t.Context(), []byte("plaintext"), "key")
	require.NoError(t, err)
	assert.Equal(t, "encrypted", result)
}
