package cache

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/chinmina/chinmina-components/internal/cache/encryption"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCacheKey = "digest:token://contoso/default#-"

func newTestTinkStrategy(t *testing.T) *TinkEncryptionStrategy {
	t.Helper()

	testAEAD, err := encryption.NewTestAEAD()
	require.NoError(t, err)

	return NewTinkEncryptionStrategy(testAEAD)
}

func TestStrategies_RoundTrip(t *testing.T) {
	payload := []byte(`{"Token":"eyJ.secret","Expiry":"2026-01-01T00:00:00Z"}`)

	cases := []struct {
		name       string
		strategy   EncryptionStrategy
		storageKey string
		plaintext  bool
	}{
		{name: "none", strategy: &NoEncryptionStrategy{}, storageKey: testCacheKey, plaintext: true},
		{name: "tink", strategy: newTestTinkStrategy(t), storageKey: "enc:" + testCacheKey},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()

			stored, err := tc.strategy.EncryptValue(ctx, payload, testCacheKey)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, stored == string(payload))
			assert.Equal(t, !tc.plaintext, strings.HasPrefix(stored, valuePrefix))

			recovered, err := tc.strategy.DecryptValue(ctx, stored, testCacheKey)
			require.NoError(t, err)
			assert.Equal(t, payload, recovered)

			assert.Equal(t, tc.storageKey, tc.strategy.StorageKey(testCacheKey))
			assert.NoError(t, tc.strategy.Close())
		})
	}
}

func TestTinkEncryptionStrategy_Rejects(t *testing.T) {
	s := newTestTinkStrategy(t)
	ctx := context.Background()

	boundToOtherKey, err := s.EncryptValue(ctx, []byte(`{"Token":"x"}`), "other-key")
	require.NoError(t, err)

	cases := []struct {
		name     string
		stored   string
		sentinel error
		message  string
	}{
		{
			name:     "plaintext entry",
			stored:   `{"Token":"x"}`,
			sentinel: ErrUnencryptedValue,
			message:  "missing",
		},
		{
			name:     "invalid base64",
			stored:   valuePrefix + "not-valid-base64!!!",
			sentinel: ErrCorruptValue,
			message:  "base64",
		},
		{
			name:     "not ciphertext",
			stored:   valuePrefix + base64.StdEncoding.EncodeToString([]byte("not-valid-ciphertext")),
			sentinel: ErrCorruptValue,
			message:  "decryption failed",
		},
		{
			name:     "swapped between keys",
			stored:   boundToOtherKey,
			sentinel: ErrCorruptValue,
			message:  "decryption failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.DecryptValue(ctx, tc.stored, testCacheKey)
			assert.ErrorIs(t, err, tc.sentinel)
			assert.ErrorContains(t, err, tc.message)
		})
	}
}

// closingAEAD passes data through unchanged and counts Close calls.
type closingAEAD struct {
	closes int
}

func (c *closingAEAD) Encrypt(plaintext, _ []byte) ([]byte, error)  { return plaintext, nil }
func (c *closingAEAD) Decrypt(ciphertext, _ []byte) ([]byte, error) { return ciphertext, nil }

func (c *closingAEAD) Close() error {
	c.closes++
	return nil
}

func TestTinkEncryptionStrategy_ClosesAEAD(t *testing.T) {
	aead := &closingAEAD{}

	require.NoError(t, NewTinkEncryptionStrategy(aead).Close())
	assert.Equal(t, 1, aead.closes)
}
