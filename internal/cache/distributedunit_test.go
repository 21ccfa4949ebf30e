package cache

import (
	"testing"
	"time"

	"github.com/chinmina/chinmina-components/internal/cache/encryption"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDistributed_NilStrategy(t *testing.T) {
	cache, err := NewDistributed[storedToken](nil, 5*time.Minute, nil)
	require.NoError(t, err)
	assert.IsType(t, &NoEncryptionStrategy{}, cache.strategy)
}

func TestNewDistributed_WithStrategy(t *testing.T) {
	testAEAD, err := encryption.NewTestAEAD()
	require.NoError(t, err)

	cache, err := NewDistributed[storedToken](nil, 5*time.Minute, NewTinkEncryptionStrategy(testAEAD))
	require.NoError(t, err)
	assert.IsType(t, &TinkEncryptionStrategy{}, cache.strategy)
}

func TestNewDistributed_InvalidTTL(t *testing.T) {
	_, err := NewDistributed[storedToken](nil, 0, nil)
	assert.ErrorContains(t, err, "TTL must be positive")
}

func TestDistributedStorageKey(t *testing.T) {
	testAEAD, err := encryption.NewTestAEAD()
	require.NoError(t, err)

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{name: "simple key", key: "test-key", expected: "chinmina-components:enc:test-key"},
		{name: "key with colons", key: "digest:token://contoso/default#-", expected: "chinmina-components:enc:digest:token://contoso/default#-"},
		{name: "empty key", key: "", expected: "chinmina-components:enc:"},
	}

	cache, err := NewDistributed[storedToken](nil, 5*time.Minute, NewTinkEncryptionStrategy(testAEAD))
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cache.storageKey(tt.key))
		})
	}
}

func TestDistributedStorageKey_Unencrypted(t *testing.T) {
	cache, err := NewDistributed[storedToken](nil, 5*time.Minute, nil)
	require.NoError(t, err)

	assert.Equal(t, "chinmina-components:test-key", cache.storageKey("test-key"))
	assert.Equal(t, "chinmina-components:", cache.storageKey(""))
}

func TestDistributedClose_NilClient(t *testing.T) {
	cache, err := NewDistributed[storedToken](nil, 5*time.Minute, nil)
	require.NoError(t, err)
	assert.NoError(t, cache.Close())
}
