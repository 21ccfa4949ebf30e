package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chinmina/chinmina-components/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testToken struct {
	Value string
}

func TestNewFromConfig_Memory(t *testing.T) {
	ctx := context.Background()

	cache, err := NewFromConfig[testToken](ctx, config.CacheConfig{
		Type:             "memory",
		TTLSeconds:       60,
		MaxMemoryEntries: 100,
	})
	require.NoError(t, err)
	require.NotNil(t, cache)

	require.NoError(t, cache.Set(ctx, "k", testToken{Value: "v"}))
	got, found, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", got.Value)

	assert.NoError(t, cache.Close())
}

func TestNewFromConfig_MemoryDefaultsEntries(t *testing.T) {
	cache, err := NewFromConfig[testToken](context.Background(), config.CacheConfig{Type: "memory", TTLSeconds: 60})
	require.NoError(t, err)
	assert.NoError(t, cache.Close())
}

func TestNewFromConfig_InvalidType(t *testing.T) {
	cache, err := NewFromConfig[testToken](context.Background(), config.CacheConfig{Type: "redis", TTLSeconds: 60})

	require.Error(t, err)
	assert.Nil(t, cache)
	assert.Contains(t, err.Error(), "invalid cache type")
}

func TestNewFromConfig_InvalidTTL(t *testing.T) {
	_, err := NewFromConfig[testToken](context.Background(), config.CacheConfig{Type: "memory"})
	assert.ErrorContains(t, err, "TTL must be positive")
}

func TestNewFromConfig_ValkeyRequiresAddress(t *testing.T) {
	cache, err := NewFromConfig[testToken](context.Background(), config.CacheConfig{Type: "valkey", TTLSeconds: 60})

	require.Error(t, err)
	assert.Nil(t, cache)
	assert.Contains(t, err.Error(), "address is required")
}

func TestNewFromConfig_ValkeyMissingKeyset(t *testing.T) {
	cache, err := NewFromConfig[testToken](context.Background(), config.CacheConfig{
		Type:       "valkey",
		TTLSeconds: 60,
		Valkey:     config.ValkeyConfig{Address: "localhost:1"},
		Encryption: config.CacheEncryptionConfig{
			Enabled:    true,
			KeysetFile: filepath.Join(t.TempDir(), "missing.json"),
		},
	})

	require.Error(t, err)
	assert.Nil(t, cache)
	assert.Contains(t, err.Error(), "initializing encryption")
}
