package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"
)

// keyPrefix separates token entries from anything else stored in the same
// Valkey database.
const keyPrefix = "chinmina-components:"

// Distributed implements TokenCache using Valkey with server-assisted
// client-side caching.
// The generic type T represents the token type being cached.
type Distributed[T any] struct {
	client   valkey.Client
	ttl      time.Duration
	strategy EncryptionStrategy
	now      func() time.Time
}

// NewDistributed creates a new Valkey-backed cache with server-assisted client-side caching.
// The ttl parameter bounds how long tokens remain in the cache; values
// implementing Expirer are stored only until their own expiry.
// The strategy parameter controls encryption of cached values; nil defaults to NoEncryptionStrategy.
func NewDistributed[T any](valkeyClient valkey.Client, ttl time.Duration, strategy EncryptionStrategy) (*Distributed[T], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("distributed cache TTL must be positive, got %s", ttl)
	}
	if strategy == nil {
		strategy = &NoEncryptionStrategy{}
	}
	return &Distributed[T]{
		client:   valkeyClient,
		ttl:      ttl,
		strategy: strategy,
		now:      time.Now,
	}, nil
}

func (d *Distributed[T]) storageKey(key string) string {
	return keyPrefix + d.strategy.StorageKey(key)
}

// Get retrieves a token from the cache using server-assisted client-side caching.
// Returns the token, whether it was found, and any error.
// Decryption failures are returned as errors (the Instrumented wrapper records
// these as "error" status for observability). The corrupted entry is
// invalidated on a best-effort basis.
func (d *Distributed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	storageKey := d.storageKey(key)

	// The client-side copy is held for at most the cache TTL; the server
	// invalidates it earlier when the key changes.
	cmd := d.client.B().Get().Key(storageKey).Cache()
	result := d.client.DoCache(ctx, cmd, d.ttl)

	if err := result.Error(); err != nil {
		// Key not found is not an error in our semantics
		if valkey.IsValkeyNil(err) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("failed to get cached value: %w", err)
	}

	val, err := result.ToString()
	if err != nil {
		return zero, false, fmt.Errorf("failed to convert cached value to string: %w", err)
	}

	data, err := d.strategy.DecryptValue(ctx, val, key)
	if err != nil {
		// Best-effort invalidation of the corrupted entry.
		_ = d.client.Do(ctx, d.client.B().Del().Key(storageKey).Build()).Error()

		return zero, false, fmt.Errorf("cache decryption failure for key %q: %w", key, err)
	}

	var token T
	if err := json.Unmarshal(data, &token); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal cached token: %w", err)
	}

	return token, true, nil
}

// Set stores a token in the cache. The token is JSON-serialized before
// storage. A token that has already expired is not stored.
func (d *Distributed[T]) Set(ctx context.Context, key string, token T) error {
	ttl := entryTTL(token, d.ttl, d.now())
	if ttl < time.Millisecond {
		log.Ctx(ctx).Debug().Str("key", key).Msg("not caching expired token")
		return nil
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	value, err := d.strategy.EncryptValue(ctx, data, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	cmd := d.client.B().Set().Key(d.storageKey(key)).Value(value).PxMilliseconds(ttl.Milliseconds()).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set cached value: %w", err)
	}
	return nil
}

// Invalidate removes a token from the cache.
func (d *Distributed[T]) Invalidate(ctx context.Context, key string) error {
	cmd := d.client.B().Del().Key(d.storageKey(key)).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to invalidate cached value: %w", err)
	}
	return nil
}

// Close releases resources associated with the cache client and encryption strategy.
func (d *Distributed[T]) Close() error {
	if err := d.strategy.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing encryption strategy")
	}
	if d.client != nil {
		d.client.Close()
	}
	return nil
}
