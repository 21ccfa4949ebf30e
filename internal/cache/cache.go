package cache

import (
	"context"
	"time"
)

// TokenCache defines the interface for token caching implementations.
// The generic type T represents the token type being cached.
type TokenCache[T any] interface {
	// Get retrieves a token from the cache.
	// Returns the token, whether it was found, and any error.
	Get(ctx context.Context, key string) (T, bool, error)

	// Set stores a token in the cache.
	Set(ctx context.Context, key string, token T) error

	// Invalidate removes a token from the cache.
	Invalidate(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// Expirer is implemented by cached values that know when they expire. Caches
// never keep such a value beyond its expiry, even when the configured TTL is
// longer.
type Expirer interface {
	ExpiresAt() time.Time
}

// entryTTL returns how long value may be cached: the configured ttl, reduced
// to the value's own remaining lifetime when it is an Expirer.
func entryTTL[T any](value T, ttl time.Duration, now time.Time) time.Duration {
	e, ok := any(value).(Expirer)
	if !ok {
		return ttl
	}

	expiry := e.ExpiresAt()
	if expiry.IsZero() {
		return ttl
	}

	remaining := expiry.Sub(now)
	if remaining < ttl {
		return max(remaining, 0)
	}
	return ttl
}

// Digester provides a content digest for cache key namespacing.
// When configuration changes, the digest changes, effectively
// invalidating all cached tokens from the old configuration.
type Digester interface {
	Digest() string
}

// Namespaced prefixes every key with the digest of d, so tokens cached
// under a previous configuration are never returned.
type Namespaced[T any] struct {
	wrapped TokenCache[T]
	prefix  string
}

// NewNamespaced wraps c, namespacing its keys by d's digest.
func NewNamespaced[T any](c TokenCache[T], d Digester) *Namespaced[T] {
	return &Namespaced[T]{wrapped: c, prefix: d.Digest() + ":"}
}

func (n *Namespaced[T]) Get(ctx context.Context, key string) (T, bool, error) {
	return n.wrapped.Get(ctx, n.prefix+key)
}

func (n *Namespaced[T]) Set(ctx context.Context, key string, token T) error {
	return n.wrapped.Set(ctx, n.prefix+key, token)
}

func (n *Namespaced[T]) Invalidate(ctx context.Context, key string) error {
	return n.wrapped.Invalidate(ctx, n.prefix+key)
}

func (n *Namespaced[T]) Close() error {
	return n.wrapped.Close()
}
