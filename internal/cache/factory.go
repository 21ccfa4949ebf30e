package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/chinmina/chinmina-components/internal/cache/encryption"
	"github.com/chinmina/chinmina-components/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"
)

// NewFromConfig creates a cache implementation based on the provided configuration.
// It returns the cache and any error encountered.
//
// The cache type must be either "memory" or "valkey". Any other value returns an error.
// For "valkey", the cacheConfig.Valkey.Address must be provided.
func NewFromConfig[T any](ctx context.Context, cacheConfig config.CacheConfig) (TokenCache[T], error) {
	ttl := time.Duration(cacheConfig.TTLSeconds) * time.Second
	if ttl <= 0 {
		return nil, fmt.Errorf("cache TTL must be positive, got %s", ttl)
	}

	switch cacheConfig.Type {
	case "valkey":
		log.Info().
			Str("cache_type", "valkey").
			Str("address", cacheConfig.Valkey.Address).
			Bool("tls", cacheConfig.Valkey.TLS).
			Bool("encrypted", cacheConfig.Encryption.Enabled).
			Msg("initializing distributed cache")

		if cacheConfig.Valkey.Address == "" {
			return nil, fmt.Errorf("valkey address is required when cache type is valkey")
		}

		// Resolve encryption before connecting, so a bad keyset fails without
		// a connection to clean up.
		var strategy EncryptionStrategy
		if cacheConfig.Encryption.Enabled {
			refresh := time.Duration(cacheConfig.Encryption.RefreshSeconds) * time.Second
			if refresh <= 0 {
				refresh = 15 * time.Minute
			}

			aead, err := encryption.NewRefreshableAEADFromFile(ctx, cacheConfig.Encryption.KeysetFile, refresh)
			if err != nil {
				return nil, fmt.Errorf("initializing encryption: %w", err)
			}
			strategy = NewInstrumentedStrategy(NewTinkEncryptionStrategy(aead))

			log.Info().Dur("refresh", refresh).Msg("cache encryption enabled with keyset reload")
		}

		valkeyClient, err := valkey.NewClient(valkeyOptions(cacheConfig.Valkey))
		if err != nil {
			if strategy != nil {
				_ = strategy.Close()
			}
			return nil, fmt.Errorf("failed to create valkey client: %w", err)
		}

		distributed, err := NewDistributed[T](valkeyClient, ttl, strategy)
		if err != nil {
			if strategy != nil {
				_ = strategy.Close()
			}
			valkeyClient.Close()
			return nil, fmt.Errorf("failed to create distributed cache: %w", err)
		}

		return NewInstrumented(distributed, "distributed"), nil

	case "memory":
		log.Info().
			Str("cache_type", "memory").
			Int("max_entries", cacheConfig.MaxMemoryEntries).
			Msg("initializing in-memory cache")

		maxEntries := cacheConfig.MaxMemoryEntries
		if maxEntries <= 0 {
			maxEntries = 10_000
		}

		memory, err := NewMemory[T](ttl, maxEntries)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}

		return NewInstrumented(memory, "memory"), nil

	default:
		return nil, fmt.Errorf("invalid cache type %q: must be either \"memory\" or \"valkey\"", cacheConfig.Type)
	}
}

func valkeyOptions(cfg config.ValkeyConfig) valkey.ClientOption {
	opts := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		AuthCredentialsFn: StaticCredentialsFn(cfg.Username, cfg.Password),
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return opts
}
