package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Authorization AuthorizationConfig
	Cache         CacheConfig
	Observe       ObserveConfig
	Server        ServerConfig
	Token         TokenConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`

	// ManifestPath locates the YAML description of the component graph. When
	// empty, the host serves an empty graph.
	ManifestPath string `env:"MANIFEST_PATH"`
}

// CacheConfig specifies cache configuration.
type CacheConfig struct {
	// Type selects the cache implementation: "memory" (default) or "valkey"
	Type string `env:"CACHE_TYPE, default=memory"`

	// TTLSeconds bounds how long any token stays cached.
	TTLSeconds int `env:"CACHE_TTL_SECS, default=2700"`

	// MaxMemoryEntries bounds the in-memory cache size.
	MaxMemoryEntries int `env:"CACHE_MAX_MEMORY_ENTRIES, default=10000"`

	// Valkey holds distributed cache settings.
	Valkey ValkeyConfig

	// Encryption holds cache encryption settings.
	// Only supported with valkey cache type.
	Encryption CacheEncryptionConfig
}

// ValkeyConfig specifies distributed cache configuration.
type ValkeyConfig struct {
	// Address is the Valkey server address (host:port).
	Address string `env:"VALKEY_ADDRESS"`

	// TLS enables TLS connection to Valkey. Defaults to true so the secure option
	// is the default.
	TLS bool `env:"VALKEY_TLS, default=true"`

	// Username for Valkey authentication.
	Username string `env:"VALKEY_USERNAME"`

	// Password for Valkey authentication.
	Password string `env:"VALKEY_PASSWORD"`
}

// CacheEncryptionConfig holds settings for cache encryption.
type CacheEncryptionConfig struct {
	// Enabled turns on encryption for cached tokens.
	// Requires CACHE_TYPE=valkey.
	Enabled bool `env:"CACHE_ENCRYPTION_ENABLED, default=false"`

	// KeysetFile is the path to a cleartext JSON Tink keyset, usually mounted
	// from a secret store.
	KeysetFile string `env:"CACHE_ENCRYPTION_KEYSET_FILE"`

	// RefreshSeconds controls how often the keyset file is checked for
	// rotation.
	RefreshSeconds int `env:"CACHE_ENCRYPTION_REFRESH_SECS, default=900"`
}

type AuthorizationConfig struct {
	// Enabled requires a valid bearer JWT on component and token routes.
	Enabled             bool   `env:"JWT_ENABLED, default=false"`
	Audience            string `env:"JWT_AUDIENCE, default=chinmina-components"`
	IssuerURL           string `env:"JWT_ISSUER_URL"`
	ConfigurationStatic string `env:"JWT_JWKS_STATIC"`
}

// TokenConfig selects and configures the fetcher behind the token route.
type TokenConfig struct {
	// TokenURL is the OAuth2 token endpoint. It may contain "{tenant}", which
	// is replaced by the tenant of each request.
	TokenURL      string   `env:"TOKEN_URL"`
	ClientID      string   `env:"TOKEN_CLIENT_ID"`
	ClientSecret  string   `env:"TOKEN_CLIENT_SECRET"`
	Scopes        []string `env:"TOKEN_SCOPES"`
	DefaultTenant string   `env:"TOKEN_DEFAULT_TENANT"`

	// IdentityType is "Enterprise" (tenant scoped) or "Consumer".
	IdentityType string `env:"TOKEN_IDENTITY_TYPE, default=Enterprise"`

	// StaticToken is served for every request when set. Development only.
	StaticToken string `env:"TOKEN_STATIC"`

	Retries     uint `env:"TOKEN_RETRIES, default=0"`
	Deduplicate bool `env:"TOKEN_DEDUPLICATE, default=true"`

	LifetimeSeconds    int `env:"TOKEN_DEFAULT_LIFETIME_SECS, default=2700"`
	RenewBeforeSeconds int `env:"TOKEN_RENEW_BEFORE_SECS, default=120"`
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=chinmina-components"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Cache.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	err = cfg.Authorization.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid authorization configuration: %w", err)
	}

	err = cfg.Token.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid token configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if c.Type != "memory" && c.Type != "valkey" {
		return fmt.Errorf("CACHE_TYPE must be either \"memory\" or \"valkey\", got %q", c.Type)
	}

	// Encryption requires distributed cache
	if c.Encryption.Enabled && c.Type != "valkey" {
		return errors.New("cache encryption requires CACHE_TYPE=valkey")
	}

	if c.Encryption.Enabled && c.Encryption.KeysetFile == "" {
		return errors.New("CACHE_ENCRYPTION_KEYSET_FILE required when encryption enabled")
	}

	// Valkey requires address
	if c.Type == "valkey" && c.Valkey.Address == "" {
		return errors.New("VALKEY_ADDRESS required when CACHE_TYPE=valkey")
	}

	if c.TTLSeconds <= 0 {
		return errors.New("CACHE_TTL_SECS must be positive")
	}

	return nil
}

// Validate checks that JWT validation can be configured when enabled.
func (c *AuthorizationConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.IssuerURL == "" {
		return errors.New("JWT_ISSUER_URL required when JWT_ENABLED=true")
	}

	if _, err := url.Parse(c.IssuerURL); err != nil {
		return fmt.Errorf("JWT_ISSUER_URL is invalid: %w", err)
	}

	return nil
}

// Validate checks that at most one token source is configured and that a
// client credentials source is complete.
func (c *TokenConfig) Validate() error {
	if c.StaticToken != "" && c.TokenURL != "" {
		return errors.New("TOKEN_STATIC and TOKEN_URL are mutually exclusive")
	}

	if c.TokenURL != "" {
		u, err := url.Parse(strings.ReplaceAll(c.TokenURL, "{tenant}", "tenant"))
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("TOKEN_URL must be an absolute URL: %q", c.TokenURL)
		}
		if c.ClientID == "" || c.ClientSecret == "" {
			return errors.New("TOKEN_CLIENT_ID and TOKEN_CLIENT_SECRET required when TOKEN_URL is set")
		}
	}

	switch strings.ToLower(c.IdentityType) {
	case "enterprise", "consumer":
	default:
		return fmt.Errorf("TOKEN_IDENTITY_TYPE must be \"Enterprise\" or \"Consumer\", got %q", c.IdentityType)
	}

	return nil
}

// Configured reports whether a token source is available.
func (c TokenConfig) Configured() bool {
	return c.StaticToken != "" || c.TokenURL != ""
}

// Digest identifies the token issuing configuration. Cached tokens are
// namespaced by it, so changing the client, the scopes or the static token
// invalidates them. The client secret is left out so it can be rotated
// without discarding cached tokens.
func (c TokenConfig) Digest() string {
	static := ""
	if c.StaticToken != "" {
		sum := sha256.Sum256([]byte(c.StaticToken))
		static = hex.EncodeToString(sum[:])
	}

	h := sha256.New()
	for _, part := range []string{c.TokenURL, c.ClientID, strings.Join(c.Scopes, " "), c.DefaultTenant, c.IdentityType, static} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
