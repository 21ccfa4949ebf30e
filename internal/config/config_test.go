package config

import (
	"context"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Server.ShutdownTimeoutSeconds)
	assert.Empty(t, cfg.Server.ManifestPath)

	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 2700, cfg.Cache.TTLSeconds)
	assert.True(t, cfg.Cache.Valkey.TLS)

	assert.False(t, cfg.Authorization.Enabled)
	assert.Equal(t, "chinmina-components", cfg.Authorization.Audience)

	assert.False(t, cfg.Token.Configured())
	assert.True(t, cfg.Token.Deduplicate)
	assert.Equal(t, "Enterprise", cfg.Token.IdentityType)
	assert.Equal(t, 120, cfg.Token.RenewBeforeSeconds)

	assert.Equal(t, "chinmina-components", cfg.Observe.ServiceName)
}

func TestLoad_Token(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"TOKEN_URL":           "https://login.example/{tenant}/oauth2/v2.0/token",
		"TOKEN_CLIENT_ID":     "client",
		"TOKEN_CLIENT_SECRET": "secret",
		"TOKEN_SCOPES":        "https://graph.example/.default,offline_access",
		"TOKEN_RETRIES":       "2",
		"TOKEN_IDENTITY_TYPE": "consumer",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.Token.Configured())
	assert.Equal(t, []string{"https://graph.example/.default", "offline_access"}, cfg.Token.Scopes)
	assert.Equal(t, uint(2), cfg.Token.Retries)
}

func TestTokenConfig_Validate(t *testing.T) {
	cases := []struct {
		name  string
		cfg   TokenConfig
		error string
	}{
		{name: "none", cfg: TokenConfig{IdentityType: "Enterprise"}},
		{name: "static", cfg: TokenConfig{StaticToken: "dev", IdentityType: "Enterprise"}},
		{
			name:  "both",
			cfg:   TokenConfig{StaticToken: "dev", TokenURL: "https://a.example/token", IdentityType: "Enterprise"},
			error: "mutually exclusive",
		},
		{
			name:  "relative URL",
			cfg:   TokenConfig{TokenURL: "/token", ClientID: "c", ClientSecret: "s", IdentityType: "Enterprise"},
			error: "absolute URL",
		},
		{
			name:  "missing secret",
			cfg:   TokenConfig{TokenURL: "https://a.example/token", ClientID: "c", IdentityType: "Enterprise"},
			error: "TOKEN_CLIENT_SECRET",
		},
		{
			name:  "unknown identity type",
			cfg:   TokenConfig{IdentityType: "Guest"},
			error: "TOKEN_IDENTITY_TYPE",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.error == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.error)
		})
	}
}

func TestTokenConfig_Digest(t *testing.T) {
	a := TokenConfig{TokenURL: "https://a.example/token", ClientID: "c", Scopes: []string{"x"}}
	b := a
	b.Scopes = []string{"y"}
	secretChanged := a
	secretChanged.ClientSecret = "rotated"

	assert.Len(t, a.Digest(), 16)
	assert.NotEqual(t, a.Digest(), b.Digest())
	assert.Equal(t, a.Digest(), secretChanged.Digest())
}

func TestTokenConfig_DigestCoversStaticToken(t *testing.T) {
	first := TokenConfig{StaticToken: "first-token", IdentityType: "Consumer"}
	second := first
	second.StaticToken = "second-token"

	assert.NotEqual(t, first.Digest(), second.Digest())
	assert.NotEqual(t, first.Digest(), TokenConfig{IdentityType: "Consumer"}.Digest())
	assert.NotContains(t, first.Digest(), "first-token")
}

func TestCacheConfig_Validate(t *testing.T) {
	cases := []struct {
		name  string
		cfg   CacheConfig
		error string
	}{
		{name: "memory", cfg: CacheConfig{Type: "memory", TTLSeconds: 60}},
		{name: "valkey", cfg: CacheConfig{Type: "valkey", TTLSeconds: 60, Valkey: ValkeyConfig{Address: "localhost:6379"}}},
		{name: "unknown type", cfg: CacheConfig{Type: "redis", TTLSeconds: 60}, error: "CACHE_TYPE"},
		{name: "valkey without address", cfg: CacheConfig{Type: "valkey", TTLSeconds: 60}, error: "VALKEY_ADDRESS"},
		{
			name:  "encryption with memory",
			cfg:   CacheConfig{Type: "memory", TTLSeconds: 60, Encryption: CacheEncryptionConfig{Enabled: true, KeysetFile: "k.json"}},
			error: "requires CACHE_TYPE=valkey",
		},
		{
			name:  "encryption without keyset",
			cfg:   CacheConfig{Type: "valkey", TTLSeconds: 60, Valkey: ValkeyConfig{Address: "a:1"}, Encryption: CacheEncryptionConfig{Enabled: true}},
			error: "CACHE_ENCRYPTION_KEYSET_FILE",
		},
		{name: "zero TTL", cfg: CacheConfig{Type: "memory"}, error: "CACHE_TTL_SECS"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.error == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.error)
		})
	}
}

func TestValkeyConfig_TLSFalse(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"CACHE_TYPE":     "valkey",
		"VALKEY_ADDRESS": "localhost:6379",
		"VALKEY_TLS":     "false",
	}))
	require.NoError(t, err)

	expected := ValkeyConfig{
		Address: "localhost:6379",
		TLS:     false,
	}
	assert.Equal(t, expected, cfg.Cache.Valkey)
}

func TestAuthorizationConfig_Validate(t *testing.T) {
	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_ENABLED": "true",
	}))
	assert.ErrorContains(t, err, "JWT_ISSUER_URL")

	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_ENABLED":    "true",
		"JWT_ISSUER_URL": "https://issuer.example",
	}))
	require.NoError(t, err)
	assert.True(t, cfg.Authorization.Enabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MANIFEST_PATH", "/etc/components.yaml")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/etc/components.yaml", cfg.Server.ManifestPath)
}
