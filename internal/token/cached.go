package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/chinmina/chinmina-components/internal/cache"
	"github.com/rs/zerolog/log"
)

// CachedToken is the cache representation of a fetched token.
type CachedToken struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}

type cacheSettings struct {
	lifetime    time.Duration
	renewBefore time.Duration
	now         func() time.Time
}

// CacheOption configures the cache decorators.
type CacheOption func(*cacheSettings)

// WithLifetime sets the lifetime given to tokens whose expiry cannot be read
// from the token itself. Defaults to 45 minutes.
func WithLifetime(d time.Duration) CacheOption {
	return func(s *cacheSettings) {
		s.lifetime = d
	}
}

// WithRenewBefore sets how long before expiry a cached token stops being
// served. Defaults to 2 minutes.
func WithRenewBefore(d time.Duration) CacheOption {
	return func(s *cacheSettings) {
		s.renewBefore = d
	}
}

// WithClock replaces the clock used to evaluate expiry.
func WithClock(now func() time.Time) CacheOption {
	return func(s *cacheSettings) {
		s.now = now
	}
}

func newCacheSettings(opts []CacheOption) cacheSettings {
	s := cacheSettings{
		lifetime:    45 * time.Minute,
		renewBefore: 2 * time.Minute,
		now:         time.Now,
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// CacheKey formats the cache key for a fetch:
//
//	token://<tenant>/<scope>#<sha256 of claims>
//
// Unset values are written as "-". A set tenant is written as "t:<escaped>",
// so no tenant ID can collide with the unset marker. Claims are hashed as
// they may be large.
func CacheKey(opts Options, scope string) string {
	tenant := "-"
	if opts.TenantID != "" {
		tenant = "t:" + url.PathEscape(opts.TenantID)
	}

	if scope == "" {
		scope = "-"
	}

	claims := "-"
	if opts.Claims != "" {
		sum := sha256.Sum256([]byte(opts.Claims))
		claims = hex.EncodeToString(sum[:])
	}

	return fmt.Sprintf("token://%s/%s#%s", tenant, scope, claims)
}

func resourceScope(opts ResourceOptions) string {
	return "resource/" + url.QueryEscape(opts.SiteURL)
}

func sharingLinkScope(opts SharingLinkOptions) string {
	return MatchKind(opts,
		func() string { return "graph/" + url.QueryEscape(opts.SiteURL) },
		func() string { return "onedrive/" + url.QueryEscape(opts.SiteURL) },
	)
}

// Cached supplies a decorator that serves tokens from tokenCache. Requests
// with Refresh set never read from the cache, but their answer is stored.
// Absent results are not cached, and cache failures are treated as misses.
func Cached(tokenCache cache.TokenCache[CachedToken], opts ...CacheOption) func(Fetcher) Fetcher {
	settings := newCacheSettings(opts)

	return func(f Fetcher) Fetcher {
		return func(ctx context.Context, fo Options) Result {
			return cachedFetch(ctx, tokenCache, settings, CacheKey(fo, "default"), fo.Refresh, func() Result {
				return f(ctx, fo)
			})
		}
	}
}

// CachedResource is Cached for resource scoped fetchers. The site URL is
// part of the cache key.
func CachedResource(tokenCache cache.TokenCache[CachedToken], opts ...CacheOption) func(ResourceFetcher) ResourceFetcher {
	settings := newCacheSettings(opts)

	return func(f ResourceFetcher) ResourceFetcher {
		return func(ctx context.Context, ro ResourceOptions) Result {
			return cachedFetch(ctx, tokenCache, settings, CacheKey(ro.Options, resourceScope(ro)), ro.Refresh, func() Result {
				return f(ctx, ro)
			})
		}
	}
}

// CachedSharingLink is Cached for sharing link fetchers. The site URL and
// resource kind are part of the cache key. Invalid options are answered with
// an absent result without calling the fetcher.
func CachedSharingLink(tokenCache cache.TokenCache[CachedToken], opts ...CacheOption) func(SharingLinkFetcher) SharingLinkFetcher {
	settings := newCacheSettings(opts)

	return func(f SharingLinkFetcher) SharingLinkFetcher {
		return func(ctx context.Context, so SharingLinkOptions) Result {
			if err := so.Validate(); err != nil {
				return Failed(err)
			}
			return cachedFetch(ctx, tokenCache, settings, CacheKey(so.Options, sharingLinkScope(so)), so.Refresh, func() Result {
				return f(ctx, so)
			})
		}
	}
}

func cachedFetch(
	ctx context.Context,
	tokenCache cache.TokenCache[CachedToken],
	settings cacheSettings,
	key string,
	refresh bool,
	fetch func() Result,
) Result {
	if !refresh {
		if tok, ok := lookup(ctx, tokenCache, settings, key); ok {
			return FromCacheResult(tok)
		}
	}

	result := fetch()

	tok, ok := FromResponse(result)
	if !ok || tok == "" {
		return result
	}

	expiry, ok := Expiry(tok)
	if !ok {
		expiry = settings.now().Add(settings.lifetime)
	}

	if err := tokenCache.Set(ctx, key, CachedToken{Token: tok, Expiry: expiry}); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("unable to cache token")
	}

	return result
}

func lookup(ctx context.Context, tokenCache cache.TokenCache[CachedToken], settings cacheSettings, key string) (string, bool) {
	cached, found, err := tokenCache.Get(ctx, key)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed, fetching token")
		return "", false
	}
	if !found {
		return "", false
	}

	if !settings.now().Add(settings.renewBefore).Before(cached.Expiry) {
		log.Ctx(ctx).Debug().Str("key", key).Time("expiry", cached.Expiry).
			Msg("expired: cached token near or past expiry")

		// Set is not guaranteed to replace the entry, so remove it explicitly.
		if err := tokenCache.Invalidate(ctx, key); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("unable to invalidate expired token")
		}
		return "", false
	}

	log.Ctx(ctx).Debug().Str("key", key).Time("expiry", cached.Expiry).
		Msg("hit: existing token found")

	return cached.Token, true
}
