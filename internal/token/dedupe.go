package token

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Deduplicated supplies a decorator that allows at most one in-flight fetch
// per key. Concurrent callers for the same tenant, claims and refresh flag
// share the answer of the first.
func Deduplicated() func(Fetcher) Fetcher {
	var group singleflight.Group

	return func(f Fetcher) Fetcher {
		return func(ctx context.Context, opts Options) Result {
			key := CacheKey(opts, "default") + "?refresh=" + strconv.FormatBool(opts.Refresh)

			v, _, _ := group.Do(key, func() (any, error) {
				return f(context.WithoutCancel(ctx), opts), nil
			})

			return v.(Result)
		}
	}
}

// DeduplicatedResource is Deduplicated for resource scoped fetchers.
func DeduplicatedResource() func(ResourceFetcher) ResourceFetcher {
	var group singleflight.Group

	return func(f ResourceFetcher) ResourceFetcher {
		return func(ctx context.Context, opts ResourceOptions) Result {
			key := CacheKey(opts.Options, resourceScope(opts)) + "?refresh=" + strconv.FormatBool(opts.Refresh)

			v, _, _ := group.Do(key, func() (any, error) {
				return f(context.WithoutCancel(ctx), opts), nil
			})

			return v.(Result)
		}
	}
}

// DeduplicatedSharingLink is Deduplicated for sharing link fetchers.
func DeduplicatedSharingLink() func(SharingLinkFetcher) SharingLinkFetcher {
	var group singleflight.Group

	return func(f SharingLinkFetcher) SharingLinkFetcher {
		return func(ctx context.Context, opts SharingLinkOptions) Result {
			if err := opts.Validate(); err != nil {
				return Failed(err)
			}

			key := CacheKey(opts.Options, sharingLinkScope(opts)) + "?refresh=" + strconv.FormatBool(opts.Refresh)

			v, _, _ := group.Do(key, func() (any, error) {
				return f(context.WithoutCancel(ctx), opts), nil
			})

			return v.(Result)
		}
	}
}
