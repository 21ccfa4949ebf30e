package token

import (
	"context"
	"errors"
)

// Fetcher obtains an access token. Failures are reported as an absent
// Result, never as a panic or a separate error.
type Fetcher func(ctx context.Context, opts Options) Result

// ResourceFetcher obtains an access token scoped to a resource.
type ResourceFetcher func(ctx context.Context, opts ResourceOptions) Result

// SharingLinkFetcher obtains an access token scoped to a resource of a
// specific kind.
type SharingLinkFetcher func(ctx context.Context, opts SharingLinkOptions) Result

// LegacyFetcher is the shape of fetchers that only know how to return a bare
// token string.
type LegacyFetcher func(ctx context.Context, opts Options) (string, error)

// ErrEmptyToken is recorded when a fetcher hands back an empty token.
var ErrEmptyToken = errors.New("fetcher returned an empty token")

// FromLegacy adapts a LegacyFetcher. An error or empty string becomes
// absence; anything else is a legacy result with unknown cache origin.
func FromLegacy(f LegacyFetcher) Fetcher {
	return func(ctx context.Context, opts Options) Result {
		tok, err := f(ctx, opts)
		if err != nil {
			return Failed(err)
		}
		if tok == "" {
			return Failed(ErrEmptyToken)
		}
		return Legacy(tok)
	}
}

// Static always answers with token. It is intended for development.
func Static(token string) Fetcher {
	return func(ctx context.Context, opts Options) Result {
		if token == "" {
			return Failed(ErrEmptyToken)
		}
		return Fresh(token)
	}
}

// ForResource adapts f to a ResourceFetcher that ignores the resource scope.
func (f Fetcher) ForResource() ResourceFetcher {
	return func(ctx context.Context, opts ResourceOptions) Result {
		return f(ctx, opts.Options)
	}
}

// ForSharingLink adapts f to a SharingLinkFetcher that ignores the resource
// scope.
func (f ResourceFetcher) ForSharingLink() SharingLinkFetcher {
	return func(ctx context.Context, opts SharingLinkOptions) Result {
		return f(ctx, opts.ResourceOptions)
	}
}

// Safe converts a panic in f into an absent result.
func Safe(f Fetcher) Fetcher {
	return func(ctx context.Context, opts Options) (result Result) {
		defer func() {
			if rec := recover(); rec != nil {
				result = Failed(&PanicError{Value: rec})
			}
		}()
		return f(ctx, opts)
	}
}

// PanicError records a panic raised by a fetcher.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "token fetcher panicked: " + toString(e.Value)
}

func toString(v any) string {
	switch v := v.(type) {
	case error:
		return v.Error()
	case string:
		return v
	default:
		return "unexpected panic value"
	}
}
