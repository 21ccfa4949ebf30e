package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// SourceFactory creates a token source for a single fetch.
type SourceFactory func(ctx context.Context, opts Options) (oauth2.TokenSource, error)

// FromTokenSource adapts an oauth2 token source to a Fetcher. A new source is
// created for each fetch, so every answer is freshly issued and Refresh is
// always honoured. Local caching is left to the Cached decorator.
func FromTokenSource(newSource SourceFactory) Fetcher {
	return func(ctx context.Context, opts Options) Result {
		src, err := newSource(ctx, opts)
		if err != nil {
			return Failed(fmt.Errorf("creating token source: %w", err))
		}

		tok, err := src.Token()
		if err != nil {
			return Failed(fmt.Errorf("requesting token: %w", err))
		}
		if tok == nil || tok.AccessToken == "" {
			return Failed(ErrEmptyToken)
		}

		return Fresh(tok.AccessToken)
	}
}

// TenantPlaceholder is replaced in ClientCredentials.TokenURL by the tenant of
// each fetch.
const TenantPlaceholder = "{tenant}"

// ClientCredentials describes an OAuth2 client credentials grant.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string

	// TokenURL may contain TenantPlaceholder.
	TokenURL      string
	DefaultTenant string
	Scopes        []string

	// HTTPClient is used for token requests when set.
	HTTPClient *http.Client
}

var ErrMissingTenant = errors.New("token URL requires a tenant but none was supplied")

// Sources creates a SourceFactory issuing client credentials tokens. The
// fetch tenant (or DefaultTenant) is substituted into the token URL, and
// claims are sent as the "claims" endpoint parameter.
func (c ClientCredentials) Sources() SourceFactory {
	return func(ctx context.Context, opts Options) (oauth2.TokenSource, error) {
		tokenURL, err := c.tokenURL(opts.TenantID)
		if err != nil {
			return nil, err
		}

		cfg := clientcredentials.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       c.Scopes,
		}
		if opts.Claims != "" {
			cfg.EndpointParams = url.Values{"claims": {opts.Claims}}
		}

		if c.HTTPClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
		}

		return cfg.TokenSource(ctx), nil
	}
}

func (c ClientCredentials) tokenURL(tenant string) (string, error) {
	if !strings.Contains(c.TokenURL, TenantPlaceholder) {
		return c.TokenURL, nil
	}

	if tenant == "" {
		tenant = c.DefaultTenant
	}
	if tenant == "" {
		return "", ErrMissingTenant
	}

	return strings.ReplaceAll(c.TokenURL, TenantPlaceholder, url.PathEscape(tenant)), nil
}

// ResourceSourceFactory creates a token source for a single resource scoped
// fetch.
type ResourceSourceFactory func(ctx context.Context, opts ResourceOptions) (oauth2.TokenSource, error)

// FromResourceTokenSource adapts a resource scoped token source to a
// ResourceFetcher, with the same semantics as FromTokenSource.
func FromResourceTokenSource(newSource ResourceSourceFactory) ResourceFetcher {
	return func(ctx context.Context, opts ResourceOptions) Result {
		fetch := FromTokenSource(func(ctx context.Context, _ Options) (oauth2.TokenSource, error) {
			return newSource(ctx, opts)
		})
		return fetch(ctx, opts.Options)
	}
}

// ResourceSources creates a ResourceSourceFactory that requests the
// "<scheme>://<host>/.default" scope of the fetch's site URL in place of
// the configured scopes.
func (c ClientCredentials) ResourceSources() ResourceSourceFactory {
	return func(ctx context.Context, opts ResourceOptions) (oauth2.TokenSource, error) {
		scope, err := DefaultResourceScope(opts.SiteURL)
		if err != nil {
			return nil, err
		}

		scoped := c
		scoped.Scopes = []string{scope}
		return scoped.Sources()(ctx, opts.Options)
	}
}

// DefaultResourceScope returns the ".default" scope for the host of siteURL.
func DefaultResourceScope(siteURL string) (string, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("%w: site URL %q: %v", ErrInvalidOptions, siteURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: site URL must be absolute: %s", ErrInvalidOptions, siteURL)
	}

	return u.Scheme + "://" + u.Host + "/.default", nil
}

// ByKind dispatches sharing link fetches on the resource kind: Graph links
// use the unscoped graph fetcher, OneDrive links the resource fetcher.
// Options with an invalid kind produce an absent result.
func ByKind(graph Fetcher, oneDrive ResourceFetcher) SharingLinkFetcher {
	return func(ctx context.Context, opts SharingLinkOptions) Result {
		if err := opts.Validate(); err != nil {
			return Failed(err)
		}

		return MatchKind(opts,
			func() Result { return graph(ctx, opts.Options) },
			func() Result { return oneDrive(ctx, opts.ResourceOptions) },
		)
	}
}
