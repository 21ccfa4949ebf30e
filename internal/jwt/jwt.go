package jwt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/justinas/alice"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	jose "gopkg.in/go-jose/go-jose.v2"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"

	"github.com/chinmina/chinmina-components/internal/audit"
	"github.com/chinmina/chinmina-components/internal/config"
)

// Middleware returns HTTP middleware that verifies the JWT and
// enforces the validity claims. The retrieved claims are set on the request
// context and can be retrieved by calling jwt.ClaimsFromContext(ctx).
func Middleware(cfg config.AuthorizationConfig, options ...jwtmiddleware.Option) (func(http.Handler) http.Handler, error) {
	// allow for static configuration when testing
	jwksConfig := remoteJWKS
	if cfg.ConfigurationStatic != "" {
		jwksConfig = staticJWKS
	}

	issuer, keyFunc, err := jwksConfig(cfg)
	if err != nil {
		return nil, err
	}

	jwtValidator, err := validator.New(
		keyFunc,
		validator.RS256,
		issuer.String(),
		[]string{cfg.Audience},
		validator.WithAllowedClockSkew(5*time.Second),
		validator.WithCustomClaims(callerCustomClaims()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up the validator: %w", err)
	}

	// Validation failures are recorded by the error handler; the claims of a
	// valid token by the audit claims middleware.
	options = append(options, jwtmiddleware.WithErrorHandler(auditErrorHandler()))

	middleware := jwtmiddleware.New(
		registeredClaimsValidator(jwtValidator.ValidateToken),
		options...,
	)

	return alice.New(middleware.CheckJWT, auditClaimsMiddleware()).Then, nil
}

// ContextWithClaims returns a new context.Context with the provided validated
// claims added to it. This is primarily for test usage.
func ContextWithClaims(ctx context.Context, claims *validator.ValidatedClaims) context.Context {
	return context.WithValue(ctx, jwtmiddleware.ContextKey{}, claims)
}

// ContextWithCallerClaims creates a context carrying only caller claims.
func ContextWithCallerClaims(ctx context.Context, claims *CallerClaims) context.Context {
	return ContextWithClaims(ctx, &validator.ValidatedClaims{
		CustomClaims: claims,
	})
}

// ClaimsFromContext returns the validated claims from the context as set by the
// JWT middleware. This will return nil if the context data is not set.
func ClaimsFromContext(ctx context.Context) *validator.ValidatedClaims {
	claims, _ := ctx.Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	return claims
}

// CallerClaimsFromContext returns the caller claims added by the JWT
// middleware, or nil when the request was not authorized.
func CallerClaimsFromContext(ctx context.Context) *CallerClaims {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return nil
	}

	caller, _ := claims.CustomClaims.(*CallerClaims)

	return caller
}

// TenantFromContext returns the caller's tenant, or "" when unknown.
func TenantFromContext(ctx context.Context) string {
	if c := CallerClaimsFromContext(ctx); c != nil {
		return c.TenantID
	}
	return ""
}

func auditClaimsMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := audit.Log(r.Context())
			claims := ClaimsFromContext(r.Context())

			if claims == nil {
				entry.Error = "JWT claims missing from context"
			} else {
				reg := claims.RegisteredClaims
				entry.Authorized = true
				entry.AuthSubject = reg.Subject
				entry.AuthIssuer = reg.Issuer
				entry.AuthAudience = reg.Audience
				entry.AuthExpirySecs = reg.Expiry

				if caller := CallerClaimsFromContext(r.Context()); caller != nil && caller.TenantID != "" {
					trace.SpanFromContext(r.Context()).SetAttributes(
						attribute.String("caller.tenant_id", caller.TenantID),
					)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func auditErrorHandler() jwtmiddleware.ErrorHandler {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		entry := audit.Log(r.Context())
		entry.Error = fmt.Sprintf("JWT authorization failure: %s", err.Error())

		// The default error handler writes the response status, which the
		// audit middleware records.
		jwtmiddleware.DefaultErrorHandler(w, r, err)
	}
}

type KeyFunc = func(ctx context.Context) (interface{}, error)

func remoteJWKS(cfg config.AuthorizationConfig) (url.URL, KeyFunc, error) {
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return url.URL{}, nil, fmt.Errorf("failed to parse the issuer URL: %w", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	return *issuerURL, provider.KeyFunc, nil
}

func staticJWKS(cfg config.AuthorizationConfig) (url.URL, KeyFunc, error) {
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return url.URL{}, nil, fmt.Errorf("failed to parse the issuer URL: %w", err)
	}

	var keySet jose.JSONWebKeySet
	if err := json.Unmarshal([]byte(cfg.ConfigurationStatic), &keySet); err != nil {
		return url.URL{}, nil, fmt.Errorf("could not decode jwks: %w", err)
	}
	if len(keySet.Keys) == 0 {
		return url.URL{}, nil, fmt.Errorf("static jwks contains no keys")
	}

	keyFunc := func(_ context.Context) (interface{}, error) { return &keySet, nil }

	return *issuerURL, keyFunc, nil
}
