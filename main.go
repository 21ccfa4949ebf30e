package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/chinmina/chinmina-components/internal/audit"
	"github.com/chinmina/chinmina-components/internal/cache"
	"github.com/chinmina/chinmina-components/internal/config"
	"github.com/chinmina/chinmina-components/internal/jwt"
	"github.com/chinmina/chinmina-components/internal/manifest"
	"github.com/chinmina/chinmina-components/internal/observe"
	"github.com/chinmina/chinmina-components/internal/server"
	"github.com/chinmina/chinmina-components/internal/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/justinas/alice"
)

func configureServerRoutes(ctx context.Context, cfg config.Config, graph *manifest.Graph, hooks *server.ShutdownHooks) (http.Handler, error) {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	// The request body size is fairly limited to prevent accidental or
	// deliberate abuse. Given the current API shape, this is not configurable.
	requestLimitBytes := int64(20 << 10) // 20 KB
	requestLimiter := maxRequestSize(requestLimitBytes)

	routeMiddleware := alice.New(requestLimiter, audit.Middleware())
	standardRouteMiddleware := alice.New(requestLimiter)

	if cfg.Authorization.Enabled {
		authorizer, err := jwt.Middleware(cfg.Authorization)
		if err != nil {
			return nil, fmt.Errorf("authorizer configuration failed: %w", err)
		}
		routeMiddleware = routeMiddleware.Append(authorizer)
	} else {
		log.Warn().Msg("JWT authorization disabled: component and token routes are unauthenticated")
	}

	mux.Handle("GET /components", routeMiddleware.Then(handleListComponents(graph)))
	mux.Handle("GET /components/{name}/capabilities", routeMiddleware.Then(handleDescribeComponent(graph)))
	mux.Handle("GET /components/{name}/render", routeMiddleware.Then(handleRenderComponent(graph)))

	routeHandler := routeMiddleware.Then(handleRoute(graph))
	mux.Handle("GET /route/{path...}", routeHandler)
	mux.Handle("POST /route/{path...}", routeHandler)

	if cfg.Token.Configured() {
		requester, err := configureTokenRequester(ctx, cfg, hooks)
		if err != nil {
			return nil, err
		}
		mux.Handle("POST /token", routeMiddleware.Then(handlePostToken(requester)))
	} else {
		log.Info().Msg("no token source configured: token route disabled")
	}

	// healthchecks are not included in telemetry or authorization
	muxWithoutTelemetry.Handle("GET /healthcheck", standardRouteMiddleware.Then(handleHealthCheck()))

	return mux, nil
}

// configureTokenRequester builds one fetcher chain per token scope behind the
// token route: audit, then deduplication, then the cache, then the configured
// source. Sharing link fetches dispatch on their kind to the unscoped or the
// resource source.
func configureTokenRequester(ctx context.Context, cfg config.Config, hooks *server.ShutdownHooks) (tokenRequester, error) {
	identity, err := token.ParseIdentityType(cfg.Token.IdentityType)
	if err != nil {
		return nil, fmt.Errorf("token configuration failed: %w", err)
	}

	var source token.Fetcher
	var resourceSource token.ResourceFetcher
	if cfg.Token.StaticToken != "" {
		log.Warn().Msg("static token configured: every request receives the same token")
		source = token.Static(cfg.Token.StaticToken)
		resourceSource = source.ForResource()
	} else {
		creds := token.ClientCredentials{
			ClientID:      cfg.Token.ClientID,
			ClientSecret:  cfg.Token.ClientSecret,
			TokenURL:      cfg.Token.TokenURL,
			DefaultTenant: cfg.Token.DefaultTenant,
			Scopes:        cfg.Token.Scopes,
			HTTPClient:    http.DefaultClient,
		}
		source = token.FromTokenSource(creds.Sources())
		resourceSource = token.FromResourceTokenSource(creds.ResourceSources())
	}

	tokenCache, err := cache.NewFromConfig[token.CachedToken](ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("token cache configuration failed: %w", err)
	}
	hooks.AddCloser("token-cache", tokenCache)

	namespaced := cache.NewNamespaced(tokenCache, cfg.Token)
	cacheOpts := []token.CacheOption{
		token.WithLifetime(time.Duration(cfg.Token.LifetimeSeconds) * time.Second),
		token.WithRenewBefore(time.Duration(cfg.Token.RenewBeforeSeconds) * time.Second),
	}

	fetcher := token.Cached(namespaced, cacheOpts...)(source)
	resourceFetcher := token.CachedResource(namespaced, cacheOpts...)(resourceSource)
	sharingLinkFetcher := token.CachedSharingLink(namespaced, cacheOpts...)(token.ByKind(source, resourceSource))

	if cfg.Token.Deduplicate {
		fetcher = token.Deduplicated()(fetcher)
		resourceFetcher = token.DeduplicatedResource()(resourceFetcher)
		sharingLinkFetcher = token.DeduplicatedSharingLink()(sharingLinkFetcher)
	}

	fetchers := tokenFetchers{
		base:        token.Audited(fetcher),
		resource:    token.AuditedResource(resourceFetcher),
		sharingLink: token.AuditedSharingLink(sharingLinkFetcher),
	}
	return newTokenRequester(fetchers, identity, cfg.Token.Retries), nil
}

func loadGraph(path string) (*manifest.Graph, error) {
	var m manifest.Manifest
	if path != "" {
		loaded, err := manifest.Load(path)
		if err != nil {
			return nil, err
		}
		m = loaded
	} else {
		log.Warn().Msg("no manifest configured: serving an empty component graph")
	}

	return manifest.Build(m)
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launchServer()
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launchServer() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	graph, err := loadGraph(cfg.Server.ManifestPath)
	if err != nil {
		return fmt.Errorf("component manifest failed: %w", err)
	}

	// configure telemetry, including wrapping default HTTP client
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}

	http.DefaultTransport = observe.HTTPTransport(
		configureHTTPTransport(cfg.Server),
		cfg.Observe,
	)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
	}

	hooks := &server.ShutdownHooks{}

	// setup routing and dependencies
	handler, err := configureServerRoutes(ctx, cfg, graph, hooks)
	if err != nil {
		return fmt.Errorf("server routing configuration failed: %w", err)
	}

	// telemetry is flushed last so the shutdown of other resources is
	// recorded
	hooks.AddContext("telemetry", shutdownTelemetry)

	// start the server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	err = server.Serve(ctx, cfg.Server, srv, hooks)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		if l == audit.Level {
			return audit.LevelName
		}
		return l.String()
	}

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
