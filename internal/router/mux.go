package router

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/chinmina/chinmina-components/internal/capability"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/chinmina/chinmina-components/internal/router"

// RouteOption configures a single route.
type RouteOption func(*route)

// WithRouteHeaders adds headers to requests forwarded along the route. Headers
// supplied by the caller are never overridden.
func WithRouteHeaders(headers map[string]string) RouteOption {
	return func(r *route) {
		for name, value := range headers {
			r.headers[canonicalHeader(name)] = value
		}
	}
}

type route struct {
	prefix    string
	segments  []string
	component capability.Component
	handler   Handler
	headers   map[string]string
}

// Mux routes requests by path prefix. Prefixes are matched segment by
// segment, the longest matching prefix wins, and the matched prefix is
// stripped before the request is passed on. Mounting a component forwards to
// that component's router capability, which allows routers to be chained to
// any depth.
type Mux struct {
	mu     sync.RWMutex
	routes []*route
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{}
}

func (m *Mux) Identify(id capability.ID) (capability.Capability, bool) {
	if id != capability.Router {
		return nil, false
	}
	return m, true
}

// Mount forwards requests under prefix to the router capability of c.
func (m *Mux) Mount(prefix string, c capability.Component, opts ...RouteOption) error {
	if c == nil {
		return fmt.Errorf("mount %q: nil component", prefix)
	}

	return m.add(&route{component: c}, prefix, opts)
}

// Handle answers requests under prefix with h.
func (m *Mux) Handle(prefix string, h Handler, opts ...RouteOption) error {
	if h == nil {
		return fmt.Errorf("handle %q: nil handler", prefix)
	}

	return m.add(&route{handler: h}, prefix, opts)
}

func (m *Mux) add(r *route, prefix string, opts []RouteOption) error {
	segments, err := splitPrefix(prefix)
	if err != nil {
		return err
	}

	r.prefix = "/" + strings.Join(segments, "/")
	r.segments = segments
	r.headers = map[string]string{}

	for _, opt := range opts {
		opt(r)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.routes {
		if existing.prefix == r.prefix {
			return fmt.Errorf("route %q already registered", r.prefix)
		}
	}

	m.routes = append(m.routes, r)

	// longest prefixes first, so the first match is the most specific
	slices.SortStableFunc(m.routes, func(a, b *route) int {
		return len(b.segments) - len(a.segments)
	})

	return nil
}

// Prefixes returns the registered route prefixes.
func (m *Mux) Prefixes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefixes := make([]string, 0, len(m.routes))
	for _, r := range m.routes {
		prefixes = append(prefixes, r.prefix)
	}
	slices.Sort(prefixes)

	return prefixes
}

// Request routes req to the most specific matching route. A request that
// matches no route resolves with a not found response.
func (m *Mux) Request(ctx context.Context, req Request) Response {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "router.request")
	defer span.End()

	span.SetAttributes(
		attribute.String("router.request_id", req.ID()),
		attribute.String("router.address", req.Address()),
	)

	resp := m.dispatch(ctx, req)

	span.SetAttributes(attribute.Int("router.status_code", resp.StatusCode))
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, "routing target failed")
	}

	return resp
}

func (m *Mux) dispatch(ctx context.Context, req Request) Response {
	logger := log.Ctx(ctx).With().Object("request", req).Logger()

	r, remainder, ok := m.match(req.EscapedPath())
	if !ok {
		logger.Debug().Msg("no route matched")
		return NotFound(req)
	}

	forwarded := req.WithAddress(withQuery(remainder, req.Query()))
	if len(r.headers) > 0 {
		forwarded = forwarded.WithDefaultHeaders(r.headers)
	}

	logger.Debug().
		Str("prefix", r.prefix).
		Str("forwarded", forwarded.Address()).
		Msg("route matched")

	if r.component != nil {
		return Forward(ctx, r.component, forwarded)
	}

	return Call(ctx, New(r.handler), forwarded)
}

// match finds the route for an escaped path. Segments are compared decoded,
// and the remainder is returned still escaped.
func (m *Mux) match(escapedPath string) (*route, string, bool) {
	escaped := splitPath(escapedPath)
	decoded := make([]string, len(escaped))
	for i, s := range escaped {
		decoded[i] = s
		if d, err := url.PathUnescape(s); err == nil {
			decoded[i] = d
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.routes {
		if len(r.segments) > len(decoded) {
			continue
		}

		if !slices.Equal(r.segments, decoded[:len(r.segments)]) {
			continue
		}

		return r, "/" + strings.Join(escaped[len(r.segments):], "/"), true
	}

	return nil, "", false
}

var errInvalidPrefix = errors.New("invalid route prefix")

func splitPrefix(prefix string) ([]string, error) {
	if !strings.HasPrefix(prefix, "/") {
		return nil, fmt.Errorf("%w %q: must start with /", errInvalidPrefix, prefix)
	}

	if strings.ContainsAny(prefix, "?#") {
		return nil, fmt.Errorf("%w %q: must be a plain path", errInvalidPrefix, prefix)
	}

	return splitPath(prefix), nil
}

func splitPath(path string) []string {
	segments := []string{}
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func withQuery(path, query string) string {
	if query == "" {
		return path
	}
	return path + "?" + query
}
