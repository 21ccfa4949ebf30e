package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chinmina/chinmina-components/internal/audit"
	"github.com/chinmina/chinmina-components/internal/capability"
	"github.com/chinmina/chinmina-components/internal/jwt"
	"github.com/chinmina/chinmina-components/internal/manifest"
	"github.com/chinmina/chinmina-components/internal/render"
	"github.com/chinmina/chinmina-components/internal/router"
	"github.com/chinmina/chinmina-components/internal/token"
	"github.com/rs/zerolog/log"
)

// HTTPStatuser provides HTTP status information for errors
type HTTPStatuser interface {
	Status() (int, string)
}

// requestIDHeader carries a caller supplied request id into the component
// graph.
const requestIDHeader = "X-Request-Id"

// forwardedHeaderDenylist names the request headers that are never passed on
// to components.
var forwardedHeaderDenylist = map[string]bool{
	"Authorization":   true,
	"Cookie":          true,
	"Content-Length":  true,
	"Accept-Encoding": true,
	"Connection":      true,
	requestIDHeader:   true,
}

// tokenRequest is the body of the token route. A site URL scopes the token to
// a resource; a type additionally makes it a sharing link token.
type tokenRequest struct {
	token.Options
	SiteURL string `json:"siteUrl,omitempty"`
	Type    string `json:"type,omitempty"`
}

// tokenRequester issues tokens for the token route.
type tokenRequester func(r *http.Request, req tokenRequest) (token.TokenResponse, error)

// tokenFetchers holds one fetcher chain per token scope.
type tokenFetchers struct {
	base        token.Fetcher
	resource    token.ResourceFetcher
	sharingLink token.SharingLinkFetcher
}

// unscopedFetchers serves every scope from f, ignoring the resource.
func unscopedFetchers(f token.Fetcher) tokenFetchers {
	resource := f.ForResource()
	return tokenFetchers{
		base:        f,
		resource:    resource,
		sharingLink: resource.ForSharingLink(),
	}
}

// scoped returns the fetcher for req's scope, bound to its site and kind.
// Invalid scopes fail with token.ErrInvalidOptions.
func (f tokenFetchers) scoped(req tokenRequest) (token.Fetcher, error) {
	switch {
	case req.Type != "":
		kind, err := token.ParseResourceKind(req.Type)
		if err != nil {
			return nil, err
		}
		scope, err := token.NewSharingLinkOptions(req.Options, req.SiteURL, kind)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, opts token.Options) token.Result {
			s := scope
			s.Options = opts
			return f.sharingLink(ctx, s)
		}, nil

	case req.SiteURL != "":
		scope, err := token.NewResourceOptions(req.Options, req.SiteURL)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, opts token.Options) token.Result {
			s := scope
			s.Options = opts
			return f.resource(ctx, s)
		}, nil

	default:
		return f.base, nil
	}
}

func handleListComponents(graph *manifest.Graph) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		writeJSON(w, http.StatusOK, struct {
			Components []string `json:"components"`
			Digest     string   `json:"digest,omitempty"`
		}{
			Components: graph.Names(),
			Digest:     graph.Digest(),
		})
	})
}

func handleDescribeComponent(graph *manifest.Graph) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		name := r.PathValue("name")
		component, ok := graph.Component(name)
		if !ok {
			status, message := errorStatus(manifest.ComponentNotFoundError{Name: name})
			writeJSONError(w, status, message)
			return
		}

		writeJSON(w, http.StatusOK, capability.Describe(component))
	})
}

// handleRoute forwards the request into the component graph. The path after
// "/route" becomes the address, and the graph response is written as JSON
// with the status code the graph chose.
func handleRoute(graph *manifest.Graph) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		// the escaped path keeps %2F and %3F inside segments intact
		address := strings.TrimPrefix(r.URL.EscapedPath(), "/route")
		if !strings.HasPrefix(address, "/") {
			address = "/" + address
		}
		if r.URL.RawQuery != "" {
			address += "?" + r.URL.RawQuery
		}

		opts := []router.RequestOption{
			router.WithMethod(r.Method),
			router.WithHeaders(forwardedHeaders(r.Header)),
		}
		if id := r.Header.Get(requestIDHeader); id != "" {
			opts = append(opts, router.WithID(id))
		}
		req := router.NewRequest(address, opts...)

		entry := audit.Log(r.Context())
		entry.RequestID = req.ID()
		entry.RouteAddress = address

		var resp router.Response
		select {
		case resp = <-router.Async(r.Context(), graph.Root(), req):
		case <-r.Context().Done():
			entry.Error = "client disconnected"
			log.Ctx(r.Context()).Info().
				Str("requestID", req.ID()).
				Str("address", address).
				Msg("client disconnected before the route completed")
			return
		}
		entry.RouteStatus = resp.StatusCode

		w.Header().Set(requestIDHeader, req.ID())
		writeJSON(w, resp.StatusCode, resp)
	})
}

func handlePostToken(requester tokenRequester) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		var body tokenRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			log.Info().Err(err).Msg("invalid token request body")
			writeJSONError(w, http.StatusBadRequest, "invalid token request")
			return
		}

		resp, err := requester(r, body)
		if err != nil {
			status, message := errorStatus(err)
			switch {
			case errors.Is(err, token.ErrInvalidOptions):
				status, message = http.StatusBadRequest, "invalid token request"
			case errors.Is(err, token.ErrNoToken):
				status, message = http.StatusServiceUnavailable, "no token available"
			}
			log.Info().Err(err).Msg("token request failed")
			writeJSONError(w, status, message)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	})
}

// newTokenRequester acquires tokens from the fetcher matching the request
// scope. Tenant scoped identities default the tenant to the caller's tenant
// claim.
func newTokenRequester(fetchers tokenFetchers, identity token.IdentityType, retries uint) tokenRequester {
	return func(r *http.Request, req tokenRequest) (token.TokenResponse, error) {
		if req.TenantID == "" && identity.TenantScoped() {
			req.TenantID = jwt.TenantFromContext(r.Context())
		}

		fetcher, err := fetchers.scoped(req)
		if err != nil {
			return token.TokenResponse{}, err
		}

		return token.AcquireResponse(r.Context(), fetcher, req.Options, token.WithRetries(retries))
	}
}

// handleRenderComponent renders a component as text. The display query
// parameter selects block (the default) or inline layout.
func handleRenderComponent(graph *manifest.Graph) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		name := r.PathValue("name")
		component, ok := graph.Component(name)
		if !ok {
			status, message := errorStatus(manifest.ComponentNotFoundError{Name: name})
			writeJSONError(w, status, message)
			return
		}

		opts := render.Options{Display: render.DisplayBlock}
		if display := r.URL.Query().Get("display"); display != "" {
			parsed, err := render.ParseDisplay(display)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			opts.Display = parsed
		}

		var surface bytes.Buffer
		rendered, err := render.Render(component, &surface, opts)
		if err != nil {
			log.Ctx(r.Context()).Info().Err(err).Str("component", name).Msg("render failed")
			writeJSONError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			return
		}
		if !rendered {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("component %s cannot be rendered", name))
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(surface.Bytes()); err != nil {
			log.Info().Msgf("failed to write response: %v\n", err)
		}
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func forwardedHeaders(header http.Header) map[string]string {
	forwarded := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) == 0 || forwardedHeaderDenylist[http.CanonicalHeaderKey(name)] {
			continue
		}
		forwarded[name] = strings.Join(values, ", ")
	}
	return forwarded
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// writeJSON writes body as JSON with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	marshalled, err := json.Marshal(body)
	if err != nil {
		log.Info().Err(err).Msg("failed to marshal response")
		writeJSONError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(marshalled); err != nil {
		// record failure to log: trying to respond to the client at this
		// point will likely fail
		log.Info().Msgf("failed to write response: %v\n", err)
	}
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSONError writes a JSON error response with the given status code and message.
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{Error: message}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// At this point the status code has been written, so we can only log
		log.Info().Msgf("failed to write JSON error response: %v", err)
	}
}

// errorStatus extracts HTTP status code and message from an error.
// Returns (StatusInternalServerError, StatusText) for errors that don't implement HTTPStatuser.
func errorStatus(err error) (int, string) {
	var statuser HTTPStatuser
	if errors.As(err, &statuser) {
		return statuser.Status()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

// drainRequestBody drains the request body by reading and discarding the contents.
// This is useful to ensure the request body is fully consumed, which is important
// for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// 5kb max: after this we'll assume the client is broken or malicious
		// and close the connection
		io.CopyN(io.Discard, r.Body, 5*1024*1024)
	}
}
