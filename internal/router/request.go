package router

import (
	"maps"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Request is an immutable addressed request. Use NewRequest to construct one;
// the With* methods return modified copies.
type Request struct {
	id      string
	address string
	method  string
	headers map[string]string
}

// RequestOption configures a request under construction.
type RequestOption func(*Request)

// WithMethod sets the request method. Methods are upper-cased.
func WithMethod(method string) RequestOption {
	return func(r *Request) {
		r.method = strings.ToUpper(method)
	}
}

// WithHeader sets a single header. Header names are case-insensitive.
func WithHeader(name, value string) RequestOption {
	return func(r *Request) {
		r.headers[canonicalHeader(name)] = value
	}
}

// WithHeaders sets all the supplied headers.
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *Request) {
		for name, value := range headers {
			r.headers[canonicalHeader(name)] = value
		}
	}
}

// WithID sets the request id. When not supplied, a random id is generated.
func WithID(id string) RequestOption {
	return func(r *Request) {
		r.id = id
	}
}

// NewRequest creates a request for address.
func NewRequest(address string, opts ...RequestOption) Request {
	r := Request{
		address: address,
		method:  http.MethodGet,
		headers: map[string]string{},
	}

	for _, opt := range opts {
		opt(&r)
	}

	if r.id == "" {
		r.id = uuid.NewString()
	}

	return r
}

// ID identifies the request across routing hops.
func (r Request) ID() string {
	return r.id
}

// Address returns the address as supplied.
func (r Request) Address() string {
	return r.address
}

// Method returns the request method, GET unless otherwise specified.
func (r Request) Method() string {
	if r.method == "" {
		return http.MethodGet
	}
	return r.method
}

// Path returns the decoded path portion of the address, always rooted at
// "/".
func (r Request) Path() string {
	path := r.EscapedPath()
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	return path
}

// EscapedPath returns the path portion of the address as supplied, with its
// percent-escapes intact, always rooted at "/". Routing uses the escaped form
// so an escaped "/" or "?" stays part of its segment.
func (r Request) EscapedPath() string {
	path, _, _ := strings.Cut(r.address, "?")
	path, _, _ = strings.Cut(path, "#")
	if u, err := url.Parse(r.address); err == nil && u.IsAbs() {
		path = u.EscapedPath()
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return path
}

// Query returns the query portion of the address, without the "?".
func (r Request) Query() string {
	_, query, _ := strings.Cut(r.address, "?")
	return query
}

// Header returns the value of the named header, or "" if not set.
func (r Request) Header(name string) string {
	return r.headers[canonicalHeader(name)]
}

// Headers returns a copy of the request headers.
func (r Request) Headers() map[string]string {
	headers := maps.Clone(r.headers)
	if headers == nil {
		headers = map[string]string{}
	}
	return headers
}

// WithAddress returns a copy of the request with a new address. The id,
// method and headers are preserved.
func (r Request) WithAddress(address string) Request {
	r.address = address
	r.headers = maps.Clone(r.headers)
	return r
}

// WithDefaultHeaders returns a copy of the request carrying the supplied
// headers. Headers already present on the request take precedence, so a hop
// can add context but never override what its caller sent.
func (r Request) WithDefaultHeaders(headers map[string]string) Request {
	merged := maps.Clone(r.headers)
	if merged == nil {
		merged = make(map[string]string, len(headers))
	}

	for name, value := range headers {
		name = canonicalHeader(name)
		if _, exists := merged[name]; !exists {
			merged[name] = value
		}
	}

	r.headers = merged
	return r
}

func (r Request) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", r.id).
		Str("method", r.Method()).
		Str("address", r.address)
}

func canonicalHeader(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}
