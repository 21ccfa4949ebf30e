package token

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// TokenResponse is the structured outcome of a token fetch.
type TokenResponse struct {
	Token string `json:"token"`

	// FromCache reports whether the token was served from a cache. Nil means
	// the fetcher did not say, which is not the same as false.
	FromCache *bool `json:"fromCache,omitempty"`
}

type shape int

const (
	shapeAbsent shape = iota
	shapeLegacy
	shapeStructured
)

// Result is the outcome of a fetch: a bare legacy token string, a structured
// TokenResponse, or absence. The zero Result is absence.
type Result struct {
	shape     shape
	token     string
	fromCache *bool
	err       error
}

// Absent signals that no token could be obtained.
func Absent() Result {
	return Result{}
}

// Failed signals absence, keeping err for diagnostics. The error does not
// classify the failure.
func Failed(err error) Result {
	return Result{err: err}
}

// Legacy wraps a bare token string. Cache origin is unknown.
func Legacy(token string) Result {
	return Result{shape: shapeLegacy, token: token}
}

// Structured wraps a TokenResponse.
func Structured(r TokenResponse) Result {
	var fromCache *bool
	if r.FromCache != nil {
		v := *r.FromCache
		fromCache = &v
	}
	return Result{shape: shapeStructured, token: r.Token, fromCache: fromCache}
}

// Fresh is a structured result for a token that was just issued.
func Fresh(token string) Result {
	return Structured(TokenResponse{Token: token, FromCache: boolPtr(false)})
}

// FromCacheResult is a structured result for a token served from a cache.
func FromCacheResult(token string) Result {
	return Structured(TokenResponse{Token: token, FromCache: boolPtr(true)})
}

func boolPtr(b bool) *bool {
	return &b
}

// IsAbsent reports whether r signals that no token was obtained.
func (r Result) IsAbsent() bool {
	return r.shape == shapeAbsent
}

// Err returns the diagnostic cause of an absent result, if one was recorded.
func (r Result) Err() error {
	if r.shape != shapeAbsent {
		return nil
	}
	return r.err
}

// Response converts r to a TokenResponse. Absent results convert to false.
func (r Result) Response() (TokenResponse, bool) {
	if r.shape == shapeAbsent {
		return TokenResponse{}, false
	}

	resp := TokenResponse{Token: r.token}
	if r.fromCache != nil {
		v := *r.fromCache
		resp.FromCache = &v
	}
	return resp, true
}

// FromResponse extracts the token from r. It is total: absence (including
// the zero Result) yields false, a legacy string yields itself and a
// structured response yields its token field.
func FromResponse(r Result) (string, bool) {
	switch r.shape {
	case shapeLegacy, shapeStructured:
		return r.token, true
	default:
		return "", false
	}
}

// IsFromCache extracts the cache origin from r. known is false for absence,
// legacy strings and structured responses that do not report an origin.
func IsFromCache(r Result) (fromCache bool, known bool) {
	if r.shape != shapeStructured || r.fromCache == nil {
		return false, false
	}
	return *r.fromCache, true
}

// Outcome classifies r for logs and metrics.
func (r Result) Outcome() string {
	if r.IsAbsent() {
		return "absent"
	}

	fromCache, known := IsFromCache(r)
	switch {
	case !known:
		return "unknown"
	case fromCache:
		return "cached"
	default:
		return "fresh"
	}
}

func (r Result) String() string {
	switch r.shape {
	case shapeLegacy:
		return "legacy token"
	case shapeStructured:
		return fmt.Sprintf("structured token (%s)", r.Outcome())
	default:
		if r.err != nil {
			return fmt.Sprintf("absent: %v", r.err)
		}
		return "absent"
	}
}

// MarshalJSON writes the wire shape of r: null, a string or a TokenResponse
// object.
func (r Result) MarshalJSON() ([]byte, error) {
	switch r.shape {
	case shapeLegacy:
		return json.Marshal(r.token)
	case shapeStructured:
		resp, _ := r.Response()
		return json.Marshal(resp)
	default:
		return []byte("null"), nil
	}
}

// ErrMalformedResult is returned by UnmarshalJSON when the input is none of
// the three result shapes.
var ErrMalformedResult = errors.New("malformed token result")

// UnmarshalJSON reads null, a bare string or a TokenResponse object.
func (r *Result) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*r = Absent()
		return nil

	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResult, err)
		}
		*r = Legacy(s)
		return nil

	case data[0] == '{':
		var resp struct {
			Token     *string `json:"token"`
			FromCache *bool   `json:"fromCache"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResult, err)
		}
		if resp.Token == nil {
			return fmt.Errorf("%w: object has no token field", ErrMalformedResult)
		}
		*r = Structured(TokenResponse{Token: *resp.Token, FromCache: resp.FromCache})
		return nil

	default:
		return fmt.Errorf("%w: unexpected JSON value %.20q", ErrMalformedResult, data)
	}
}

// ParseResult reads a wire result. Input that is none of the three shapes is
// treated as absence carrying the parse error, so ParseResult never fails.
func ParseResult(data []byte) Result {
	var r Result
	if err := r.UnmarshalJSON(data); err != nil {
		return Failed(err)
	}
	return r
}
