package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the zerolog level used for audit entries. It sits above the
// standard levels so audit entries are written regardless of the configured
// log level.
const Level = zerolog.Level(20)

// LevelName is the name rendered for Level in log output.
const LevelName = "audit"

// Entry is the audit record for a single request. Handlers and decorators
// fill it in as the request progresses; it is written when the request ends.
type Entry struct {
	Method    string
	Path      string
	Status    int
	SourceIP  string
	UserAgent string
	RequestID string

	Error string

	Authorized     bool
	AuthSubject    string
	AuthIssuer     string
	AuthAudience   []string
	AuthExpirySecs int64

	RouteAddress string
	RouteStatus  int

	TokenTenantID  string
	TokenResource  string
	TokenRefresh   bool
	TokenOutcome   string
	TokenFromCache *bool
}

func (e *Entry) MarshalZerologObject(ev *zerolog.Event) {
	ev.Dict("request", zerolog.Dict().
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent).
		Str("requestID", e.RequestID),
	)

	auth := zerolog.Dict().Bool("authorized", e.Authorized)
	NewOptionalEvent(auth).
		Str("subject", e.AuthSubject).
		Str("issuer", e.AuthIssuer).
		Strs("audience", e.AuthAudience).
		Int64("expirySecs", e.AuthExpirySecs)
	ev.Dict("authorization", auth)

	NewOptionalEvent(nil).
		Str("address", e.RouteAddress).
		Int("status", e.RouteStatus).
		Set(ev, "route")

	token := NewOptionalEvent(nil).
		Str("outcome", e.TokenOutcome).
		Str("tenantID", e.TokenTenantID).
		Str("resource", e.TokenResource)
	if e.TokenOutcome != "" {
		token.Bool("refresh", e.TokenRefresh)
		if e.TokenFromCache != nil {
			token.Bool("fromCache", *e.TokenFromCache)
		}
	}
	token.Set(ev, "token")

	if e.Error != "" {
		ev.Str("error", e.Error)
	}
}

// Begin records the details of the incoming request.
func (e *Entry) Begin(r *http.Request) {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.UserAgent = r.UserAgent()

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	e.SourceIP = host
}

// End returns a function that writes the entry to the log from ctx. A zero
// status is recorded as 200, matching net/http's implicit status.
func (e *Entry) End(ctx context.Context) func() {
	return func() {
		if e.Status == 0 {
			e.Status = http.StatusOK
		}

		log.Ctx(ctx).WithLevel(Level).EmbedObject(e).Msg(LevelName)
	}
}

type key struct{}

// Context returns the audit entry attached to ctx, creating and attaching one
// if none is present.
func Context(ctx context.Context) (context.Context, *Entry) {
	if e, ok := ctx.Value(key{}).(*Entry); ok {
		return ctx, e
	}

	e := &Entry{}
	return context.WithValue(ctx, key{}, e), e
}

// Log returns the audit entry for ctx. Outside an audited request a detached
// entry is returned, so callers can always record fields safely.
func Log(ctx context.Context) *Entry {
	_, e := Context(ctx)
	return e
}

// Middleware writes an audit entry for every request. A panic in the wrapped
// handler is recorded on the entry and re-raised after the entry is written.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())
			entry.Begin(r)

			defer func() {
				if rec := recover(); rec != nil {
					if entry.Error != "" {
						entry.Error += "; "
					}
					entry.Error += fmt.Sprintf("panic: %v", rec)
					entry.End(ctx)()
					panic(rec)
				}
				entry.End(ctx)()
			}()

			next.ServeHTTP(&statusWriter{ResponseWriter: w, entry: entry}, r.WithContext(ctx))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	entry *Entry
}

func (w *statusWriter) WriteHeader(status int) {
	if w.entry.Status == 0 {
		w.entry.Status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.entry.Status == 0 {
		w.entry.Status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
