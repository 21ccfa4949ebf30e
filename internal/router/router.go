package router

import (
	"context"
	"fmt"

	"github.com/chinmina/chinmina-components/internal/capability"
	"github.com/rs/zerolog/log"
)

// Router is the capability that resolves an addressed request into a
// response. Implementations must always return a response: failures,
// including routing misses, are reported through the status code.
type Router interface {
	capability.Capability
	Request(ctx context.Context, req Request) Response
}

// Handler resolves a request at a leaf of the routing graph.
type Handler func(ctx context.Context, req Request) Response

// HandlerRouter adapts a Handler into a Router capability.
type HandlerRouter struct {
	handler Handler
}

// New creates a router capability that answers every request with h.
func New(h Handler) *HandlerRouter {
	return &HandlerRouter{handler: h}
}

func (h *HandlerRouter) Identify(id capability.ID) (capability.Capability, bool) {
	if id != capability.Router {
		return nil, false
	}
	return h, true
}

func (h *HandlerRouter) Request(ctx context.Context, req Request) Response {
	if h.handler == nil {
		return NotFound(req)
	}
	return h.handler(ctx, req)
}

// Static returns a handler that always answers with the given response.
func Static(resp Response) Handler {
	return func(context.Context, Request) Response {
		return resp
	}
}

// Forward sends req to the router capability of c. A component without a
// router capability answers with a routing miss.
func Forward(ctx context.Context, c capability.Component, req Request) Response {
	r, ok := capability.Query[Router](c, capability.Router)
	if !ok {
		log.Ctx(ctx).Debug().
			Object("request", req).
			Msg("target component has no router capability")
		return NotFound(req)
	}

	return Call(ctx, r, req)
}

// Call invokes r and converts a panic in the target into a failure response.
// The call is detached from cancellation of ctx: once started, a request
// runs to completion.
func Call(ctx context.Context, r Router, req Request) (resp Response) {
	ctx = context.WithoutCancel(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			log.Ctx(ctx).Warn().
				Object("request", req).
				Interface("panic", rec).
				Msg("router target panicked, recovered")
			resp = Failure(req, fmt.Errorf("target panicked: %v", rec))
		}
	}()

	if r == nil {
		return NotFound(req)
	}

	return r.Request(ctx, req)
}

// Async starts the request in the background. The returned channel receives
// exactly one response and is then closed.
func Async(ctx context.Context, r Router, req Request) <-chan Response {
	result := make(chan Response, 1)

	go func() {
		defer close(result)
		result <- Call(ctx, r, req)
	}()

	return result
}
