package capability

import (
	"context"
	"fmt"
	"net/url"
)

// LoadableCapability locates a component within its containing graph by a
// stable absolute URL.
type LoadableCapability struct {
	url url.URL
}

// NewLoadable creates a Loadable capability for the given absolute address.
func NewLoadable(address string) (*LoadableCapability, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid component address %q: %w", address, err)
	}

	if !u.IsAbs() {
		return nil, fmt.Errorf("component address must be absolute: %s", address)
	}

	return &LoadableCapability{url: *u}, nil
}

func (l *LoadableCapability) Identify(id ID) (Capability, bool) {
	if id != Loadable {
		return nil, false
	}
	return l, true
}

// URL returns a copy of the component's address.
func (l *LoadableCapability) URL() *url.URL {
	u := l.url
	return &u
}

func (l *LoadableCapability) String() string {
	return l.url.String()
}

// RunnableCapability is a component behaviour that can be started by a host.
type RunnableCapability struct {
	run func(ctx context.Context) error
}

// NewRunnable adapts fn into a Runnable capability.
func NewRunnable(fn func(ctx context.Context) error) *RunnableCapability {
	return &RunnableCapability{run: fn}
}

func (r *RunnableCapability) Identify(id ID) (Capability, bool) {
	if id != Runnable {
		return nil, false
	}
	return r, true
}

// Run executes the component. A runnable without a function does nothing.
func (r *RunnableCapability) Run(ctx context.Context) error {
	if r.run == nil {
		return nil
	}
	return r.run(ctx)
}
