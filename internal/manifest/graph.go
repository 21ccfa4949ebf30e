package manifest

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/chinmina/chinmina-components/internal/capability"
	"github.com/chinmina/chinmina-components/internal/render"
	"github.com/chinmina/chinmina-components/internal/router"
	"github.com/rs/zerolog/log"
)

// Graph is a built component graph. It is immutable once built and safe for
// concurrent use.
type Graph struct {
	components map[string]*capability.Registry
	names      []string
	root       *router.Mux
	digest     string
}

// Build validates m and creates a component for every entry. Route targets
// must name components of the same manifest and must not form a cycle.
func Build(m Manifest) (*Graph, error) {
	specs := make(map[string]ComponentSpec, len(m.Components))
	for _, spec := range m.Components {
		if err := validateName(spec.Name); err != nil {
			return nil, err
		}
		if _, dup := specs[spec.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate component name %q", ErrInvalidManifest, spec.Name)
		}
		specs[spec.Name] = spec
	}

	for _, spec := range m.Components {
		for _, r := range spec.Routes {
			if err := validateRoute(spec.Name, r, specs); err != nil {
				return nil, err
			}
		}
	}

	if cycle := findCycle(m.Components); cycle != nil {
		return nil, fmt.Errorf("%w: route cycle %s", ErrInvalidManifest, strings.Join(cycle, " -> "))
	}

	g := &Graph{
		components: make(map[string]*capability.Registry, len(specs)),
		root:       router.NewMux(),
		digest:     m.Digest(),
	}

	// Muxes are created before any target is mounted, so components can be
	// wired in any order.
	muxes := make(map[string]*router.Mux, len(specs))
	for _, spec := range m.Components {
		var entries []capability.Entry

		if spec.URL != "" {
			loadable, err := capability.NewLoadable(spec.URL)
			if err != nil {
				return nil, fmt.Errorf("%w: component %q: %w", ErrInvalidManifest, spec.Name, err)
			}
			entries = append(entries, capability.Provide(capability.Loadable, loadable))
		}

		if spec.Content != "" {
			entries = append(entries, capability.Provide(capability.HTMLRender, render.Text(spec.Content)))
		}

		if len(spec.Routes) > 0 {
			mux := router.NewMux()
			muxes[spec.Name] = mux
			entries = append(entries, capability.Provide(capability.Router, mux))
		}

		registry, err := capability.NewRegistry(entries...)
		if err != nil {
			return nil, fmt.Errorf("%w: component %q: %w", ErrInvalidManifest, spec.Name, err)
		}

		g.components[spec.Name] = registry
		g.names = append(g.names, spec.Name)
	}

	for _, spec := range m.Components {
		mux := muxes[spec.Name]
		for _, r := range spec.Routes {
			var err error
			opts := []router.RouteOption{router.WithRouteHeaders(r.Headers)}

			if r.Component != "" {
				err = mux.Mount(r.Prefix, g.components[r.Component], opts...)
			} else {
				err = mux.Handle(r.Prefix, router.Static(staticResponse(r)), opts...)
			}
			if err != nil {
				return nil, fmt.Errorf("%w: component %q: %w", ErrInvalidManifest, spec.Name, err)
			}
		}

		if err := g.root.Mount("/"+spec.Name, g.components[spec.Name]); err != nil {
			return nil, fmt.Errorf("%w: component %q: %w", ErrInvalidManifest, spec.Name, err)
		}
	}

	slices.Sort(g.names)

	log.Debug().
		Strs("components", g.names).
		Str("digest", g.digest).
		Msg("component graph built")

	return g, nil
}

// Component returns the named component.
func (g *Graph) Component(name string) (capability.Component, bool) {
	c, ok := g.components[name]
	if !ok {
		return nil, false
	}
	return c, true
}

// Names returns the component names in sorted order.
func (g *Graph) Names() []string {
	return slices.Clone(g.names)
}

// Root returns a router that mounts every component at "/<name>".
func (g *Graph) Root() router.Router {
	return g.root
}

// Digest identifies the manifest the graph was built from.
func (g *Graph) Digest() string {
	return g.digest
}

func staticResponse(r RouteSpec) router.Response {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}

	return router.Response{
		StatusCode: status,
		MimeType:   r.MimeType,
		Value:      r.Value,
	}
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: component name is required", ErrInvalidManifest)
	}
	if strings.ContainsAny(name, "/?# \t\n") {
		return fmt.Errorf("%w: component name %q must be a single path segment", ErrInvalidManifest, name)
	}
	return nil
}

func validateRoute(owner string, r RouteSpec, specs map[string]ComponentSpec) error {
	if r.Prefix == "" {
		return fmt.Errorf("%w: component %q: route prefix is required", ErrInvalidManifest, owner)
	}

	if r.Component != "" && r.static() {
		return fmt.Errorf("%w: component %q: route %q has both a component and a response", ErrInvalidManifest, owner, r.Prefix)
	}
	if r.Component == "" && !r.static() {
		return fmt.Errorf("%w: component %q: route %q needs a component or a response", ErrInvalidManifest, owner, r.Prefix)
	}

	if r.Component != "" {
		if _, ok := specs[r.Component]; !ok {
			return fmt.Errorf("%w: component %q: route %q: %w", ErrInvalidManifest, owner, r.Prefix, ComponentNotFoundError{Name: r.Component})
		}
	}

	if r.Status != 0 && (r.Status < 100 || r.Status > 599) {
		return fmt.Errorf("%w: component %q: route %q: invalid status %d", ErrInvalidManifest, owner, r.Prefix, r.Status)
	}

	return nil
}

// findCycle returns the components forming the first route cycle found, or
// nil when the graph is acyclic.
func findCycle(components []ComponentSpec) []string {
	edges := make(map[string][]string, len(components))
	for _, spec := range components {
		for _, r := range spec.Routes {
			if r.Component != "" {
				edges[spec.Name] = append(edges[spec.Name], r.Component)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(components))
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = visiting
		path = append(path, name)

		for _, next := range edges[name] {
			switch state[next] {
			case visiting:
				start := slices.Index(path, next)
				return append(slices.Clone(path[start:]), next)
			case unvisited:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		state[name] = visited
		return nil
	}

	for _, spec := range components {
		if state[spec.Name] == unvisited {
			if cycle := visit(spec.Name); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}
