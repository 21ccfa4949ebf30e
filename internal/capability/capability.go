package capability

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ID is the key under which a capability is registered and retrieved.
type ID string

// Well-known capability ids.
const (
	Loadable   ID = "Loadable"
	Runnable   ID = "Runnable"
	Router     ID = "Router"
	HTMLRender ID = "HTMLRender"
	HTMLVisual ID = "HTMLVisual"
)

func (id ID) String() string {
	return string(id)
}

// Capability is a named extension point exposed by a component. A capability
// identifies itself: Identify returns the receiver when id names it, which
// lets a caller reuse the value without a second lookup or a type assertion.
type Capability interface {
	Identify(id ID) (Capability, bool)
}

// Component exposes the capabilities it supports. Query never fails: an
// unsupported id is reported as absent.
type Component interface {
	Query(id ID) (Capability, bool)
	List() []ID
}

// ErrInvalidCapability is returned when a registry is built from entries that
// break the registry invariants.
var ErrInvalidCapability = errors.New("invalid capability registration")

// Entry is a single capability registration.
type Entry struct {
	id  ID
	cap Capability
}

// Provide creates an entry registering cap under id.
func Provide(id ID, cap Capability) Entry {
	return Entry{id: id, cap: cap}
}

// Registry is an immutable Component backed by an explicit id to capability
// map. It is safe for concurrent use.
type Registry struct {
	capabilities map[ID]Capability
}

// NewRegistry builds a registry from the supplied entries. Entries with an
// empty id, a nil capability, a duplicated id or a capability that does not
// identify as itself under its id are rejected.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{capabilities: make(map[ID]Capability, len(entries))}
	if err := r.add(entries); err != nil {
		return nil, err
	}

	return r, nil
}

// MustRegistry is NewRegistry for statically known entries. It panics on
// invalid entries.
func MustRegistry(entries ...Entry) *Registry {
	r, err := NewRegistry(entries...)
	if err != nil {
		panic(err)
	}
	return r
}

// With returns a new registry holding the receiver's capabilities and the
// additional entries. The receiver is not modified.
func (r *Registry) With(entries ...Entry) (*Registry, error) {
	derived := &Registry{capabilities: maps.Clone(r.capabilities)}
	if derived.capabilities == nil {
		derived.capabilities = make(map[ID]Capability, len(entries))
	}

	if err := derived.add(entries); err != nil {
		return nil, err
	}

	return derived, nil
}

func (r *Registry) add(entries []Entry) error {
	for _, e := range entries {
		if e.id == "" {
			return fmt.Errorf("%w: empty capability id", ErrInvalidCapability)
		}

		if e.cap == nil {
			return fmt.Errorf("%w: nil capability for %q", ErrInvalidCapability, e.id)
		}

		if _, exists := r.capabilities[e.id]; exists {
			return fmt.Errorf("%w: duplicate capability %q", ErrInvalidCapability, e.id)
		}

		if !identifiesAs(e.cap, e.id) {
			return fmt.Errorf("%w: %T does not identify as %q", ErrInvalidCapability, e.cap, e.id)
		}

		r.capabilities[e.id] = e.cap
	}

	return nil
}

// identifiesAs checks the self-identification invariant. Capabilities that
// are not comparable cannot satisfy it and are reported as invalid.
func identifiesAs(c Capability, id ID) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	self, found := c.Identify(id)
	return found && self == c
}

// Query returns the capability registered under id.
func (r *Registry) Query(id ID) (Capability, bool) {
	if r == nil {
		return nil, false
	}

	c, ok := r.capabilities[id]
	return c, ok
}

// List returns the registered ids in sorted order.
func (r *Registry) List() []ID {
	if r == nil {
		return []ID{}
	}

	return slices.Sorted(maps.Keys(r.capabilities))
}

// Has reports whether the component exposes id.
func Has(c Component, id ID) bool {
	if c == nil {
		return false
	}

	_, ok := c.Query(id)
	return ok
}

// Query looks up id on c and returns it as T. A missing capability or one of
// a different type is reported as absent.
func Query[T Capability](c Component, id ID) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}

	found, ok := c.Query(id)
	if !ok {
		return zero, false
	}

	typed, ok := found.(T)
	if !ok {
		return zero, false
	}

	return typed, true
}
