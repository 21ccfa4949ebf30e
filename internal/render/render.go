// Package render defines the capabilities a rendering adapter may query for.
// Surfaces are opaque: nothing here knows how a component is drawn.
package render

import (
	"fmt"

	"github.com/chinmina/chinmina-components/internal/capability"
	"golang.org/x/text/cases"
)

// Display controls how a component is laid out on its surface.
type Display int

const (
	DisplayBlock Display = iota
	DisplayInline
)

func (d Display) String() string {
	switch d {
	case DisplayBlock:
		return "block"
	case DisplayInline:
		return "inline"
	default:
		return "unknown"
	}
}

// ParseDisplay converts "block" or "inline" (in any case) to a Display.
func ParseDisplay(s string) (Display, error) {
	switch cases.Fold().String(s) {
	case "block":
		return DisplayBlock, nil
	case "inline":
		return DisplayInline, nil
	default:
		return 0, fmt.Errorf("invalid display %q: expected 'block' or 'inline'", s)
	}
}

// Options are supplied by the host when rendering.
type Options struct {
	Display Display
}

// Surface is the host-owned handle a component renders into.
type Surface any

// Renderer is the HTMLRender capability.
type Renderer interface {
	capability.Capability
	Render(surface Surface, opts Options) error
}

// View is a removable rendering of a component.
type View interface {
	Render(surface Surface, opts Options) error
	Remove() error
}

// Visual is the HTMLVisual capability: a renderer that can also create
// independent views.
type Visual interface {
	Renderer
	AddView(scope capability.Component) (View, error)
}

// RenderFunc adapts a function into a Renderer.
type RenderFunc func(surface Surface, opts Options) error

// FuncRenderer is a Renderer backed by a RenderFunc.
type FuncRenderer struct {
	fn RenderFunc
}

// NewRenderer creates an HTMLRender capability from fn.
func NewRenderer(fn RenderFunc) *FuncRenderer {
	return &FuncRenderer{fn: fn}
}

func (r *FuncRenderer) Identify(id capability.ID) (capability.Capability, bool) {
	if id != capability.HTMLRender {
		return nil, false
	}
	return r, true
}

func (r *FuncRenderer) Render(surface Surface, opts Options) error {
	if r.fn == nil {
		return nil
	}
	return r.fn(surface, opts)
}

// Render renders c onto surface using the best capability it exposes:
// HTMLVisual first, then HTMLRender. It reports false when c exposes neither.
// A panicking renderer is reported as an error.
func Render(c capability.Component, surface Surface, opts Options) (rendered bool, err error) {
	var renderer Renderer
	if v, ok := capability.Query[Visual](c, capability.HTMLVisual); ok {
		renderer = v
	} else if r, ok := capability.Query[Renderer](c, capability.HTMLRender); ok {
		renderer = r
	} else {
		return false, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			rendered = true
			err = fmt.Errorf("render panicked: %v", rec)
		}
	}()

	if err := renderer.Render(surface, opts); err != nil {
		return true, fmt.Errorf("render failed: %w", err)
	}

	return true, nil
}
