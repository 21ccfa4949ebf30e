// Package manifest describes a component graph in YAML and builds it into
// components exposing capabilities.
package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var ErrInvalidManifest = errors.New("invalid component manifest")

type Manifest struct {
	Components []ComponentSpec `yaml:"components"`

	// digest is the SHA256 hash of the source YAML content.
	digest string `yaml:"-"`
}

type ComponentSpec struct {
	Name string `yaml:"name"`

	// URL gives the component a Loadable capability.
	URL string `yaml:"url"`

	// Content gives the component a text HTMLRender capability.
	Content string `yaml:"content"`

	// Routes give the component a Router capability.
	Routes []RouteSpec `yaml:"routes"`
}

// RouteSpec targets either another component or a static response.
type RouteSpec struct {
	Prefix    string            `yaml:"prefix"`
	Component string            `yaml:"component"`
	Headers   map[string]string `yaml:"headers"`

	Status   int    `yaml:"status"`
	MimeType string `yaml:"mimeType"`
	Value    any    `yaml:"value"`
}

func (r RouteSpec) static() bool {
	return r.Status != 0 || r.MimeType != "" || r.Value != nil
}

// Digest returns the SHA256 hash of the source YAML content.
func (m Manifest) Digest() string {
	return m.digest
}

func (m Manifest) MarshalZerologObject(e *zerolog.Event) {
	e.Int("components", len(m.Components)).Str("digest", m.digest)
}

// Parse decodes a manifest. Unknown fields are rejected so that a typo fails
// loudly instead of silently dropping a route.
func Parse(data []byte) (Manifest, error) {
	m := Manifest{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return Manifest{}, fmt.Errorf("%w: parsing failed: %w", ErrInvalidManifest, err)
	}

	hash := sha256.Sum256(data)
	m.digest = hex.EncodeToString(hash[:])

	return m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}

	return Parse(data)
}

// ComponentNotFoundError indicates a component name is not part of the graph.
type ComponentNotFoundError struct {
	Name string
}

func (e ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component %q not found", e.Name)
}

func (e ComponentNotFoundError) Status() (int, string) {
	return http.StatusNotFound, "component not found"
}
