package capability

import "github.com/rs/zerolog"

// Description summarises a component for hosts that only need to display or
// log what it supports.
type Description struct {
	Capabilities []ID   `json:"capabilities"`
	URL          string `json:"url,omitempty"`
}

// Describe lists the capabilities of c, including its address when it is
// loadable.
func Describe(c Component) Description {
	d := Description{Capabilities: []ID{}}
	if c == nil {
		return d
	}

	d.Capabilities = c.List()
	if l, ok := Query[*LoadableCapability](c, Loadable); ok {
		d.URL = l.String()
	}

	return d
}

func (d Description) MarshalZerologObject(e *zerolog.Event) {
	ids := make([]string, len(d.Capabilities))
	for i, id := range d.Capabilities {
		ids[i] = id.String()
	}

	e.Strs("capabilities", ids)
	if d.URL != "" {
		e.Str("url", d.URL)
	}
}
