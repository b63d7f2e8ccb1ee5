// Package typeset drives the external typesetter (pandoc with a LuaLaTeX
// engine): it resolves fonts, writes the generated LaTeX headers and
// builds and runs a deterministic command line.
package typeset

import (
	"sort"

	"github.com/fulmenhq/folio/internal/assets"
	"github.com/fulmenhq/folio/pkg/config"
)

// Defaults are the typesetter settings every job starts from.
type Defaults struct {
	LuaFilters []string
	Metadata   map[string][]string
	Variables  map[string]string
	HeaderPath string
	PDFEngine  string
	ExtraArgs  []string
}

// Keys listed here come first on the command line, in this order.
var (
	variableOrder = []string{"mainfont", "sansfont", "monofont", "geometry", "longtable", "max-list-depth"}
	metadataOrder = []string{"color", "emojifont", "emojifontoptions"}
)

// NewDefaults builds the defaults from tool configuration and the
// materialised bundled resources. bundled may be nil.
func NewDefaults(cfg config.TypesetConfig, bundled *assets.Materialized) Defaults {
	d := Defaults{
		Metadata: map[string][]string{"color": {"true"}},
		Variables: map[string]string{
			"mainfont":       cfg.Fonts.Main,
			"sansfont":       cfg.Fonts.Sans,
			"monofont":       cfg.Fonts.Mono,
			"geometry":       "margin=1in",
			"longtable":      "true",
			"max-list-depth": "9",
		},
		PDFEngine: cfg.Engine,
	}
	if bundled != nil {
		d.LuaFilters = append([]string(nil), bundled.Filters...)
		d.HeaderPath = bundled.Header
	}
	return d
}

// Clone returns a deep copy.
func (d Defaults) Clone() Defaults {
	c := d
	c.LuaFilters = append([]string(nil), d.LuaFilters...)
	c.ExtraArgs = append([]string(nil), d.ExtraArgs...)
	c.Metadata = make(map[string][]string, len(d.Metadata))
	for k, v := range d.Metadata {
		c.Metadata[k] = append([]string(nil), v...)
	}
	c.Variables = make(map[string]string, len(d.Variables))
	for k, v := range d.Variables {
		c.Variables[k] = v
	}
	return c
}

// orderedKeys returns the keys of m with the preferred ones first and the
// rest sorted.
func orderedKeys[V any](m map[string]V, preferred []string) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(preferred))
	for _, k := range preferred {
		if _, ok := m[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
