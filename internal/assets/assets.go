package assets

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed embedded
var embedded embed.FS

// Bundled Lua filters, in the order they are passed to the typesetter.
var LuaFilters = []string{
	"image-path-resolver.lua",
	"emoji-span.lua",
	"latex-emoji.lua",
}

// DefaultHeader is the bundled typesetter header file name.
const DefaultHeader = "folio.sty"

const (
	ManifestSchemaName = "publish-manifest.schema.json"
	EntrySchemaName    = "publish-entry.schema.json"

	FontHeaderTemplate  = "font-header.tex.hbs"
	TitleHeaderTemplate = "title-header.tex.hbs"
)

func sub(dir string) fs.FS {
	if s, err := fs.Sub(embedded, "embedded/"+dir); err == nil {
		return s
	}
	return embedded
}

func GetFiltersFS() fs.FS   { return sub("filters") }
func GetTeXFS() fs.FS       { return sub("tex") }
func GetSchemasFS() fs.FS   { return sub("schemas") }
func GetTemplatesFS() fs.FS { return sub("templates") }

// GetSchema returns an embedded JSON schema by file name.
func GetSchema(name string) ([]byte, error) {
	return fs.ReadFile(GetSchemasFS(), name)
}

// GetTemplate returns an embedded header template by file name.
func GetTemplate(name string) (string, error) {
	data, err := fs.ReadFile(GetTemplatesFS(), name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Materialized holds on-disk paths of bundled typesetter resources.
type Materialized struct {
	Header  string
	Filters []string
}

// Materialize writes the bundled header and Lua filters below dir, since
// the typesetter only accepts them as files. Existing files are overwritten.
func Materialize(dir string) (*Materialized, error) {
	if err := os.MkdirAll(filepath.Join(dir, "filters"), 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}

	out := &Materialized{}
	sty, err := fs.ReadFile(GetTeXFS(), DefaultHeader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", DefaultHeader, err)
	}
	out.Header = filepath.Join(dir, DefaultHeader)
	if err := os.WriteFile(out.Header, sty, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", DefaultHeader, err)
	}

	for _, name := range LuaFilters {
		data, err := fs.ReadFile(GetFiltersFS(), name)
		if err != nil {
			return nil, fmt.Errorf("read filter %s: %w", name, err)
		}
		p := filepath.Join(dir, "filters", name)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return nil, fmt.Errorf("write filter %s: %w", name, err)
		}
		out.Filters = append(out.Filters, p)
	}
	return out, nil
}
