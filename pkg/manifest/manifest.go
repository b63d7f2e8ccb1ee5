// Package manifest loads, validates and persists publish manifests
// (publish.yml). Entries are exposed as typed values; the original YAML
// document is retained so build flags can be written back without losing
// comments or key order.
package manifest

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/versioning"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound = errors.New("manifest not found")
	ErrParse    = errors.New("manifest parse error")
	ErrInvalid  = errors.New("invalid manifest")
	ErrVersion  = errors.New("unsupported manifest version")
)

// SupportedVersions is the manifest version range this build understands.
var SupportedVersions = versioning.Policy{Minimum: "0.1.0", Current: "0.1.0"}

// Source types.
const (
	SourceAuto   = ""
	SourceFile   = "file"
	SourceFolder = "folder"
)

// Asset is an extra resource search path for the typesetter.
type Asset struct {
	Path         string `json:"path"`
	Type         string `json:"type,omitempty"`
	CopyToOutput bool   `json:"copy_to_output,omitempty"`
}

// PDFOptions are per-target typesetter overrides.
type PDFOptions struct {
	PaperFormat      string `json:"paper_format,omitempty"`
	MainFont         string `json:"main_font,omitempty"`
	SansFont         string `json:"sans_font,omitempty"`
	MonoFont         string `json:"mono_font,omitempty"`
	MainFontFallback string `json:"mainfont_fallback,omitempty"`
	EmojiColor       *bool  `json:"emoji_color,omitempty"`
	Geometry         string `json:"geometry,omitempty"`
}

// Entry is one publish target with defaults filled in.
type Entry struct {
	// Index is the position in the manifest's publish list.
	Index int `json:"index"`

	Path       string `json:"path"`
	Out        string `json:"out"`
	OutDir     string `json:"out_dir"`
	OutFormat  string `json:"out_format"`
	SourceType string `json:"source_type,omitempty"`

	UseBookJSON      bool `json:"use_book_json"`
	UseSummary       bool `json:"use_summary"`
	UseDocumentTypes bool `json:"use_document_types,omitempty"`
	KeepCombined     bool `json:"keep_combined"`
	Build            bool `json:"build"`
	ResetBuildFlag   bool `json:"reset_build_flag"`

	SummaryMode           string `json:"summary_mode,omitempty"`
	SummaryOrderManifest  string `json:"summary_order_manifest,omitempty"`
	SummaryManualMarker   string `json:"summary_manual_marker,omitempty"`
	SummaryAppendicesLast bool   `json:"summary_appendices_last,omitempty"`

	// DocumentTypes is set when use_document_types is enabled.
	DocumentTypes *DocumentTypeConfig `json:"document_type_config,omitempty"`

	Assets     []Asset    `json:"assets,omitempty"`
	PDFOptions PDFOptions `json:"pdf_options"`
}

// DocumentTypeConfig tunes typed-section summaries.
type DocumentTypeConfig struct {
	SectionOrder         []string          `json:"section_order,omitempty"`
	SectionTitles        map[string]string `json:"section_titles,omitempty"`
	AutoNumberChapters   bool              `json:"auto_number_chapters"`
	AutoNumberAppendices bool              `json:"auto_number_appendices"`
}

// WantsSummary reports whether the entry asks for summary regeneration.
func (e Entry) WantsSummary() bool {
	return e.UseSummary || e.SummaryMode != ""
}

// FontSpec is a font file or directory declared at manifest level.
type FontSpec struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path"`
}

// Manifest is a loaded publish manifest.
type Manifest struct {
	Path    string
	Dir     string
	Version string
	// DefaultOutDir is used for entries without out_dir, relative to Dir.
	DefaultOutDir string
	Fonts         []FontSpec

	doc     *yaml.Node
	root    *yaml.Node
	items   []*yaml.Node
	entries []interface{}
}

// Load reads, validates and version-checks the manifest at path.
func Load(path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	data, err := os.ReadFile(abs) // #nosec G304 -- user-selected manifest
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, abs)
		}
		return nil, fmt.Errorf("read manifest %s: %w", abs, err)
	}
	m, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	m.Path = abs
	m.Dir = filepath.Dir(abs)
	m.Fonts = resolveFontDirs(m.Fonts, m.Dir)
	return m, nil
}

func parse(data []byte) (*Manifest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	m := &Manifest{DefaultOutDir: "publish", doc: &doc}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: version is missing", ErrVersion)
	}
	m.root = doc.Content[0]
	if m.root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrInvalid)
	}

	var raw map[string]interface{}
	if err := m.root.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	version, ok := raw["version"]
	if !ok || version == nil {
		return nil, fmt.Errorf("%w: version is missing", ErrVersion)
	}
	m.Version = strings.TrimSpace(fmt.Sprint(version))
	verdict, err := SupportedVersions.Check(m.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrVersion, m.Version, err)
	}
	switch verdict {
	case versioning.MajorMismatch:
		return nil, fmt.Errorf("%w: %s (expected %s)", ErrVersion, m.Version, SupportedVersions.Current)
	case versioning.TooOld:
		return nil, fmt.Errorf("%w: %s is older than %s", ErrVersion, m.Version, SupportedVersions.Minimum)
	case versioning.Newer:
		logger.Warn("manifest version is newer than this tool supports",
			logger.String("version", m.Version), logger.String("supported", SupportedVersions.Current))
	}

	verrs, err := validateDocument(raw)
	if err != nil {
		return nil, err
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, joinValidation(verrs))
	}

	publish := mappingValue(m.root, "publish")
	if publish == nil || publish.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: publish must be a list", ErrInvalid)
	}
	m.items = publish.Content
	m.entries, _ = raw["publish"].([]interface{})
	m.Fonts = parseFonts(raw["fonts"])
	return m, nil
}

// Len returns the number of raw publish entries, valid or not.
func (m *Manifest) Len() int { return len(m.items) }

// Targets returns the typed entries. Invalid entries are dropped with a
// warning. With onlyBuild, only entries with build=true are returned.
func (m *Manifest) Targets(onlyBuild bool) []Entry {
	var out []Entry
	for i, raw := range m.entries {
		e, err := m.entry(i, raw)
		if err != nil {
			logger.Warn("skipping manifest entry", logger.Int("index", i), logger.Err(err))
			continue
		}
		if onlyBuild && !e.Build {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m *Manifest) entry(index int, raw interface{}) (Entry, error) {
	verrs, err := validateEntry(raw)
	if err != nil {
		return Entry{}, err
	}
	if len(verrs) > 0 {
		return Entry{}, errors.New(joinValidation(verrs))
	}
	fields, _ := jsonify(raw).(map[string]interface{})

	e := Entry{Index: index}
	e.Path = str(fields["path"])
	e.Out = str(fields["out"])
	if e.Path == "" || e.Out == "" {
		return Entry{}, errors.New("entry needs both path and out")
	}

	e.OutFormat = strings.ToLower(str(fields["out_format"]))
	if e.OutFormat == "" {
		e.OutFormat = "pdf"
	}
	e.SourceType = strings.ToLower(str(fields["source_type"]))
	if e.SourceType == "" {
		e.SourceType = strings.ToLower(str(fields["type"]))
	}

	outDir := str(fields["out_dir"])
	if outDir == "" {
		outDir = m.DefaultOutDir
	}
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(m.Dir, outDir)
	}
	e.OutDir = filepath.Clean(outDir)

	bools := []struct {
		key string
		dst *bool
	}{
		{"use_book_json", &e.UseBookJSON},
		{"use_summary", &e.UseSummary},
		{"use_document_types", &e.UseDocumentTypes},
		{"keep_combined", &e.KeepCombined},
		{"build", &e.Build},
		{"reset_build_flag", &e.ResetBuildFlag},
		{"summary_appendices_last", &e.SummaryAppendicesLast},
	}
	for _, b := range bools {
		v, err := AsBool(fields[b.key])
		if err != nil {
			return Entry{}, fmt.Errorf("%s: %w", b.key, err)
		}
		*b.dst = v
	}

	e.SummaryMode = strings.ToLower(str(fields["summary_mode"]))
	e.SummaryOrderManifest = str(fields["summary_order_manifest"])
	e.SummaryManualMarker = str(fields["summary_manual_marker"])

	if e.UseDocumentTypes {
		dt, err := parseDocumentTypes(fields["document_type_config"])
		if err != nil {
			return Entry{}, err
		}
		e.DocumentTypes = dt
	}

	assets, err := parseAssets(fields["assets"])
	if err != nil {
		return Entry{}, err
	}
	e.Assets = assets

	opts, err := parsePDFOptions(fields["pdf_options"])
	if err != nil {
		return Entry{}, err
	}
	e.PDFOptions = opts
	return e, nil
}

func parseAssets(v interface{}) ([]Asset, error) {
	items, _ := v.([]interface{})
	var out []Asset
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, Asset{Path: s})
			}
		case map[string]interface{}:
			p := str(t["path"])
			if p == "" {
				continue
			}
			cp, err := AsBool(t["copy_to_output"])
			if err != nil {
				return nil, fmt.Errorf("assets.copy_to_output: %w", err)
			}
			out = append(out, Asset{Path: p, Type: str(t["type"]), CopyToOutput: cp})
		}
	}
	return out, nil
}

func parseDocumentTypes(v interface{}) (*DocumentTypeConfig, error) {
	cfg := &DocumentTypeConfig{AutoNumberChapters: true, AutoNumberAppendices: true}
	raw, _ := v.(map[string]interface{})
	if raw == nil {
		return cfg, nil
	}
	if order, ok := raw["section_order"].([]interface{}); ok {
		for _, s := range order {
			if name := str(s); name != "" {
				cfg.SectionOrder = append(cfg.SectionOrder, strings.ToLower(name))
			}
		}
	}
	if titles, ok := raw["section_titles"].(map[string]interface{}); ok {
		cfg.SectionTitles = make(map[string]string, len(titles))
		for k, t := range titles {
			cfg.SectionTitles[strings.ToLower(k)] = str(t)
		}
	}
	for key, dst := range map[string]*bool{
		"auto_number_chapters":   &cfg.AutoNumberChapters,
		"auto_number_appendices": &cfg.AutoNumberAppendices,
	} {
		if b, ok := raw[key]; ok && b != nil {
			val, err := AsBool(b)
			if err != nil {
				return nil, fmt.Errorf("document_type_config.%s: %w", key, err)
			}
			*dst = val
		}
	}
	return cfg, nil
}

func parsePDFOptions(v interface{}) (PDFOptions, error) {
	raw, _ := v.(map[string]interface{})
	if raw == nil {
		return PDFOptions{}, nil
	}
	opts := PDFOptions{
		PaperFormat: str(raw["paper_format"]),
		MainFont:    str(raw["main_font"]),
		SansFont:    str(raw["sans_font"]),
		MonoFont:    str(raw["mono_font"]),
		Geometry:    str(raw["geometry"]),
	}
	opts.MainFontFallback = str(raw["mainfont_fallback"])
	if opts.MainFontFallback == "" {
		opts.MainFontFallback = str(raw["main_font_fallback"])
	}
	if ec, ok := raw["emoji_color"]; ok && ec != nil {
		b, err := AsBool(ec)
		if err != nil {
			return PDFOptions{}, fmt.Errorf("pdf_options.emoji_color: %w", err)
		}
		opts.EmojiColor = &b
	}
	return opts, nil
}

func parseFonts(v interface{}) []FontSpec {
	items, _ := v.([]interface{})
	var out []FontSpec
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, FontSpec{Path: s})
			}
		case map[string]interface{}:
			if p := str(t["path"]); p != "" {
				out = append(out, FontSpec{Name: str(t["name"]), Path: p})
			}
		}
	}
	return out
}

func resolveFontDirs(fonts []FontSpec, dir string) []FontSpec {
	for i := range fonts {
		if !filepath.IsAbs(fonts[i].Path) {
			fonts[i].Path = filepath.Join(dir, fonts[i].Path)
		}
	}
	return fonts
}

func str(v interface{}) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// AsBool coerces YAML scalars into a bool. Accepted: bools, numbers
// (non-zero is true), and the strings true/1/yes/y/on and
// false/0/no/n/off/"" in any case. nil is false.
func AsBool(v interface{}) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case int64:
		return t != 0, nil
	case uint64:
		return t != 0, nil
	case float64:
		if math.IsNaN(t) {
			return false, fmt.Errorf("cannot interpret NaN as bool")
		}
		return t != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off", "":
			return false, nil
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f != 0, nil
		}
		return false, fmt.Errorf("cannot interpret %q as bool", t)
	default:
		return false, fmt.Errorf("cannot interpret %T as bool", v)
	}
}

// mappingValue returns the value node for key in a mapping node.
func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
