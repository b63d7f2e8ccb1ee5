// Package book discovers GitBook metadata (book.json) for a target.
package book

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/folio/pkg/logger"
)

// FileName is the metadata file looked up in ancestor directories.
const FileName = "book.json"

// Metadata is the subset of book.json the pipeline uses.
type Metadata struct {
	// Path of book.json; Dir is the directory containing it.
	Path string `json:"path"`
	Dir  string `json:"dir"`

	Root        string `json:"root,omitempty"`
	Title       string `json:"title,omitempty"`
	Language    string `json:"language,omitempty"`
	SummaryHint string `json:"summary,omitempty"`

	Raw map[string]interface{} `json:"-"`
}

// ContentRoot is Dir joined with root; root defaults to ".". An absolute
// root is used as is.
func (m *Metadata) ContentRoot() string {
	root := strings.TrimSpace(m.Root)
	if root == "" {
		return m.Dir
	}
	if filepath.IsAbs(root) {
		return filepath.Clean(root)
	}
	root = strings.Trim(root, `/\`)
	if root == "" {
		return m.Dir
	}
	return filepath.Join(m.Dir, filepath.FromSlash(root))
}

// Discover walks from start up to the filesystem root and parses the
// first book.json found. start may be a file, a directory or book.json
// itself. Malformed metadata yields an empty record with found=true.
func Discover(start string) (*Metadata, bool) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return nil, false
	}
	dir := abs
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		dir = filepath.Dir(abs)
	} else if err != nil {
		dir = filepath.Dir(abs)
	}

	for {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return parse(candidate), true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, false
		}
		dir = parent
	}
}

func parse(path string) *Metadata {
	m := &Metadata{Path: path, Dir: filepath.Dir(path)}
	data, err := os.ReadFile(path) // #nosec G304 -- discovered metadata file
	if err != nil {
		logger.Warn("cannot read book.json", logger.String("path", path), logger.Err(err))
		return m
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("malformed book.json, ignoring", logger.String("path", path), logger.Err(err))
		return m
	}
	m.Raw = raw
	m.Root = stringField(raw["root"])
	m.Title = stringField(raw["title"])
	m.Language = stringField(raw["language"])
	if structure, ok := raw["structure"].(map[string]interface{}); ok {
		m.SummaryHint = stringField(structure["summary"])
	}
	return m
}

func stringField(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
