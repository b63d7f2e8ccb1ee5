// Package discovery resolves a publish target into the ordered list of
// Markdown files that make up the document.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fulmenhq/folio/pkg/book"
	"github.com/fulmenhq/folio/pkg/ignore"
	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/manifest"
	"github.com/fulmenhq/folio/pkg/summary"
)

// ErrNoMarkdown is returned when a folder target holds no Markdown files.
var ErrNoMarkdown = errors.New("no markdown files")

// markdownGlob matches every Markdown file below a content root.
const markdownGlob = "**/*.{md,markdown,MD,Markdown}"

// summaryNames are tried in order when no explicit summary is configured.
var summaryNames = []string{"SUMMARY.md", "summary.md"}

// Request describes one target to resolve.
type Request struct {
	// Path is the entry path; relative paths resolve against ManifestDir.
	Path        string
	ManifestDir string
	SourceType  string
	UseBookJSON bool
	UseSummary  bool
	// Ignore filters the recursive fallback. Nil skips only .git and
	// node_modules.
	Ignore *ignore.Matcher
}

// Result is the resolved content of a target.
type Result struct {
	ContentRoot string         `json:"content_root"`
	SummaryPath string         `json:"summary_path,omitempty"`
	Files       []string       `json:"files"`
	SourceType  string         `json:"source_type"`
	Book        *book.Metadata `json:"book,omitempty"`
}

// Resolve returns the absolute entry path.
func (r Request) Resolve() string {
	p := filepath.FromSlash(r.Path)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	base := r.ManifestDir
	if base == "" {
		base, _ = os.Getwd()
	}
	return filepath.Clean(filepath.Join(base, p))
}

// SourceType normalises st to file or folder, inferring it from the
// filesystem when unset.
func SourceType(st, abs string) string {
	switch strings.ToLower(strings.TrimSpace(st)) {
	case manifest.SourceFile:
		return manifest.SourceFile
	case manifest.SourceFolder:
		return manifest.SourceFolder
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return manifest.SourceFile
	}
	return manifest.SourceFolder
}

// Discover resolves req following explicit configuration first
// (book.json, summary), then convention, then a recursive scan.
func Discover(req Request) (*Result, error) {
	abs := req.Resolve()
	st := SourceType(req.SourceType, abs)

	if st == manifest.SourceFile {
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("source file %s: %w", abs, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("source %s is a directory, not a file", abs)
		}
		return &Result{ContentRoot: filepath.Dir(abs), Files: []string{abs}, SourceType: st}, nil
	}

	res := &Result{SourceType: st}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		res.ContentRoot = abs
	} else {
		res.ContentRoot = filepath.Clean(req.ManifestDir)
	}

	if req.UseBookJSON {
		if meta, ok := book.Discover(abs); ok {
			res.Book = meta
			res.ContentRoot = meta.ContentRoot()
			logger.Debug("content root from book.json",
				logger.String("book", meta.Path), logger.String("root", res.ContentRoot))
		}
	}

	if req.UseSummary {
		hint := ""
		if res.Book != nil {
			hint = res.Book.SummaryHint
		}
		if sp := FindSummary(res.ContentRoot, hint); sp != "" {
			files := summary.ParseLinks(sp, res.ContentRoot)
			if len(files) > 0 {
				res.SummaryPath = sp
				res.Files = files
				logger.Info("using summary for content order",
					logger.String("summary", sp), logger.Int("files", len(files)))
				return res, nil
			}
			logger.Warn("summary lists no existing files, falling back to recursive scan", logger.String("summary", sp))
		}
	}

	files, err := Collect(res.ContentRoot, req.Ignore)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoMarkdown, res.ContentRoot)
	}
	res.Files = files
	return res, nil
}

// FindSummary returns the summary file under root: the hint if it exists,
// then SUMMARY.md, summary.md, then any case variant of summary.md.
func FindSummary(root, hint string) string {
	if hint = strings.TrimSpace(hint); hint != "" {
		if p := existingFile(filepath.Join(root, filepath.FromSlash(hint))); p != "" {
			return p
		}
	}
	for _, name := range summaryNames {
		if p := existingFile(filepath.Join(root, name)); p != "" {
			return p
		}
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), "summary.md") {
			return filepath.Join(root, e.Name())
		}
	}
	return ""
}

func existingFile(p string) string {
	if info, err := os.Stat(p); err == nil && !info.IsDir() {
		return p
	}
	return ""
}

// Collect returns every Markdown file below root. README.md at the top
// comes first; the rest sort lexicographically by relative path.
func Collect(root string, m *ignore.Matcher) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		logger.Warn("content root does not exist", logger.String("root", root))
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(root), markdownGlob, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	seen := map[string]bool{}
	var rels []string
	for _, rel := range matches {
		if seen[rel] || skipped(rel) {
			continue
		}
		if m != nil && m.IsIgnored(filepath.Join(root, filepath.FromSlash(rel))) {
			continue
		}
		seen[rel] = true
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	files := make([]string, 0, len(rels))
	for _, rel := range rels {
		if rel == "README.md" {
			files = append([]string{filepath.Join(root, rel)}, files...)
			continue
		}
		files = append(files, filepath.Join(root, filepath.FromSlash(rel)))
	}
	return files, nil
}

func skipped(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == ".git" || part == "node_modules" {
			return true
		}
	}
	return false
}
