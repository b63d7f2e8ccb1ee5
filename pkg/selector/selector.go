// Package selector decides which publish targets a change set touches and
// flips their build flags.
package selector

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/folio/internal/gitctx"
	"github.com/fulmenhq/folio/pkg/book"
	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/manifest"
)

// Change records one build flag transition.
type Change struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	Out   string `json:"out,omitempty"`
	Type  string `json:"type"`
	From  bool   `json:"from"`
	To    bool   `json:"to"`
}

// Summary is the outcome of ApplyFlags.
type Summary struct {
	Changed      []string `json:"changed_files"`
	Modified     []Change `json:"modified_entries"`
	AnyBuildTrue bool     `json:"any_build_true"`
}

// EffectiveMatchPath returns the repo-relative POSIX path an entry is
// matched against. With use_book_json and discoverable metadata this is
// the book's content root, otherwise the entry path resolved against the
// manifest directory. "." stands for the whole repository.
func EffectiveMatchPath(e manifest.Entry, manifestDir, repoRoot string) string {
	full := filepath.Clean(filepath.Join(manifestDir, filepath.FromSlash(e.Path)))
	if e.UseBookJSON {
		if meta, ok := book.Discover(full); ok {
			full = meta.ContentRoot()
		}
	}
	return relToRoot(full, repoRoot)
}

func relToRoot(full, repoRoot string) string {
	rel, err := filepath.Rel(repoRoot, full)
	if err != nil {
		rel = full
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return "."
	}
	if norm, ok := gitctx.NormalizePath(rel); ok {
		return norm
	}
	return rel
}

// NormalizeSourceType lowercases t and maps "auto" to the empty type.
func NormalizeSourceType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "auto" {
		return manifest.SourceAuto
	}
	return t
}

// Matches reports whether the changed path falls under matchPath.
//
//	folder: equal, or below matchPath
//	file:   equal
//	auto:   folder semantics when isDir or the last segment has no
//	        extension, else file semantics
//
// A matchPath of "" or "." matches everything.
func Matches(sourceType, matchPath string, isDir bool, changed string) bool {
	ep := strings.TrimSuffix(strings.TrimPrefix(filepath.ToSlash(matchPath), "./"), "/")
	if ep == "" || ep == "." {
		return true
	}
	cf, ok := gitctx.NormalizePath(changed)
	if !ok {
		return false
	}

	folder := false
	switch NormalizeSourceType(sourceType) {
	case manifest.SourceFolder:
		folder = true
	case manifest.SourceFile:
		folder = false
	default:
		folder = isDir || path.Ext(path.Base(ep)) == ""
	}
	if folder {
		return cf == ep || strings.HasPrefix(cf, ep+"/")
	}
	return cf == ep
}

// ApplyFlags sets build=true on every entry touched by changed. With
// resetOthers, untouched entries are set to false; otherwise they keep
// their flag. The manifest is modified in memory only.
func ApplyFlags(m *manifest.Manifest, repoRoot string, changed []string, resetOthers bool) Summary {
	sum := Summary{Changed: changed}
	if sum.Changed == nil {
		sum.Changed = []string{}
	}

	for _, e := range m.Targets(false) {
		ep := EffectiveMatchPath(e, m.Dir, repoRoot)
		isDir := false
		if info, err := os.Stat(filepath.Join(repoRoot, filepath.FromSlash(ep))); err == nil {
			isDir = info.IsDir()
		}

		hit := false
		for _, c := range changed {
			if Matches(e.SourceType, ep, isDir, c) {
				hit = true
				break
			}
		}

		next := e.Build
		if hit {
			next = true
		} else if resetOthers {
			next = false
		}
		logger.Debug("target match",
			logger.Int("index", e.Index),
			logger.String("match_path", ep),
			logger.Bool("hit", hit))

		if next != e.Build {
			m.SetBuildAt(e.Index, next)
			sum.Modified = append(sum.Modified, Change{
				Index: e.Index, Path: e.Path, Out: e.Out,
				Type: typeLabel(e.SourceType), From: e.Build, To: next,
			})
		}
		if next {
			sum.AnyBuildTrue = true
		}
	}
	if sum.Modified == nil {
		sum.Modified = []Change{}
	}
	return sum
}

func typeLabel(t string) string {
	if t = NormalizeSourceType(t); t == "" {
		return "auto"
	}
	return t
}

var (
	ErrNoCriteria = errors.New("no reset criteria given")
	ErrNoMatch    = errors.New("no publish entry matches")
	ErrAmbiguous  = errors.New("several publish entries match")
)

// Criteria selects entries for Reset. Any non-empty field matches.
type Criteria struct {
	Path  string
	Out   string
	Index *int
}

func (c Criteria) empty() bool {
	return c.Path == "" && c.Out == "" && c.Index == nil
}

// Reset clears the build flag of the entries matching c. Unless multi is
// set, more than one match is an error.
func Reset(m *manifest.Manifest, c Criteria, multi bool) ([]Change, error) {
	if c.empty() {
		return nil, ErrNoCriteria
	}
	if c.Index != nil && (*c.Index < 0 || *c.Index >= m.Len()) {
		return nil, fmt.Errorf("index %d out of range [0..%d]", *c.Index, m.Len()-1)
	}

	var hits []manifest.Entry
	for _, e := range m.Targets(false) {
		switch {
		case c.Index != nil && e.Index == *c.Index,
			c.Path != "" && e.Path == c.Path,
			c.Out != "" && e.Out == c.Out:
			hits = append(hits, e)
		}
	}
	if len(hits) == 0 {
		return nil, ErrNoMatch
	}
	if len(hits) > 1 && !multi {
		return nil, fmt.Errorf("%w: %d entries", ErrAmbiguous, len(hits))
	}

	changes := []Change{}
	for _, e := range hits {
		if m.SetBuildAt(e.Index, false) {
			changes = append(changes, Change{
				Index: e.Index, Path: e.Path, Out: e.Out,
				Type: typeLabel(e.SourceType), From: true, To: false,
			})
		}
	}
	return changes, nil
}
