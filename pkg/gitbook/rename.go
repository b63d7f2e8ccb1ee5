// Package gitbook renames content files and directories to the lower-case,
// dash-separated names GitBook expects.
package gitbook

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fulmenhq/folio/internal/gitctx"
	"github.com/fulmenhq/folio/pkg/logger"
)

var skipDirs = map[string]bool{
	".git":         true,
	".github":      true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"simulations":  true,
}

var (
	invalidRun = regexp.MustCompile(`[^a-z0-9.-]+`)
	dashRun    = regexp.MustCompile(`-{2,}`)
	lower      = cases.Lower(language.Und)
)

// RenameOptions controls a rename pass.
type RenameOptions struct {
	// UseGit moves tracked paths with git and leaves untracked ones alone.
	UseGit bool
	DryRun bool
}

// Move is one planned or applied rename, relative to the root.
type Move struct {
	From string `json:"from"`
	To   string `json:"to"`
	Dir  bool   `json:"dir"`
}

// Skip records a path the pass left unchanged.
type Skip struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RenameReport lists what the pass did.
type RenameReport struct {
	Root    string `json:"root"`
	DryRun  bool   `json:"dry_run"`
	Renamed []Move `json:"renamed"`
	Skipped []Skip `json:"skipped,omitempty"`
}

// NormalizeName returns the GitBook-style form of a single path segment.
// Names that normalise to nothing are returned unchanged.
func NormalizeName(name string) string {
	n := invalidRun.ReplaceAllString(lower.String(name), "-")
	n = strings.Trim(dashRun.ReplaceAllString(n, "-"), "-")
	if n == "" {
		return name
	}
	return n
}

// Rename walks root and renames every entry whose name is not in GitBook
// style. Children are handled before their parents.
func Rename(ctx context.Context, root string, opts RenameOptions) (*RenameReport, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	fs := osfs.New(abs)
	plan, err := planMoves(fs)
	if err != nil {
		return nil, err
	}

	report := &RenameReport{Root: abs, DryRun: opts.DryRun, Renamed: []Move{}}
	useGit := opts.UseGit && isRepo(abs)
	for _, mv := range plan {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if reason := skipReason(fs, abs, mv, useGit); reason != "" {
			logger.Debug("rename skipped", logger.String("path", mv.From), logger.String("reason", reason))
			report.Skipped = append(report.Skipped, Skip{Path: mv.From, Reason: reason})
			continue
		}
		if opts.DryRun {
			logger.Info("would rename", logger.String("from", mv.From), logger.String("to", mv.To))
			report.Renamed = append(report.Renamed, mv)
			continue
		}
		if err := apply(ctx, fs, abs, mv, useGit); err != nil {
			logger.Warn("rename failed", logger.String("path", mv.From), logger.Err(err))
			report.Skipped = append(report.Skipped, Skip{Path: mv.From, Reason: err.Error()})
			continue
		}
		logger.Info("renamed", logger.String("from", mv.From), logger.String("to", mv.To))
		report.Renamed = append(report.Renamed, mv)
	}
	return report, nil
}

func planMoves(fs billy.Filesystem) ([]Move, error) {
	var plan []Move
	err := util.Walk(fs, ".", func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := filepath.ToSlash(p)
		if rel == "." {
			return nil
		}
		name := fi.Name()
		if fi.IsDir() {
			if skipDirs[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
		} else if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".py") {
			return nil
		}
		target := NormalizeName(name)
		if target == name {
			return nil
		}
		plan = append(plan, Move{From: rel, To: path.Join(path.Dir(rel), target), Dir: fi.IsDir()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}
	sort.SliceStable(plan, func(i, j int) bool {
		return depth(plan[i].From) > depth(plan[j].From)
	})
	return plan, nil
}

func depth(rel string) int { return strings.Count(rel, "/") }

func skipReason(fs billy.Filesystem, root string, mv Move, useGit bool) string {
	if strings.EqualFold(mv.From, mv.To) {
		return "case-only rename"
	}
	if _, err := fs.Lstat(mv.To); err == nil {
		return "target exists: " + mv.To
	}
	if useGit && !gitctx.IsTracked(root, filepath.Join(root, filepath.FromSlash(mv.From))) {
		return "untracked"
	}
	return ""
}

func apply(ctx context.Context, fs billy.Filesystem, root string, mv Move, useGit bool) error {
	if useGit {
		from := filepath.Join(root, filepath.FromSlash(mv.From))
		to := filepath.Join(root, filepath.FromSlash(mv.To))
		err := gitctx.Move(ctx, root, from, to)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "bad source") {
			return err
		}
		logger.Debug("git mv reported bad source, renaming directly", logger.String("path", mv.From))
	}
	return fs.Rename(mv.From, mv.To)
}

func isRepo(root string) bool {
	sha, _ := gitctx.Head(root)
	return sha != ""
}
