package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/folio/pkg/config"
)

// DefaultFilenames are the manifest names probed in each directory.
var DefaultFilenames = []string{"publish.yml", "publish.yaml"}

// DetectRepoRoot returns the nearest ancestor of start (inclusive) that
// contains .git, a publish manifest or book.json. Falls back to start.
func DetectRepoRoot(start string) string {
	abs, err := filepath.Abs(start)
	if err != nil {
		return start
	}
	markers := append([]string{".git", "book.json"}, DefaultFilenames...)
	for dir := abs; ; {
		for _, name := range markers {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs
		}
		dir = parent
	}
}

// LocateOptions controls manifest resolution.
type LocateOptions struct {
	Explicit  string
	Cwd       string
	RepoRoot  string
	Filenames []string
	// Search holds directory rules tried after cwd and the repo root.
	// {repo_root} and {cwd} are expanded; relative rules resolve against
	// the repo root.
	Search []string
}

// Locate finds the manifest: explicit path, then cwd, then repo root,
// then configured search rules. The first existing candidate wins.
func Locate(opts LocateOptions) (string, error) {
	cwd := opts.Cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		cwd = wd
	}
	cwd, _ = filepath.Abs(cwd)
	root := opts.RepoRoot
	if root == "" {
		root = DetectRepoRoot(cwd)
	}
	root, _ = filepath.Abs(root)

	var attempts []string
	if opts.Explicit != "" {
		candidates := []string{opts.Explicit}
		if !filepath.IsAbs(opts.Explicit) {
			candidates = []string{filepath.Join(cwd, opts.Explicit)}
			if root != cwd {
				candidates = append(candidates, filepath.Join(root, opts.Explicit))
			}
		}
		for _, c := range candidates {
			attempts = append(attempts, c)
			if isFile(c) {
				return c, nil
			}
		}
		return "", fmt.Errorf("%w: %s (tried %s)", ErrNotFound, opts.Explicit, strings.Join(attempts, ", "))
	}

	names := opts.Filenames
	if len(names) == 0 {
		names = DefaultFilenames
	}
	dirs := []string{cwd, root}
	for _, rule := range opts.Search {
		dir := config.ExpandSearchRule(rule, root, cwd)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		dirs = append(dirs, dir)
	}
	for _, dir := range dirs {
		for _, name := range names {
			c := filepath.Join(dir, name)
			attempts = append(attempts, c)
			if isFile(c) {
				return c, nil
			}
		}
	}
	return "", fmt.Errorf("%w (tried %s)", ErrNotFound, strings.Join(attempts, ", "))
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
