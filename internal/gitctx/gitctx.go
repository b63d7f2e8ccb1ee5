// Package gitctx answers the git questions the publish pipeline asks:
// which paths changed in a revision range, whether a path is tracked,
// and how to move a tracked path. go-git is preferred; the git CLI is
// the fallback when go-git cannot open the repository.
package gitctx

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/text/unicode/norm"

	"github.com/fulmenhq/folio/pkg/logger"
)

// Change detection modes.
const (
	ModeRange    = "range"
	ModeSingle   = "single"
	ModeFullTree = "full-tree"
	ModeNone     = "none"
)

// ChangeSet is the ordered, unique list of repo-relative POSIX paths that
// changed, plus how it was computed.
type ChangeSet struct {
	Files   []string `json:"files"`
	Mode    string   `json:"mode"`
	Head    string   `json:"head"`
	Base    string   `json:"base,omitempty"`
	Backend string   `json:"backend"`
}

var missingRevisionKeywords = []string{
	"bad revision",
	"unknown revision",
	"ambiguous argument",
	"not a valid object name",
	"bad object",
	"invalid upstream",
	"invalid revision",
	"no merge base",
	"reference not found",
	"object not found",
}

// IsMissingRevision reports whether err looks like an absent or shallow
// revision rather than a broken repository.
func IsMissingRevision(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range missingRevisionKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// ChangedFiles lists paths changed between base and head. Without base,
// or when base cannot be diffed, the files introduced by head alone are
// used; if that fails too, every tracked file at head counts as changed.
func ChangedFiles(ctx context.Context, repoDir, head, base string) (*ChangeSet, error) {
	if head == "" {
		head = "HEAD"
	}
	repo, err := git.PlainOpenWithOptions(repoDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if _, lookErr := exec.LookPath("git"); lookErr != nil {
			return nil, fmt.Errorf("open repository %s: %w", repoDir, err)
		}
		logger.Debug("go-git cannot open repository, using git CLI", logger.String("dir", repoDir), logger.Err(err))
		return changedFilesCLI(ctx, repoDir, head, base), nil
	}
	return changedFilesGoGit(ctx, repo, head, base), nil
}

func logFallback(stage, rev string, err error) {
	if IsMissingRevision(err) {
		logger.Warn("revision unavailable (shallow clone?), falling back",
			logger.String("stage", stage), logger.String("rev", rev), logger.Err(err))
		return
	}
	logger.Error("git diff failed, falling back",
		logger.String("stage", stage), logger.String("rev", rev), logger.Err(err))
}

func changedFilesGoGit(ctx context.Context, repo *git.Repository, head, base string) *ChangeSet {
	cs := &ChangeSet{Head: head, Base: base, Backend: "go-git"}

	headCommit, err := resolveCommit(repo, head)
	if err != nil {
		logger.Error("cannot resolve head revision", logger.String("rev", head), logger.Err(err))
		cs.Mode = ModeNone
		cs.Files = []string{}
		return cs
	}

	if base != "" {
		files, err := diffRange(ctx, repo, base, headCommit)
		if err == nil {
			cs.Mode = ModeRange
			cs.Files = NormalizePaths(files)
			return cs
		}
		logFallback("range", base, err)
	}

	files, err := diffSingle(ctx, headCommit)
	if err == nil {
		cs.Mode = ModeSingle
		cs.Files = NormalizePaths(files)
		return cs
	}
	logFallback("single", head, err)

	files, err = treeFiles(headCommit)
	if err != nil {
		logger.Error("listing tracked files failed", logger.String("rev", head), logger.Err(err))
		cs.Mode = ModeNone
		cs.Files = []string{}
		return cs
	}
	logger.Warn("treating every tracked file as changed", logger.String("rev", head), logger.Int("files", len(files)))
	cs.Mode = ModeFullTree
	cs.Files = NormalizePaths(files)
	return cs
}

func resolveCommit(repo *git.Repository, rev string) (*object.Commit, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rev, err)
	}
	c, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", rev, err)
	}
	return c, nil
}

func diffRange(ctx context.Context, repo *git.Repository, base string, head *object.Commit) ([]string, error) {
	baseCommit, err := resolveCommit(repo, base)
	if err != nil {
		return nil, err
	}
	return diffCommits(ctx, baseCommit, head)
}

func diffSingle(ctx context.Context, head *object.Commit) ([]string, error) {
	if head.NumParents() == 0 {
		return treeFiles(head)
	}
	parent, err := head.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("parent of %s: %w", head.Hash, err)
	}
	return diffCommits(ctx, parent, head)
}

func diffCommits(ctx context.Context, from, to *object.Commit) ([]string, error) {
	fromTree, err := from.Tree()
	if err != nil {
		return nil, err
	}
	toTree, err := to.Tree()
	if err != nil {
		return nil, err
	}
	changes, err := fromTree.DiffContext(ctx, toTree)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ch := range changes {
		if ch.From.Name != "" {
			files = append(files, ch.From.Name)
		}
		if ch.To.Name != "" && ch.To.Name != ch.From.Name {
			files = append(files, ch.To.Name)
		}
	}
	return files, nil
}

func treeFiles(c *object.Commit) ([]string, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}
	var files []string
	err = tree.Files().ForEach(func(f *object.File) error {
		files = append(files, f.Name)
		return nil
	})
	return files, err
}

func changedFilesCLI(ctx context.Context, repoDir, head, base string) *ChangeSet {
	cs := &ChangeSet{Head: head, Base: base, Backend: "cli"}

	if base != "" {
		out, err := runGitContext(ctx, repoDir, "diff", "--name-only", base, head)
		if err == nil {
			cs.Mode = ModeRange
			cs.Files = NormalizePaths(splitLines(out))
			return cs
		}
		logFallback("range", base, err)
	}

	out, err := runGitContext(ctx, repoDir, "diff-tree", "--no-commit-id", "--name-only", "-r", "--root", head)
	if err == nil {
		cs.Mode = ModeSingle
		cs.Files = NormalizePaths(splitLines(out))
		return cs
	}
	logFallback("single", head, err)

	out, err = runGitContext(ctx, repoDir, "ls-tree", "--full-tree", "-r", "--name-only", head)
	if err != nil {
		logger.Error("listing tracked files failed", logger.String("rev", head), logger.Err(err))
		cs.Mode = ModeNone
		cs.Files = []string{}
		return cs
	}
	cs.Mode = ModeFullTree
	cs.Files = NormalizePaths(splitLines(out))
	logger.Warn("treating every tracked file as changed", logger.String("rev", head), logger.Int("files", len(cs.Files)))
	return cs
}

// NormalizePath converts p to a clean repo-relative POSIX path in NFC.
// It returns false for empty paths and paths escaping the repository.
func NormalizePath(p string) (string, bool) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	if p == "" {
		return "", false
	}
	p = path.Clean(p)
	if p == ".." || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/") {
		return "", false
	}
	return norm.NFC.String(p), true
}

// NormalizePaths normalizes every path, dropping invalid ones and
// duplicates while keeping first-seen order.
func NormalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		n, ok := NormalizePath(p)
		if !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Available reports whether the git CLI is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// IsTracked reports whether p (a file or directory) has entries in the
// index of the repository containing repoDir.
func IsTracked(repoDir, p string) bool {
	repo, err := git.PlainOpenWithOptions(repoDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err == nil {
		if tracked, ok := trackedGoGit(repo, p); ok {
			return tracked
		}
	}
	if !Available() {
		return false
	}
	out, err := runGitContext(context.Background(), repoDir, "ls-files", "--", p)
	return err == nil && strings.TrimSpace(out) != ""
}

func trackedGoGit(repo *git.Repository, p string) (bool, bool) {
	wt, err := repo.Worktree()
	if err != nil {
		return false, false
	}
	rel, err := relToWorktree(wt.Filesystem.Root(), p)
	if err != nil {
		return false, false
	}
	idx, err := repo.Storer.Index()
	if err != nil {
		return false, false
	}
	prefix := rel + "/"
	for _, e := range idx.Entries {
		if e.Name == rel || strings.HasPrefix(e.Name, prefix) {
			return true, true
		}
	}
	return false, true
}

func relToWorktree(root, p string) (string, error) {
	if !filepath.IsAbs(p) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		p = abs
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", err
	}
	n, ok := NormalizePath(rel)
	if !ok {
		return "", fmt.Errorf("%s is outside %s", p, root)
	}
	return n, nil
}

// Move renames a tracked path with `git mv`. Without the git CLI, files
// are moved through go-git's worktree.
func Move(ctx context.Context, repoDir, from, to string) error {
	if Available() {
		if _, err := runGitContext(ctx, repoDir, "mv", "--", from, to); err != nil {
			return fmt.Errorf("git mv %s %s: %w", from, to, err)
		}
		return nil
	}
	repo, err := git.PlainOpenWithOptions(repoDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return fmt.Errorf("open repository %s: %w", repoDir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	relFrom, err := relToWorktree(wt.Filesystem.Root(), from)
	if err != nil {
		return err
	}
	relTo, err := relToWorktree(wt.Filesystem.Root(), to)
	if err != nil {
		return err
	}
	if _, err := wt.Move(relFrom, relTo); err != nil {
		return fmt.Errorf("move %s %s: %w", relFrom, relTo, err)
	}
	return nil
}

// Head returns the commit SHA and short branch name of HEAD, or empty
// strings when repoDir is not inside a repository.
func Head(repoDir string) (sha, branch string) {
	repo, err := git.PlainOpenWithOptions(repoDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err == nil {
		if ref, err := repo.Head(); err == nil {
			return ref.Hash().String(), ref.Name().Short()
		}
		return "", ""
	}
	if !Available() {
		return "", ""
	}
	sha = runGit(repoDir, "rev-parse", "HEAD")
	branch = runGit(repoDir, "rev-parse", "--abbrev-ref", "HEAD")
	return sha, branch
}

// gitError carries git's stderr so keyword classification can see it.
type gitError struct {
	args   []string
	stderr string
	err    error
}

func (e *gitError) Error() string {
	msg := strings.TrimSpace(e.stderr)
	if msg == "" {
		msg = e.err.Error()
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.args, " "), msg)
}

func (e *gitError) Unwrap() error { return e.err }

func runGitContext(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &gitError{args: args, stderr: stderr.String(), err: err}
	}
	return stdout.String(), nil
}

func runGit(dir string, args ...string) string {
	out, _ := runGitContext(context.Background(), dir, args...)
	return strings.TrimSpace(out)
}

func splitLines(s string) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}
