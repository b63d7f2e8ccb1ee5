package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/folio/internal/gitctx"
	"github.com/fulmenhq/folio/pkg/book"
	"github.com/fulmenhq/folio/pkg/config"
	"github.com/fulmenhq/folio/pkg/discovery"
	"github.com/fulmenhq/folio/pkg/gitbook"
	"github.com/fulmenhq/folio/pkg/ignore"
	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/manifest"
	"github.com/fulmenhq/folio/pkg/selector"
	"github.com/fulmenhq/folio/pkg/summary"
	"github.com/fulmenhq/folio/pkg/typeset"
	"github.com/fulmenhq/folio/pkg/work"
	"github.com/go-git/go-billy/v5/osfs"
)

// CIOutputEnv names the file CI reads step outputs from.
const CIOutputEnv = "GITHUB_OUTPUT"

// ModeExplicit marks a change set supplied through Options.Changed.
const ModeExplicit = "explicit"

// run holds the state of one Run call.
type run struct {
	opts     Options
	env      *Environment
	repoRoot string
	m        *manifest.Manifest
	report   *Report
}

// Run executes the pipeline. The report is returned even on error when
// the manifest was loaded, so callers can still print it.
func Run(ctx context.Context, opts Options) (*Report, error) {
	env := opts.Env
	if env == nil {
		var err error
		env, err = NewEnvironment(nil)
		if err != nil {
			return nil, err
		}
		defer env.Close()
	}
	r := &run{opts: opts, env: env, report: newReport()}
	r.report.DryRun = opts.DryRun

	if err := r.loadManifest(); err != nil {
		return nil, err
	}

	if opts.SetFlags {
		if err := r.setFlags(ctx); err != nil {
			return r.report, err
		}
	}

	targets := r.m.Targets(true)
	r.report.AnyBuildTrue = len(targets) > 0
	if len(targets) == 0 {
		logger.Info("no publish entry has build=true")
		r.finish()
		return r.report, ErrNothingToPublish
	}

	if opts.GitbookRename {
		r.rename(ctx, targets)
	}
	if opts.GitbookSummary {
		r.summaries(targets)
	}

	if !opts.Publish {
		logger.Info("publishing disabled, skipping typesetter pass", logger.Int("targets", len(targets)))
		r.report.PublishSkipped = true
		r.finish()
		return r.report, nil
	}

	if !opts.DryRun && env.Config.Typeset.Fonts.RequireColorEmoji {
		if _, _, err := typeset.SelectEmojiFont(env.Fonts, true, true); err != nil {
			r.finish()
			return r.report, err
		}
	}

	err := r.build(ctx, targets)
	r.finish()
	return r.report, err
}

// SetFlags runs only manifest loading and change-driven flag setting.
// opts.Env needs Config, and Cwd when Root is empty; no typesetter is
// used.
func SetFlags(ctx context.Context, opts Options) (*Report, error) {
	env := opts.Env
	if env == nil {
		env = &Environment{Config: config.Default(), Getenv: os.Getenv}
	}
	r := &run{opts: opts, env: env, report: newReport()}
	r.report.DryRun = opts.DryRun
	if err := r.loadManifest(); err != nil {
		return nil, err
	}
	if err := r.setFlags(ctx); err != nil {
		return r.report, err
	}
	return r.report, nil
}

func (r *run) loadManifest() error {
	cwd := r.env.Cwd
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	root := r.opts.Root
	if root == "" {
		root = manifest.DetectRepoRoot(cwd)
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	r.repoRoot = root

	cfg := r.env.Config
	path, err := manifest.Locate(manifest.LocateOptions{
		Explicit:  r.opts.Manifest,
		Cwd:       cwd,
		RepoRoot:  root,
		Filenames: cfg.Manifest.Filenames,
		Search:    cfg.Manifest.Search,
	})
	if err != nil {
		return err
	}
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	if r.opts.PublishDir != "" {
		m.DefaultOutDir = r.opts.PublishDir
	} else if cfg.Publish.Dir != "" {
		m.DefaultOutDir = cfg.Publish.Dir
	}
	if sf, ok := r.env.Fonts.(*typeset.SystemFonts); ok {
		for _, f := range m.Fonts {
			sf.Declare(f.Name, f.Path)
		}
	}
	r.m = m
	r.report.Manifest = r.display(path)
	logger.Info("manifest loaded", logger.String("path", path), logger.Int("entries", m.Len()))
	return nil
}

func (r *run) setFlags(ctx context.Context) error {
	cs := &gitctx.ChangeSet{Files: gitctx.NormalizePaths(r.opts.Changed), Mode: ModeExplicit, Backend: "caller"}
	if r.opts.Changed == nil {
		var err error
		cs, err = gitctx.ChangedFiles(ctx, r.repoRoot, r.opts.Commit, r.opts.Base)
		if err != nil {
			return fmt.Errorf("detect changes: %w", err)
		}
	}
	logger.Info("changed files", logger.String("mode", cs.Mode), logger.Int("count", len(cs.Files)))
	sum := selector.ApplyFlags(r.m, r.repoRoot, cs.Files, r.opts.ResetOthers)
	r.report.Changed = cs
	r.report.Modified = sum.Modified
	r.report.AnyBuildTrue = sum.AnyBuildTrue

	if len(sum.Modified) > 0 {
		if r.opts.DryRun {
			logger.Info("dry run, manifest not written", logger.Int("modified", len(sum.Modified)))
		} else if err := r.m.Save(); err != nil {
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
	}
	if err := appendOutputs(r.env.getenv(CIOutputEnv), r.report.flagOutputs()); err != nil {
		logger.Warn("failed to write CI outputs", logger.Err(err))
	}
	return nil
}

// contentRoot resolves where a folder target's content lives, and the
// summary hint from book.json.
func (r *run) contentRoot(t manifest.Entry) (root, hint string, folder bool) {
	req := discovery.Request{Path: t.Path, ManifestDir: r.m.Dir}
	abs := req.Resolve()
	if discovery.SourceType(t.SourceType, abs) != manifest.SourceFolder {
		return "", "", false
	}
	root = abs
	if t.UseBookJSON {
		if meta, ok := book.Discover(abs); ok {
			root = meta.ContentRoot()
			hint = meta.SummaryHint
		}
	}
	return root, hint, true
}

// rename normalises file names under GitBook content roots.
func (r *run) rename(ctx context.Context, targets []manifest.Entry) {
	seen := map[string]bool{}
	for _, t := range targets {
		if !t.UseBookJSON && !t.WantsSummary() {
			continue
		}
		root, _, ok := r.contentRoot(t)
		if !ok || seen[root] {
			continue
		}
		seen[root] = true
		rep, err := gitbook.Rename(ctx, root, gitbook.RenameOptions{UseGit: !r.opts.RenameNoGit, DryRun: r.opts.DryRun})
		if err != nil {
			logger.Error("rename pass failed", logger.String("root", root), logger.Err(err))
			continue
		}
		r.report.Renamed += len(rep.Renamed)
	}
}

// summaries regenerates SUMMARY.md for targets that ask for it, before
// any content discovery.
func (r *run) summaries(targets []manifest.Entry) {
	seen := map[string]bool{}
	for _, t := range targets {
		if !t.WantsSummary() {
			continue
		}
		root, hint, ok := r.contentRoot(t)
		if !ok || seen[root] {
			continue
		}
		seen[root] = true
		if _, err := os.Stat(root); err != nil {
			logger.Warn("content root missing, no summary", logger.String("root", root))
			continue
		}

		opts := r.summaryOptions(t, root, hint)
		fs := osfs.New(root)
		if r.opts.DryRun {
			res, err := summary.Generate(fs, opts)
			if err != nil {
				logger.Error("summary generation failed", logger.String("root", root), logger.Err(err))
				continue
			}
			logger.Info("dry run, summary not written", logger.String("summary", filepath.Join(root, res.Path)))
			continue
		}
		wrote, err := summary.EnsureClean(fs, opts)
		if err != nil {
			logger.Error("summary generation failed", logger.String("root", root), logger.Err(err))
			continue
		}
		if wrote {
			r.report.Summaries = append(r.report.Summaries, r.display(filepath.Join(root, summary.ResolveName(fs, opts.SummaryName))))
		}
	}
}

func (r *run) summaryOptions(t manifest.Entry, root, hint string) summary.Options {
	marker := t.SummaryManualMarker
	if marker == "" {
		marker = r.env.Config.Summary.ManualMarker
	}
	order := t.SummaryOrderManifest
	if order != "" && !filepath.IsAbs(order) {
		if _, err := os.Stat(filepath.Join(root, order)); err != nil {
			order = filepath.Join(r.m.Dir, filepath.FromSlash(order))
		}
	}
	opts := summary.Options{
		Mode:           t.SummaryMode,
		OrderManifest:  order,
		ManualMarker:   marker,
		AppendicesLast: t.SummaryAppendicesLast,
		SummaryName:    hint,
		TypedSections:  sectionConfig(t),
	}
	if m, err := ignore.NewMatcher(root); err == nil {
		opts.Ignore = m.Match
	}
	return opts
}

func sectionConfig(t manifest.Entry) *summary.SectionConfig {
	if !t.UseDocumentTypes {
		return nil
	}
	c := summary.DefaultSectionConfig()
	if dt := t.DocumentTypes; dt != nil {
		if len(dt.SectionOrder) > 0 {
			c.Order = dt.SectionOrder
		}
		c.Titles = dt.SectionTitles
		c.AutoNumberChapters = dt.AutoNumberChapters
		c.AutoNumberAppendices = dt.AutoNumberAppendices
	}
	return c
}

func (r *run) build(ctx context.Context, targets []manifest.Entry) error {
	parallel := r.opts.Parallel
	if parallel <= 0 {
		parallel = r.env.Config.Publish.Parallel
	}
	if parallel <= 0 {
		parallel = 1
	}
	plan := work.PlanTargets("run", r.repoRoot, targets, parallel)
	b := &builder{run: r}
	d := work.NewDispatcher(work.DispatcherConfig{MaxWorkers: parallel, DryRun: r.opts.DryRun}, b)
	sum, err := d.ExecuteManifest(ctx, plan)
	if err != nil {
		return err
	}
	for _, res := range sum.Results {
		tr, ok := res.Value.(TargetResult)
		if !ok {
			tr = TargetResult{Index: res.Index, Kind: KindCombine, Error: res.Error}
		}
		r.report.add(tr, r.display(tr.Out))
	}
	if b.persistErr != nil {
		return fmt.Errorf("%w: %v", ErrPersist, b.persistErr)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// finish writes CI outputs and the JUnit report.
func (r *run) finish() {
	if err := appendOutputs(r.env.getenv(CIOutputEnv), r.report.buildOutputs()); err != nil {
		logger.Warn("failed to write CI outputs", logger.Err(err))
	}
	if r.opts.JUnitPath != "" {
		if err := WriteJUnit(r.opts.JUnitPath, r.report, r.env.now()); err != nil {
			logger.Warn("failed to write junit report", logger.Err(err))
		}
	}
}

// display renders p relative to the repository root when inside it.
func (r *run) display(p string) string {
	if rel, err := filepath.Rel(r.repoRoot, p); err == nil && !filepath.IsAbs(rel) && rel != ".." && !startsWithParent(rel) {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(p)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// IsNothingToPublish reports whether err means no target was selected.
func IsNothingToPublish(err error) bool {
	return errors.Is(err, ErrNothingToPublish)
}
