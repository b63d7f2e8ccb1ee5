package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/folio/pkg/combine"
	"github.com/fulmenhq/folio/pkg/discovery"
	"github.com/fulmenhq/folio/pkg/emoji"
	"github.com/fulmenhq/folio/pkg/ignore"
	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/manifest"
	"github.com/fulmenhq/folio/pkg/preprocess"
	"github.com/fulmenhq/folio/pkg/typeset"
	"github.com/fulmenhq/folio/pkg/work"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
)

// builder builds one target per work item. Manifest writes are
// serialised through mu.
type builder struct {
	run *run

	mu         sync.Mutex
	persistErr error
}

// ProcessWorkItem implements work.WorkItemProcessor.
func (b *builder) ProcessWorkItem(ctx context.Context, item *work.WorkItem, dryRun bool, _ bool) work.ExecutionResult {
	start := time.Now()
	res := b.target(ctx, item.Entry, dryRun)
	res.Duration = time.Since(start)

	if res.Success {
		logger.Info("target built", logger.String("out", res.Out), logger.Duration("elapsed", res.Duration))
	} else {
		logger.Error("target failed", logger.String("out", res.Out), logger.String("kind", res.Kind), logger.String("error", res.Error))
	}
	return work.ExecutionResult{Success: res.Success, Error: res.Error, Output: res.Artifact, Value: res}
}

func (b *builder) target(ctx context.Context, e manifest.Entry, dryRun bool) TargetResult {
	r := b.run
	cfg := r.env.Config
	out := filepath.Join(e.OutDir, e.Out)
	res := TargetResult{Index: e.Index, Path: e.Path, Out: out}

	req := discovery.Request{
		Path:        e.Path,
		ManifestDir: r.m.Dir,
		SourceType:  e.SourceType,
		UseBookJSON: e.UseBookJSON,
		UseSummary:  e.UseSummary,
	}
	if m, err := ignore.NewMatcher(r.repoRoot); err == nil {
		req.Ignore = m
	}
	disc, err := discovery.Discover(req)
	if err != nil {
		res.Kind, res.Error = KindDiscover, err.Error()
		return res
	}
	logger.Debug("content resolved", logger.String("root", disc.ContentRoot), logger.Int("files", len(disc.Files)))

	paperFormat := firstNonEmpty(e.PDFOptions.PaperFormat, r.opts.PaperFormat, cfg.Publish.PaperFormat)
	copts := combine.Options{
		Preprocess: preprocess.Options{
			PaperFormat:    paperFormat,
			ColumnWidthMM:  cfg.Preprocess.ColumnWidthMM,
			PixelsPerMM:    cfg.Preprocess.PixelsPerMM,
			MinColsForWrap: cfg.Preprocess.MinColsForWrap,
		},
	}
	var text, title string
	if disc.SourceType == manifest.SourceFolder {
		text, err = combine.Combine(ctx, disc.Files, copts)
		if disc.Book != nil {
			title = disc.Book.Title
		}
	} else {
		text, err = combine.Single(disc.Files[0], copts)
		title = fileTitle(disc.Files[0])
	}
	if err != nil {
		res.Kind, res.Error = KindCombine, err.Error()
		return res
	}

	tmp := filepath.Join(r.env.TempRoot, uuid.NewString())
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		res.Kind, res.Error = KindCombine, err.Error()
		return res
	}
	stem := strings.TrimSuffix(e.Out, filepath.Ext(e.Out))
	combined := filepath.Join(tmp, filepath.Base(stem)+".md")
	if err := os.WriteFile(combined, []byte(text), 0o644); err != nil {
		res.Kind, res.Error = KindCombine, err.Error()
		return res
	}

	pdf := e.PDFOptions
	pdf.PaperFormat = paperFormat
	color := true
	if r.opts.EmojiColor != nil {
		color = *r.opts.EmojiColor
	}
	ts := r.env.Typesetter.Run(ctx, typeset.Job{
		Input:      combined,
		Output:     out,
		Title:      title,
		TOC:        disc.SourceType == manifest.SourceFolder,
		Assets:     b.assetPaths(e, disc.ContentRoot),
		PDFOptions: pdf,
		EmojiColor: color,
		WorkDir:    disc.ContentRoot,
		TempDir:    tmp,
		Extra:      r.opts.PublisherArgs,
		Timeout:    r.opts.Timeout,
		DryRun:     dryRun,
	})
	res.Command = ts.Command.String()
	res.Success = ts.Success
	res.Artifact = ts.Artifact
	if !ts.Success {
		res.Kind, res.Error, res.ExitCode = ts.Kind, ts.Error, ts.ExitCode
	}

	if e.KeepCombined && !dryRun {
		kept := filepath.Join(e.OutDir, stem+".md")
		if err := keepCombined(kept, text); err != nil {
			logger.Warn("failed to keep combined markdown", logger.String("path", kept), logger.Err(err))
		} else {
			res.Combined = kept
		}
	}
	if !res.Success {
		return res
	}

	if r.opts.EmojiReport && !dryRun {
		dir := firstNonEmpty(r.opts.EmojiReportDir, filepath.Dir(out))
		if p, err := emoji.WriteReport(dir, out, text, r.env.now()); err != nil {
			logger.Warn("emoji report failed", logger.Err(err))
		} else {
			logger.Info("emoji report written", logger.String("path", p))
		}
	}
	if !dryRun {
		b.copyAssets(e, filepath.Dir(out))
	}
	if e.ResetBuildFlag && !dryRun {
		if err := b.resetBuildFlag(e.Index); err != nil {
			res.Kind, res.Error = KindPersist, err.Error()
		}
	}
	return res
}

// keepCombined writes the combined markdown next to the PDF.
func keepCombined(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

func (b *builder) resetBuildFlag(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.run.m.SetBuildAt(index, false) {
		return nil
	}
	if err := b.run.m.Save(); err != nil {
		if b.persistErr == nil {
			b.persistErr = err
		}
		return err
	}
	logger.Info("build flag reset", logger.Int("index", index))
	return nil
}

// assetPaths resolves manifest assets against the manifest directory.
func (b *builder) assetPaths(e manifest.Entry, contentRoot string) []string {
	var out []string
	for _, a := range e.Assets {
		p := filepath.FromSlash(a.Path)
		if !filepath.IsAbs(p) {
			if _, err := os.Stat(filepath.Join(contentRoot, p)); err == nil {
				out = append(out, filepath.ToSlash(a.Path))
				continue
			}
			p = filepath.Join(b.run.m.Dir, p)
		}
		out = append(out, p)
	}
	return out
}

// copyAssets mirrors assets marked copy_to_output next to the artifact.
func (b *builder) copyAssets(e manifest.Entry, outDir string) {
	for _, a := range e.Assets {
		if !a.CopyToOutput {
			continue
		}
		src := filepath.FromSlash(a.Path)
		if !filepath.IsAbs(src) {
			src = filepath.Join(b.run.m.Dir, src)
		}
		dst := filepath.Join(outDir, filepath.Base(src))
		if err := copyTree(src, dst); err != nil {
			logger.Warn("asset copy failed", logger.String("asset", a.Path), logger.Err(err))
		}
	}
}

func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(src) // #nosec G304 -- manifest-declared asset
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return os.WriteFile(dst, data, 0o644)
	}
	from, to := osfs.New(src), osfs.New(dst)
	return util.Walk(from, ".", func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return to.MkdirAll(p, 0o755)
		}
		data, err := util.ReadFile(from, p)
		if err != nil {
			return err
		}
		return util.WriteFile(to, p, data, 0o644)
	})
}

// fileTitle returns the first level-one heading of a Markdown file.
func fileTitle(path string) string {
	data, err := os.ReadFile(path) // #nosec G304 -- discovered content file
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ work.WorkItemProcessor = (*builder)(nil)

