// Package combine turns an ordered list of Markdown files into the single
// document handed to the typesetter.
package combine

import (
	"context"
	"errors"
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/paper"
	"github.com/fulmenhq/folio/pkg/preprocess"
)

// PageBreak separates files in the combined document.
const PageBreak = "\n\n\\newpage\n\n"

// ErrNoInput is returned when none of the input files could be read.
var ErrNoInput = errors.New("no readable markdown input")

// Options configures a combine run.
type Options struct {
	Preprocess preprocess.Options
	// Parallel bounds concurrent preprocessing. Zero means one per CPU.
	Parallel int
}

// Combine preprocesses files concurrently, keeps their order, joins them
// with page breaks and adds the front matter the typesetter needs. Each
// file is prefixed with its anchor and links between the files point at
// those anchors. Unreadable files are skipped with a warning.
func Combine(ctx context.Context, files []string, opts Options) (string, error) {
	page, err := paper.Lookup(paperName(opts))
	if err != nil {
		return "", err
	}

	parts := make([]string, len(files))
	ok := make([]bool, len(files))
	g, gctx := errgroup.WithContext(ctx)
	limit := opts.Parallel
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g.SetLimit(limit)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := preprocess.Preprocess(f, opts.Preprocess)
			if err != nil {
				logger.Warn("skipping unreadable file", logger.String("file", f), logger.Err(err))
				return nil
			}
			parts[i] = Normalize(anchorFile(text, f))
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	kept := make([]string, 0, len(parts))
	for i, p := range parts {
		if ok[i] {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "", ErrNoInput
	}
	logger.Debug("combined markdown", logger.Int("files", len(kept)), logger.Int("skipped", len(files)-len(kept)))
	return finish(strings.Join(kept, PageBreak), page), nil
}

// Single runs the combine pipeline for one file.
func Single(path string, opts Options) (string, error) {
	page, err := paper.Lookup(paperName(opts))
	if err != nil {
		return "", err
	}
	text, err := preprocess.Preprocess(path, opts.Preprocess)
	if err != nil {
		return "", err
	}
	return finish(Normalize(text), page), nil
}

func paperName(opts Options) string {
	if opts.Preprocess.PaperFormat == "" {
		return "a4"
	}
	return opts.Preprocess.PaperFormat
}

var gitbookAssetsUp = regexp.MustCompile(`\(\.\./\.gitbook/assets/`)

func finish(text string, page paper.Format) string {
	text = InjectFrontMatter(text, page)
	text = EscapeFirstHeading(text)
	return gitbookAssetsUp.ReplaceAllString(text, "(.gitbook/assets/")
}
