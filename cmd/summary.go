package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/fulmenhq/folio/pkg/book"
	"github.com/fulmenhq/folio/pkg/ignore"
	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/summary"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

func newSummaryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary [dir]",
		Short: "Regenerate SUMMARY.md for a content directory",
		Long: `Regenerate the SUMMARY.md of a content directory. When the directory holds
a book.json with a root, the summary is written under that root. A summary
containing the manual marker is left untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSummary,
	}
	f := cmd.Flags()
	f.String("mode", "gitbook", "Ordering mode (gitbook|title|manifest|manual)")
	f.String("order-manifest", "", "Sidecar order list for --mode manifest")
	f.String("manual-marker", "", "Marker that protects a hand-written summary")
	f.Bool("appendices-last", false, "Move appendices after all other entries")
	f.Bool("typed", false, "Group documents into typed sections from front matter")
	f.Bool("dry-run", false, "Print the summary instead of writing it")
	return cmd
}

func runSummary(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	proj, err := loadProject("")
	if err != nil {
		return err
	}

	root := abs
	var hint string
	if meta, ok := book.Discover(abs); ok && meta.Dir == abs {
		root = meta.ContentRoot()
		hint = meta.SummaryHint
	}

	f := cmd.Flags()
	opts := summary.Options{SummaryName: hint}
	opts.Mode, _ = f.GetString("mode")
	opts.OrderManifest, _ = f.GetString("order-manifest")
	opts.ManualMarker, _ = f.GetString("manual-marker")
	if opts.ManualMarker == "" {
		opts.ManualMarker = proj.cfg.Summary.ManualMarker
	}
	opts.AppendicesLast, _ = f.GetBool("appendices-last")
	if typed, _ := f.GetBool("typed"); typed {
		opts.TypedSections = summary.DefaultSectionConfig()
	}
	if opts.OrderManifest != "" && !filepath.IsAbs(opts.OrderManifest) {
		if p, err := filepath.Abs(opts.OrderManifest); err == nil {
			opts.OrderManifest = p
		}
	}
	if m, err := ignore.NewMatcher(root); err == nil {
		opts.Ignore = m.Match
	}

	fs := osfs.New(root)
	if dryRun(cmd) {
		res, err := summary.Generate(fs, opts)
		if err != nil {
			return err
		}
		for _, issue := range res.Issues {
			logger.Warn("summary issue", logger.String("issue", issue))
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), res.Content)
		return err
	}

	wrote, err := summary.EnsureClean(fs, opts)
	if err != nil {
		return err
	}
	path := filepath.Join(root, summary.ResolveName(fs, opts.SummaryName))
	if wrote {
		logger.Info("summary written", logger.String("path", path))
	} else {
		logger.Info("summary unchanged", logger.String("path", path))
	}
	return nil
}
