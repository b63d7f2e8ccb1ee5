/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/fulmenhq/folio/internal/pipeline"
	"github.com/fulmenhq/folio/pkg/paper"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Flag changed targets, refresh summaries and publish PDFs",
		Long: `Run the publishing pipeline: locate publish.yml, set build flags from the
files changed between --base and --commit, normalise GitBook names,
regenerate SUMMARY.md files and typeset every entry with build: true.

The JSON run report is printed to stdout; logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: runPublish,
	}
	addManifestFlags(cmd.Flags())
	f := cmd.Flags()
	f.String("commit", "HEAD", "Target revision for change detection")
	f.String("base", "", "Base revision for change detection")
	f.Bool("reset-others", false, "Set build: false on entries no changed file matches")
	f.Bool("no-set-flag", false, "Skip change-driven flag setting")
	f.Bool("no-gitbook-rename", false, "Skip the GitBook rename pass")
	f.Bool("rename-no-git", false, "Rename on disk instead of with git mv")
	f.Bool("no-gitbook-summary", false, "Skip SUMMARY.md regeneration")
	f.Bool("no-publish", false, "Skip the typesetter pass")
	f.StringArray("publisher-args", nil, "Extra typesetter arguments, shell-split (repeatable)")
	f.Bool("dry-run", false, "Log intended commands without executing or writing")
	f.String("paper-format", "", "Default paper format, e.g. a4, a3-landscape")
	f.String("publish-dir", "", "Default output directory for entries without out_dir")
	f.Bool("emoji-color", true, "Prefer a colour emoji font")
	f.Bool("no-emoji-color", false, "Prefer a monochrome emoji font")
	f.Bool("emoji-report", false, "Write an emoji usage report next to each PDF")
	f.String("emoji-report-dir", "", "Directory for emoji reports")
	f.Int("parallel", 0, "Targets built concurrently (default from config)")
	f.String("junit", "", "Write a JUnit XML report to this path")
	f.Duration("timeout", 0, "Per-target typesetter timeout (default from config)")
	f.String("report", "", "Also write the JSON report to this path")
	f.String("format", "json", "Report format on stdout (json|table)")
	return cmd
}

// runOptions maps the run flags onto pipeline options.
func runOptions(cmd *cobra.Command) (pipeline.Options, error) {
	f := cmd.Flags()
	opts := pipeline.DefaultOptions()
	opts.Root, _ = f.GetString("root")
	opts.Manifest, _ = f.GetString("manifest")
	opts.Commit, _ = f.GetString("commit")
	opts.Base, _ = f.GetString("base")
	opts.ResetOthers, _ = f.GetBool("reset-others")
	opts.RenameNoGit, _ = f.GetBool("rename-no-git")
	opts.DryRun = dryRun(cmd)

	for name, dst := range map[string]*bool{
		"no-set-flag":        &opts.SetFlags,
		"no-gitbook-rename":  &opts.GitbookRename,
		"no-gitbook-summary": &opts.GitbookSummary,
		"no-publish":         &opts.Publish,
	} {
		if off, _ := f.GetBool(name); off {
			*dst = false
		}
	}

	raw, _ := f.GetStringArray("publisher-args")
	for _, s := range raw {
		args, err := splitArgs(s)
		if err != nil {
			return opts, fmt.Errorf("--publisher-args: %w", err)
		}
		opts.PublisherArgs = append(opts.PublisherArgs, args...)
	}

	opts.PaperFormat, _ = f.GetString("paper-format")
	if opts.PaperFormat != "" {
		if _, err := paper.Lookup(opts.PaperFormat); err != nil {
			return opts, fmt.Errorf("--paper-format: %w", err)
		}
	}
	opts.PublishDir, _ = f.GetString("publish-dir")

	switch {
	case f.Changed("no-emoji-color"):
		off, _ := f.GetBool("no-emoji-color")
		color := !off
		opts.EmojiColor = &color
	case f.Changed("emoji-color"):
		color, _ := f.GetBool("emoji-color")
		opts.EmojiColor = &color
	}
	opts.EmojiReport, _ = f.GetBool("emoji-report")
	opts.EmojiReportDir, _ = f.GetString("emoji-report-dir")
	if opts.EmojiReportDir != "" {
		opts.EmojiReport = true
	}

	opts.Parallel, _ = f.GetInt("parallel")
	opts.JUnitPath, _ = f.GetString("junit")
	opts.Timeout, _ = f.GetDuration("timeout")
	return opts, nil
}

func runPublish(cmd *cobra.Command, _ []string) error {
	opts, err := runOptions(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "json" && format != "table" {
		return fmt.Errorf("unsupported --format: %s (use json or table)", format)
	}

	proj, err := loadProject(opts.Root)
	if err != nil {
		return err
	}
	opts.Root = proj.root
	env, err := pipeline.NewEnvironment(proj.cfg)
	if err != nil {
		return err
	}
	defer env.Close()
	env.Cwd = proj.cwd
	opts.Env = env

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := pipeline.Run(ctx, opts)
	if report != nil {
		if err := printReport(cmd.OutOrStdout(), report, format); err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString("report"); path != "" {
			if err := saveReport(path, report); err != nil {
				return err
			}
		}
	}
	if runErr != nil {
		return runErr
	}
	return withCode(report.ExitCode())
}

func printReport(w io.Writer, r *pipeline.Report, format string) error {
	if format == "json" {
		return r.WriteJSON(w)
	}
	rows := make([][]string, 0, len(r.Targets))
	for _, t := range r.Targets {
		status, detail := "built", t.Artifact
		if !t.Success {
			status, detail = "failed", t.Kind+": "+firstLine(t.Error)
		}
		rows = append(rows, []string{
			strconv.Itoa(t.Index), truncate(t.Path, 40), filepath.Base(t.Out), status, truncate(detail, 60),
		})
	}
	if err := renderTable(w, []string{"#", "PATH", "OUT", "STATUS", "DETAIL"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nbuilt %d, failed %d (manifest %s)\n", r.BuiltCount, len(r.Failures), r.Manifest)
	return err
}

func saveReport(path string, r *pipeline.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path) // #nosec G304 -- user-chosen report path
	if err != nil {
		return err
	}
	if err := r.WriteJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
