package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fulmenhq/folio/internal/pipeline"
	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild targets whenever their content changes",
		Long: `Watch the content of every manifest entry and publish the entries a batch
of changed files matches. Entries no change matches get build: false, as
with run --reset-others. Renaming is never done while watching.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	addManifestFlags(cmd.Flags())
	f := cmd.Flags()
	f.Duration("debounce", 500*time.Millisecond, "Quiet period before a batch of changes is built")
	f.Bool("no-gitbook-summary", false, "Skip SUMMARY.md regeneration")
	f.StringArray("publisher-args", nil, "Extra typesetter arguments, shell-split (repeatable)")
	f.String("paper-format", "", "Default paper format")
	f.Int("parallel", 0, "Targets built concurrently (default from config)")
	f.Bool("dry-run", false, "Log intended commands without executing or writing")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	rootFlag, _ := f.GetString("root")
	explicit, _ := f.GetString("manifest")
	debounce, _ := f.GetDuration("debounce")

	proj, err := loadProject(rootFlag)
	if err != nil {
		return err
	}
	m, err := proj.manifest(explicit)
	if err != nil {
		return err
	}
	env, err := pipeline.NewEnvironment(proj.cfg)
	if err != nil {
		return err
	}
	defer env.Close()
	env.Cwd = proj.cwd

	base := pipeline.DefaultOptions()
	base.Root = proj.root
	base.Manifest = m.Path
	base.ResetOthers = true
	base.GitbookRename = false
	base.DryRun = dryRun(cmd)
	base.Env = env
	if off, _ := f.GetBool("no-gitbook-summary"); off {
		base.GitbookSummary = false
	}
	base.PaperFormat, _ = f.GetString("paper-format")
	base.Parallel, _ = f.GetInt("parallel")
	raw, _ := f.GetStringArray("publisher-args")
	for _, s := range raw {
		args, err := splitArgs(s)
		if err != nil {
			return err
		}
		base.PublisherArgs = append(base.PublisherArgs, args...)
	}

	w, err := pipeline.NewWatcher(proj.root, pipeline.NewWatchSet(m), debounce)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	out := cmd.OutOrStdout()
	w.OnChange = func(ctx context.Context, changed []string) {
		opts := base
		opts.Changed = changed
		report, err := pipeline.Run(ctx, opts)
		switch {
		case pipeline.IsNothingToPublish(err):
			logger.Info("no entry matches the changed files")
			return
		case err != nil:
			logger.Error("publish failed", logger.Err(err))
		}
		if report != nil {
			_ = printReport(out, report, "table")
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("watching for changes", logger.Int("directories", len(w.Watched())), logger.String("manifest", m.Path))
	return w.Run(ctx)
}
