package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/folio/internal/pipeline"
	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/selector"
	"github.com/spf13/cobra"
)

func newFlagsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Set build flags from changed files, or reset them",
		Long: `Set build: true on every manifest entry a changed file matches, without
building anything. With --reset, clear the build flag of the entries
selected by --path, --out or --index instead.`,
		Args: cobra.NoArgs,
		RunE: runFlags,
	}
	addManifestFlags(cmd.Flags())
	f := cmd.Flags()
	f.String("commit", "HEAD", "Target revision for change detection")
	f.String("base", "", "Base revision for change detection")
	f.Bool("reset-others", false, "Set build: false on entries no changed file matches")
	f.Bool("dry-run", false, "Compute changes without writing the manifest")
	f.Bool("reset", false, "Clear build flags instead of setting them")
	f.String("path", "", "With --reset: entry path to match")
	f.String("out", "", "With --reset: entry out to match")
	f.Int("index", -1, "With --reset: entry index to match")
	f.Bool("all-matches", false, "With --reset: allow several matching entries")
	return cmd
}

func runFlags(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	rootFlag, _ := f.GetString("root")
	explicit, _ := f.GetString("manifest")
	proj, err := loadProject(rootFlag)
	if err != nil {
		return err
	}

	if reset, _ := f.GetBool("reset"); reset {
		return runReset(cmd, proj, explicit)
	}

	opts := pipeline.Options{
		Root:     proj.root,
		Manifest: explicit,
		SetFlags: true,
		DryRun:   dryRun(cmd),
		Env:      &pipeline.Environment{Config: proj.cfg, Cwd: proj.cwd, Getenv: os.Getenv},
	}
	opts.Commit, _ = f.GetString("commit")
	opts.Base, _ = f.GetString("base")
	opts.ResetOthers, _ = f.GetBool("reset-others")

	report, err := pipeline.SetFlags(cmd.Context(), opts)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
		"manifest":       report.Manifest,
		"changed":        report.Changed,
		"modified":       report.Modified,
		"any_build_true": report.AnyBuildTrue,
		"dry_run":        report.DryRun,
	})
}

func runReset(cmd *cobra.Command, proj *project, explicit string) error {
	f := cmd.Flags()
	var c selector.Criteria
	c.Path, _ = f.GetString("path")
	c.Out, _ = f.GetString("out")
	if idx, _ := f.GetInt("index"); idx >= 0 {
		c.Index = &idx
	}
	multi, _ := f.GetBool("all-matches")

	m, err := proj.manifest(explicit)
	if err != nil {
		return err
	}
	changes, err := selector.Reset(m, c, multi)
	if err != nil {
		if errors.Is(err, selector.ErrNoCriteria) {
			return fmt.Errorf("--reset needs --path, --out or --index: %w", err)
		}
		return err
	}
	if len(changes) > 0 && !dryRun(cmd) {
		if err := m.Save(); err != nil {
			return fmt.Errorf("%w: %v", pipeline.ErrPersist, err)
		}
		logger.Info("build flags reset", logger.Int("count", len(changes)), logger.String("manifest", m.Path))
	}
	return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
		"manifest": m.Path,
		"modified": changes,
		"dry_run":  dryRun(cmd),
	})
}
