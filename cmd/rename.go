package cmd

import (
	"path/filepath"

	"github.com/fulmenhq/folio/pkg/book"
	"github.com/fulmenhq/folio/pkg/gitbook"
	"github.com/spf13/cobra"
)

func newRenameCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename [dir]",
		Short: "Rename content files to GitBook-style names",
		Long: `Rename files and directories under a content root to lower-case,
dash-separated names. Tracked paths are moved with git; untracked ones are
skipped unless --no-git is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRename,
	}
	cmd.Flags().Bool("no-git", false, "Rename on disk even inside a git work tree")
	cmd.Flags().Bool("dry-run", false, "List the renames without applying them")
	return cmd
}

func runRename(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if meta, ok := book.Discover(abs); ok && meta.Dir == abs {
		abs = meta.ContentRoot()
	}
	noGit, _ := cmd.Flags().GetBool("no-git")
	report, err := gitbook.Rename(cmd.Context(), abs, gitbook.RenameOptions{UseGit: !noGit, DryRun: dryRun(cmd)})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), report)
}
