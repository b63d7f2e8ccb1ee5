/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/folio/pkg/buildinfo"
	"github.com/fulmenhq/folio/pkg/manifest"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show folio version information",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	cmd.Flags().Bool("extended", false, "Show detailed build information")
	cmd.Flags().Bool("json", false, "Output version information in JSON format")
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	extended, _ := cmd.Flags().GetBool("extended")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	version := buildinfo.Version()
	vcs := buildinfo.ReadVCS()
	policy := manifest.SupportedVersions

	if jsonOutput {
		info := map[string]interface{}{
			"version":   version,
			"goVersion": runtime.Version(),
			"platform":  runtime.GOOS,
			"arch":      runtime.GOARCH,
			"manifest":  map[string]string{"minimum": policy.Minimum, "current": policy.Current},
		}
		if extended {
			info["vcs"] = vcs
		}
		return writeJSON(out, info)
	}

	fmt.Fprintf(out, "folio %s\n", version)
	fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
	fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if !extended {
		return nil
	}
	fmt.Fprintf(out, "Manifest version: %s (minimum %s)\n", policy.Current, policy.Minimum)
	if vcs.Revision == "" {
		fmt.Fprintln(out, "Git commit: unknown")
		return nil
	}
	rev := vcs.Revision
	if len(rev) > 8 {
		rev = rev[:8]
	}
	fmt.Fprintf(out, "Git commit: %s\n", rev)
	if vcs.Time != "" {
		fmt.Fprintf(out, "Build time: %s\n", vcs.Time)
	}
	if vcs.Modified {
		fmt.Fprintln(out, "Git status: dirty (uncommitted changes)")
	} else {
		fmt.Fprintln(out, "Git status: clean")
	}
	return nil
}
