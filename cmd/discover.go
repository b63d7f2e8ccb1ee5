package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/fulmenhq/folio/pkg/discovery"
	"github.com/fulmenhq/folio/pkg/ignore"
	"github.com/fulmenhq/folio/pkg/manifest"
	"github.com/spf13/cobra"
)

// discoveredTarget is one manifest entry with its resolved content.
type discoveredTarget struct {
	Index       int      `json:"index"`
	Path        string   `json:"path"`
	Out         string   `json:"out"`
	Build       bool     `json:"build"`
	SourceType  string   `json:"source_type,omitempty"`
	ContentRoot string   `json:"content_root,omitempty"`
	SummaryPath string   `json:"summary_path,omitempty"`
	Files       []string `json:"files"`
	Error       string   `json:"error,omitempty"`
}

func newDiscoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Show the files each manifest entry would publish",
		Args:  cobra.NoArgs,
		RunE:  runDiscover,
	}
	addManifestFlags(cmd.Flags())
	cmd.Flags().Bool("selected", false, "Only entries with build: true")
	cmd.Flags().String("format", "json", "Output format (json|table)")
	return cmd
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	rootFlag, _ := f.GetString("root")
	explicit, _ := f.GetString("manifest")
	selected, _ := f.GetBool("selected")
	format, _ := f.GetString("format")

	proj, err := loadProject(rootFlag)
	if err != nil {
		return err
	}
	m, err := proj.manifest(explicit)
	if err != nil {
		return err
	}
	matcher, _ := ignore.NewMatcher(proj.root)
	targets := discoverTargets(m, m.Targets(selected), matcher)

	switch format {
	case "json":
		return writeJSON(cmd.OutOrStdout(), targets)
	case "table":
		rows := make([][]string, 0, len(targets))
		for _, t := range targets {
			detail := t.ContentRoot
			if t.Error != "" {
				detail = "error: " + t.Error
			}
			rows = append(rows, []string{
				strconv.Itoa(t.Index), truncate(t.Path, 40), t.Out, strconv.FormatBool(t.Build),
				strconv.Itoa(len(t.Files)), truncate(detail, 60),
			})
		}
		return renderTable(cmd.OutOrStdout(), []string{"#", "PATH", "OUT", "BUILD", "FILES", "CONTENT"}, rows)
	default:
		return fmt.Errorf("unsupported --format: %s (use json or table)", format)
	}
}

func discoverTargets(m *manifest.Manifest, entries []manifest.Entry, matcher *ignore.Matcher) []discoveredTarget {
	out := make([]discoveredTarget, 0, len(entries))
	for _, e := range entries {
		t := discoveredTarget{Index: e.Index, Path: e.Path, Out: e.Out, Build: e.Build, Files: []string{}}
		res, err := discovery.Discover(discovery.Request{
			Path:        e.Path,
			ManifestDir: m.Dir,
			SourceType:  e.SourceType,
			UseBookJSON: e.UseBookJSON,
			UseSummary:  e.UseSummary,
			Ignore:      matcher,
		})
		if err != nil {
			t.Error = err.Error()
			out = append(out, t)
			continue
		}
		t.SourceType = res.SourceType
		t.ContentRoot = res.ContentRoot
		t.SummaryPath = res.SummaryPath
		for _, p := range res.Files {
			if rel, err := filepath.Rel(res.ContentRoot, p); err == nil {
				p = filepath.ToSlash(rel)
			}
			t.Files = append(t.Files, p)
		}
		out = append(out, t)
	}
	return out
}
