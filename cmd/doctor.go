package cmd

import (
	"fmt"

	"github.com/fulmenhq/folio/internal/doctor"
	"github.com/fulmenhq/folio/pkg/exitcode"
	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/typeset"
	"github.com/spf13/cobra"
)

func newDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that pandoc, the PDF engine and fonts are installed",
		Long: `Check the external toolchain and fonts a publish run needs.

Fonts declared under fonts: in the manifest are taken into account when a
manifest can be found. Exits 9 when a required tool is missing and 6 when
a required font is missing.`,
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}
	addManifestFlags(cmd.Flags())
	cmd.Flags().String("format", "table", "Output format (table, json)")
	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	rootFlag, _ := cmd.Flags().GetString("root")
	manifestFlag, _ := cmd.Flags().GetString("manifest")
	format, _ := cmd.Flags().GetString("format")

	p, err := loadProject(rootFlag)
	if err != nil {
		return err
	}
	fonts := typeset.NewSystemFonts(p.cfg.Typeset.Fonts.Dirs)
	if m, err := p.manifest(manifestFlag); err == nil {
		for _, f := range m.Fonts {
			fonts.Declare(f.Name, f.Path)
		}
	} else {
		logger.Debug("doctor running without manifest", logger.Err(err))
	}

	report := doctor.Checker{}.Check(cmd.Context(), p.cfg.Typeset, fonts)

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		if err := writeJSON(out, report); err != nil {
			return err
		}
	case "table":
		rows := make([][]string, 0, len(report.Tools)+len(report.Fonts))
		for _, t := range report.Tools {
			detail := t.Path
			if t.Version != "" {
				detail = t.Version + "  " + t.Path
			}
			if !t.Present {
				detail = t.Instructions
			}
			rows = append(rows, []string{"tool", t.Binary, mark(t.Present, t.Required), detail})
		}
		for _, f := range report.Fonts {
			rows = append(rows, []string{"font", f.Role, mark(f.Present, f.Required), f.Name})
		}
		if err := renderTable(out, []string{"KIND", "NAME", "STATUS", "DETAIL"}, rows); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	for _, t := range report.Tools {
		if t.Required && !t.Present {
			return withCode(exitcode.ToolNotFound)
		}
	}
	if !report.OK() {
		return withCode(exitcode.FontUnavailable)
	}
	return nil
}

func mark(present, required bool) string {
	switch {
	case present:
		return "ok"
	case required:
		return "missing"
	default:
		return "absent"
	}
}
