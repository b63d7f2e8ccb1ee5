/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"errors"
	"os"

	"github.com/fulmenhq/folio/internal/ops"
	"github.com/fulmenhq/folio/pkg/buildinfo"
	"github.com/fulmenhq/folio/pkg/exitcode"
	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/spf13/cobra"
)

// subcommand pairs a command factory with its help group.
type subcommand struct {
	group ops.CommandGroup
	build func() *cobra.Command
}

var subcommands = []subcommand{
	{ops.GroupPublish, newRunCommand},
	{ops.GroupPublish, newWatchCommand},
	{ops.GroupContent, newFlagsCommand},
	{ops.GroupContent, newSummaryCommand},
	{ops.GroupContent, newRenameCommand},
	{ops.GroupContent, newDiscoverCommand},
	{ops.GroupSupport, newDoctorCommand},
	{ops.GroupSupport, newVersionCommand},
}

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folio",
		Short: "Selective Markdown to PDF publishing",
		Long: `Folio publishes Markdown books and documents to PDF. A publish.yml manifest
lists the targets; changed files decide which of them are rebuilt.

Examples:
   folio run                      # flag changed targets and publish them
   folio run --base origin/main   # compare HEAD against a base revision
   folio run --no-set-flag        # publish whatever has build: true
   folio summary docs/            # regenerate docs/SUMMARY.md
   folio watch                    # rebuild targets as their files change`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().Bool("no-op", false, "Run without making changes (same as --dry-run)")

	cmd.Version = buildinfo.Version()
	cmd.SetVersionTemplate("folio {{.Version}}\n")

	reg := ops.NewRegistry()
	for _, s := range subcommands {
		sub := s.build()
		cmd.AddCommand(sub)
		if err := reg.Register(sub.Name(), s.group, sub, sub.Short); err != nil {
			panic(err)
		}
	}

	defaultHelp := cmd.HelpFunc()
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		if c != cmd {
			defaultHelp(c, args)
			return
		}
		c.Println(c.Long)
		c.Println()
		for _, g := range ops.Groups() {
			entries := reg.GetCommandsByGroup(g)
			if len(entries) == 0 {
				continue
			}
			c.Println(ops.Title(g) + ":")
			for _, e := range entries {
				c.Printf("  %-12s %s\n", e.Name, e.Description)
			}
			c.Println()
		}
		c.Println("Flags:")
		c.Print(c.UsageString())
	})

	return cmd
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute runs the root command and exits with the code the command chose.
func Execute() {
	os.Exit(execute(rootCmd, os.Args[1:]))
}

func execute(cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)
	err := cmd.Execute()
	code := exitCodeFor(err)
	var ee *exitError
	if err != nil && !(errors.As(err, &ee) && ee.err == nil) {
		if code == exitcode.NothingToPublish {
			logger.Info(err.Error())
		} else {
			logger.Error("Command execution failed", logger.Err(err), logger.String("exit", exitcode.String(code)))
		}
	}
	return code
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	noOp, _ := cmd.Flags().GetBool("no-op")

	config := logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor && os.Getenv("NO_COLOR") == "",
		JSON:      jsonLogs,
		Component: "folio",
		NoOp:      noOp,
	}

	if err := logger.Initialize(config); err != nil {
		_, _ = os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(exitcode.GeneralError)
	}
}
