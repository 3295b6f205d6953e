// Package cli assembles the instrument command line.
package cli

import (
	"github.com/spf13/cobra"

	configcmd "github.com/aeppert/bro-plugin-instrumentation/internal/cli/config"
	"github.com/aeppert/bro-plugin-instrumentation/internal/cli/query"
	"github.com/aeppert/bro-plugin-instrumentation/internal/cli/report"
	"github.com/aeppert/bro-plugin-instrumentation/pkg/version"
)

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "instrument",
		Short: "Inspect script interpreter instrumentation output",
		Long: `Inspect the output of the script interpreter instrumentation layer.

The profiler records per-function resource usage, call chains and periodic
process snapshots. This tool summarizes dumps, queries sessions persisted
in DuckDB and manages the instrument.yaml configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(report.NewReportCmd())
	root.AddCommand(query.NewQueryCmd())
	root.AddCommand(configcmd.NewConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("instrument version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
