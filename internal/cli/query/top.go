package query

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aeppert/bro-plugin-instrumentation/internal/cli/helpers"
	"github.com/aeppert/bro-plugin-instrumentation/internal/constants"
)

// TopRow is one line of 'query top'.
type TopRow struct {
	Name       string `header:"FUNCTION" json:"name" yaml:"name"`
	Location   string `header:"LOCATION" json:"location" yaml:"location"`
	Count      uint64 `header:"COUNT" json:"count" yaml:"count"`
	Failures   uint64 `header:"FAILURES" json:"failures" yaml:"failures"`
	CPUNanos   uint64 `header:"CPU_NS" json:"cpu_ns" yaml:"cpu_ns"`
	WallNanos  uint64 `header:"WALL_NS" json:"wall_ns" yaml:"wall_ns"`
	AllocBytes uint64 `header:"ALLOC_BYTES" json:"alloc_bytes" yaml:"alloc_bytes"`
}

// NewTopCmd creates the 'query top' command.
func NewTopCmd() *cobra.Command {
	var (
		db     string
		by     string
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "top [session]",
		Short: "Show the most expensive functions of a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, formats); err != nil {
				return err
			}
			store, conn, err := openStore(db)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			session, err := resolveSession(cmd.Context(), store, args)
			if err != nil {
				return err
			}

			top, err := store.TopFunctions(cmd.Context(), session, by, limit)
			if err != nil {
				return err
			}

			rows := make([]TopRow, len(top))
			for i, r := range top {
				rows[i] = TopRow{
					Name:       r.Name,
					Location:   r.Location,
					Count:      r.Count,
					Failures:   r.Failures,
					CPUNanos:   r.CPUNanos,
					WallNanos:  r.WallNanos,
					AllocBytes: r.AllocBytes,
				}
			}

			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format), helpers.IsTerminal(os.Stdout))
			if err != nil {
				return err
			}
			return formatter.Format(rows, cmd.OutOrStdout())
		},
	}

	helpers.AddDatabaseFlag(cmd, &db, constants.DefaultDatabasePath)
	cmd.Flags().StringVar(&by, "by", "cpu_ns", "Column to sort by")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of functions to show")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, formats)

	return cmd
}
