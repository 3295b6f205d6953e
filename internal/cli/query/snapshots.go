package query

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aeppert/bro-plugin-instrumentation/internal/cli/helpers"
	"github.com/aeppert/bro-plugin-instrumentation/internal/constants"
)

// SnapshotRow is one line of 'query snapshots'.
type SnapshotRow struct {
	CapturedAt  string  `header:"CAPTURED" json:"captured_at" yaml:"captured_at"`
	Executions  uint64  `header:"EXECUTIONS" json:"count" yaml:"count"`
	NetworkTime float64 `header:"NETWORK_TIME" json:"network_time" yaml:"network_time"`
	CPUNanos    uint64  `header:"CPU_NS" json:"cpu_ns" yaml:"cpu_ns"`
	WallNanos   uint64  `header:"WALL_NS" json:"wall_ns" yaml:"wall_ns"`
	AllocBytes  uint64  `header:"ALLOC_BYTES" json:"alloc_bytes" yaml:"alloc_bytes"`
}

// NewSnapshotsCmd creates the 'query snapshots' command.
func NewSnapshotsCmd() *cobra.Command {
	var (
		db     string
		format string
	)

	cmd := &cobra.Command{
		Use:   "snapshots [session]",
		Short: "List the process snapshots persisted for a session",
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

			snapshots, err := store.Snapshots(cmd.Context(), session)
			if err != nil {
				return err
			}

			rows := make([]SnapshotRow, len(snapshots))
			for i, s := range snapshots {
				rows[i] = SnapshotRow{
					CapturedAt:  s.CapturedAt.Format(time.RFC3339),
					Executions:  s.Count,
					NetworkTime: s.NetworkTime,
					CPUNanos:    s.CPUNanos,
					WallNanos:   s.WallNanos,
					AllocBytes:  s.AllocBytes,
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
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, formats)

	return cmd
}
