package query

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aeppert/bro-plugin-instrumentation/internal/cli/helpers"
	"github.com/aeppert/bro-plugin-instrumentation/internal/constants"
)

// SessionRow is one line of 'query sessions'.
type SessionRow struct {
	ID          string `header:"SESSION" json:"session_id" yaml:"session_id"`
	Service     string `header:"SERVICE" json:"service_name" yaml:"service_name"`
	StartedAt   string `header:"STARTED" json:"started_at" yaml:"started_at"`
	PersistedAt string `header:"PERSISTED" json:"persisted_at" yaml:"persisted_at"`
}

// NewSessionsCmd creates the 'query sessions' command.
func NewSessionsCmd() *cobra.Command {
	var (
		db     string
		format string
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, formats); err != nil {
				return err
			}
			store, conn, err := openStore(db)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			sessions, err := store.Sessions(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([]SessionRow, len(sessions))
			for i, s := range sessions {
				rows[i] = SessionRow{
					ID:          s.ID,
					Service:     s.ServiceName,
					StartedAt:   s.StartedAt.Format(time.RFC3339),
					PersistedAt: s.PersistedAt.Format(time.RFC3339),
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

var formats = []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON, helpers.FormatCSV, helpers.FormatYAML}
