package query

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aeppert/bro-plugin-instrumentation/internal/chain"
	"github.com/aeppert/bro-plugin-instrumentation/internal/cli/helpers"
	"github.com/aeppert/bro-plugin-instrumentation/internal/constants"
	"github.com/aeppert/bro-plugin-instrumentation/internal/functable"
)

// NewGraphCmd creates the 'query graph' command.
func NewGraphCmd() *cobra.Command {
	var (
		db       string
		cutoff   uint64
		prefixes []string
	)

	cmd := &cobra.Command{
		Use:   "graph [session]",
		Short: "Render the call chains of a session as a DOT graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, conn, err := openStore(db)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			session, err := resolveSession(cmd.Context(), store, args)
			if err != nil {
				return err
			}

			entries, err := store.Functions(cmd.Context(), session)
			if err != nil {
				return err
			}
			chains, err := store.Chains(cmd.Context(), session)
			if err != nil {
				return err
			}

			byKey := make(map[functable.Key]functable.Entry, len(entries))
			for _, e := range entries {
				byKey[e.Key] = e
			}
			beautifier := functable.NewBeautifier(prefixes...)
			label := func(k functable.Key) (string, string) {
				e, ok := byKey[k]
				if !ok {
					return fmt.Sprintf("key %d", k), ""
				}
				return e.Name, beautifier.BeautifyLocation(e.Location)
			}

			return chain.RenderGraph(cmd.OutOrStdout(), chains, cutoff, label)
		},
	}

	helpers.AddDatabaseFlag(cmd, &db, constants.DefaultDatabasePath)
	cmd.Flags().Uint64Var(&cutoff, "cutoff", constants.DefaultChainCutoff, "Minimum chain count to include")
	cmd.Flags().StringSliceVar(&prefixes, "strip-prefix", nil, "Source path prefix to strip from labels")

	return cmd
}
