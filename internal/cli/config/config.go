// Package config implements the 'instrument config' commands.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aeppert/bro-plugin-instrumentation/internal/config"
)

// NewConfigCmd creates the 'config' command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate instrumentation configuration",
		Long: `Inspect and validate the instrumentation configuration.

The configuration file is resolved from --config, then $INSTRUMENT_CONFIG,
then instrument.yaml in the working directory. INSTRUMENT_* environment
variables override file values (for example INSTRUMENT_COLLECTION_TIMER).

Examples:
  instrument config show
  instrument config validate /etc/zeek/instrument.yaml
  instrument config schema > instrument.schema.json
`,
	}

	cmd.AddCommand(NewShowCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}

// NewShowCmd creates the 'config show' command.
func NewShowCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults and environment overrides are applied.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(path).Load()
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&path, "config", "", "Configuration file")
	return cmd
}

// NewValidateCmd creates the 'config validate' command.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			loader := config.NewLoader(path)

			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("%s is invalid:\n%w", loader.Path(), err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", loader.Path())
			return err
		},
	}
	return cmd
}

// NewSchemaCmd creates the 'config schema' command.
func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.JSONSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
