package main

import (
	"github.com/spf13/cobra"
)

const redacted = "<redacted>"

func newConfigCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Prints the configuration after defaults, the config file, SETTLE_* environment
variables and flags were applied, as YAML. The encryption key is redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *st.cfg
			if cfg.Store.EncryptionKey != "" {
				cfg.Store.EncryptionKey = redacted
			}
			return writeOutput(cmd.OutOrStdout(), "yaml", cfg)
		},
	}
}
