package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/settle/pkg/domain"
)

func newInspectCmd(st *rootState) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "inspect <conversation-key>",
		Short: "Show the buffered messages and window state of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := st.build(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			snap, err := app.Engine.Inspect(ctx, domain.ConversationKey(args[0]))
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, snap)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: json or yaml")
	return cmd
}
