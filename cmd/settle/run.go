package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/settle/internal/cli"
	"github.com/aretw0/settle/pkg/runner"
)

func newRunCmd(st *rootState) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process NDJSON activations from stdin",
		Long: `Reads one activation per line ({"id", "settings", "payload"}) from stdin and
writes one outcome per line to stdout. Every raw message that waits is followed
by poll checks until its conversation settles, and the settled outcome is
written as another line. The command returns once stdin is closed and every
conversation has settled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := cli.NewSignalContext(cmd.Context())
			defer sc.Cancel()

			app, err := st.build(sc)
			if err != nil {
				return err
			}
			defer app.Close()

			opts := app.PollOptions()
			if interval > 0 {
				opts = append(opts, runner.WithInterval(interval))
			}
			return runner.NewRunner(app.Engine, opts...).Run(sc, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between poll checks (default: runner.poll_interval)")
	return cmd
}
