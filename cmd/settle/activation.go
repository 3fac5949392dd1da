package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/settle/internal/dto"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/runner"
)

// defaultMessageField is used when neither the config nor --field names one.
const defaultMessageField = "text"

type activationFlags struct {
	id     string
	field  string
	wait   int
	settle bool
	output string
}

func (f *activationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "id", "", "Activation id (default: random uuid)")
	cmd.Flags().StringVar(&f.field, "field", "", "Payload field holding the message (default: defaults.messageField or \"text\")")
	cmd.Flags().IntVar(&f.wait, "wait", 0, "Wait time in seconds (default: defaults.waitTimeSeconds)")
	cmd.Flags().BoolVar(&f.settle, "settle", false, "Keep polling until the conversation is ready or discarded")
	cmd.Flags().StringVarP(&f.output, "output", "o", "json", "Output format: json or yaml")
}

func (f *activationFlags) messageField(defaults domain.Settings) string {
	switch {
	case f.field != "":
		return f.field
	case defaults.MessageField != "":
		return defaults.MessageField
	default:
		return defaultMessageField
	}
}

func (f *activationFlags) activation(key string, defaults domain.Settings, payload domain.Envelope) domain.Activation {
	act := domain.NewActivation(domain.Settings{
		ConversationKey: key,
		MessageField:    f.messageField(defaults),
		WaitTimeSeconds: f.wait,
	}, payload)
	if f.id != "" {
		act.ID = f.id
	}
	return act
}

// runActivation processes act, optionally until settled, and prints the outcome.
func runActivation(cmd *cobra.Command, st *rootState, f *activationFlags, act domain.Activation) error {
	ctx := cmd.Context()
	app, err := st.build(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	poller := runner.NewPoller(app.Engine, app.PollOptions()...)
	out, err := poller.Process(ctx, act)
	if err != nil {
		return err
	}
	if f.settle {
		if out, err = poller.Settle(ctx, act, out); err != nil {
			return err
		}
	}
	return writeOutput(cmd.OutOrStdout(), f.output, dto.FromOutcome(act.ID, out))
}

func newPushCmd(st *rootState) *cobra.Command {
	f := &activationFlags{}
	cmd := &cobra.Command{
		Use:   "push <conversation-key> <message>...",
		Short: "Buffer a message and restart the conversation's window",
		Long: `Buffers a message for a conversation. The words of the message are joined
with spaces. With --settle the command keeps polling and prints the
consolidated outcome instead of the wait envelope.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field := f.messageField(st.cfg.Defaults)
			payload := domain.Envelope{field: strings.Join(args[1:], " ")}
			return runActivation(cmd, st, f, f.activation(args[0], st.cfg.Defaults, payload))
		},
	}
	f.register(cmd)
	return cmd
}

func newPollCmd(st *rootState) *cobra.Command {
	f := &activationFlags{}
	cmd := &cobra.Command{
		Use:   "poll <conversation-key>",
		Short: "Check whether a conversation has settled",
		Long: `Sends a poll check. The outcome is wait while the window is open, ready with
the consolidated text once it elapsed, or discarded when nothing was buffered.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActivation(cmd, st, f, f.activation(args[0], st.cfg.Defaults, domain.Envelope{}.WithPoll()))
		},
	}
	f.register(cmd)
	return cmd
}
