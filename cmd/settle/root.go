package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/settle/internal/cli"
	"github.com/aretw0/settle/internal/config"
)

// rootState is shared by every subcommand. It is filled by the root
// PersistentPreRunE before a subcommand runs.
type rootState struct {
	configPath string
	storeURL   string
	logLevel   string

	loader *config.Loader
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	st := &rootState{}
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle consolidates bursts of messages into one",
		Long: `Settle buffers the messages of a conversation in a shared store and releases
them as one consolidated message once the conversation has been quiet for a
configurable wait time.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.load(cmd)
		},
	}

	// Persistent flags (available to all commands)
	cmd.PersistentFlags().StringVar(&st.configPath, "config", config.ConfigFile(), "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&st.storeURL, "store", "", "Store URL, overrides store.url (redis://, memory://, file://, postgres://, dynamodb://)")
	cmd.PersistentFlags().StringVar(&st.logLevel, "log-level", "", "Log level, overrides logging.level")

	cmd.AddCommand(
		newServeCmd(st),
		newPushCmd(st),
		newPollCmd(st),
		newInspectCmd(st),
		newRunCmd(st),
		newMCPCmd(st),
		newConfigCmd(st),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (st *rootState) load(cmd *cobra.Command) error {
	st.loader = config.NewLoader(st.configPath)
	cfg, err := st.loader.Load()
	if err != nil {
		return err
	}
	if st.storeURL != "" {
		cfg.Store.URL = st.storeURL
	}
	if st.logLevel != "" {
		cfg.Logging.Level = st.logLevel
	}
	logger, err := cli.NewLogger(cmd.ErrOrStderr(), cfg.Logging)
	if err != nil {
		return err
	}
	st.cfg = cfg
	st.logger = logger
	return nil
}

func (st *rootState) build(ctx context.Context, opts ...cli.Option) (*cli.App, error) {
	return cli.Build(ctx, st.cfg, append([]cli.Option{cli.WithLogger(st.logger)}, opts...)...)
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
