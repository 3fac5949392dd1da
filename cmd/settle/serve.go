package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/aretw0/settle/internal/cli"
	"github.com/aretw0/settle/internal/config"
	settlehttp "github.com/aretw0/settle/pkg/adapters/http"
	"github.com/aretw0/settle/pkg/domain"
)

func newServeCmd(st *rootState) *cobra.Command {
	var (
		addr        string
		watchConfig bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Serves the activation API over HTTP, with conversation inspection, SSE
outcome streams, health and readiness probes, Prometheus metrics and the
OpenAPI document.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = st.cfg.Server.Addr
			}
			logger := st.logger

			// 1. Configuration reload
			opts := []cli.Option{}
			if watchConfig {
				err := st.loader.Watch(func(_ *config.Config, err error) {
					if err != nil {
						logger.Warn("Config reload rejected, keeping previous", "err", err)
						return
					}
					logger.Info("Config reloaded")
				})
				if err != nil {
					return err
				}
				opts = append(opts, cli.WithDefaults(func() domain.Settings {
					return st.loader.Current().Defaults
				}))
			}

			// 2. Engine and metrics
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			opts = append(opts, cli.WithMetrics(reg))

			sc := cli.NewSignalContext(cmd.Context())
			defer sc.Cancel()

			app, err := st.build(sc, opts...)
			if err != nil {
				return err
			}
			defer app.Close()

			handler := settlehttp.NewHandler(app.Engine,
				settlehttp.WithLogger(logger),
				settlehttp.WithMetrics(reg),
				settlehttp.WithReadiness(app.Backend.Connector),
				settlehttp.WithGuard(app.Guard),
				settlehttp.WithPollInterval(st.cfg.Runner.PollInterval),
			)

			// 3. Serve until interrupted
			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Channel to listen for errors coming from the listener.
			serverErrors := make(chan error, 1)
			go func() {
				logger.Info("Starting Settle Server", "address", listener.Addr().String(), "store", app.Backend.Scheme)
				serverErrors <- srv.Serve(listener)
			}()

			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-sc.Done():
				logger.Info("Start shutdown", "signal", sc.Signal())

				// Give outstanding requests a deadline for completion.
				timeout := st.cfg.Server.ShutdownTimeout
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()

				if err := srv.Shutdown(ctx); err != nil {
					logger.Error("Graceful shutdown did not complete", "timeout", timeout, "err", err)
					return srv.Close()
				}
				logger.Info("Settle Server stopped gracefully")
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (default: server.addr)")
	cmd.Flags().BoolVar(&watchConfig, "watch-config", false, "Reload activation defaults when the config file changes")
	return cmd
}
