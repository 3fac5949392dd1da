package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/aretw0/settle/internal/cli"
	"github.com/aretw0/settle/pkg/adapters/mcp"
)

func newMCPCmd(st *rootState) *cobra.Command {
	var (
		transport string
		addr      string
		baseURL   string
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the Model Context Protocol (MCP) server",
		Long: `Starts Settle as an MCP Server, exposing buffer_message, poll_conversation and
inspect_conversation as tools and conversations as resources.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := cli.NewSignalContext(cmd.Context())
			defer sc.Cancel()

			// 1. Initialize Engine
			app, err := st.build(sc)
			if err != nil {
				return err
			}
			defer app.Close()

			// 2. Initialize MCP Server Adapter
			srv := mcp.NewServer(app.Engine, app.PollOptions(), mcp.WithLogger(st.logger))

			// 3. Start Server based on Transport
			switch transport {
			case "stdio":
				// Ensure logs don't corrupt JSON-RPC on Stdout
				log.SetOutput(cmd.ErrOrStderr())
				st.logger.Info("Starting Settle MCP Server (Stdio)")
				return srv.ServeStdio()
			case "sse":
				if baseURL == "" {
					baseURL = "http://localhost" + addr
				}
				st.logger.Info("Starting Settle MCP Server (SSE)", "address", addr)
				if err := srv.ServeSSE(sc, addr, baseURL); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				st.logger.Info("MCP Server stopped gracefully")
				return nil
			default:
				return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	cmd.Flags().StringVar(&addr, "addr", ":8081", "Address to listen on (only for SSE)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL announced to SSE clients (default: http://localhost<addr>)")
	return cmd
}
