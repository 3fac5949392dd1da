package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/settle"
	"github.com/aretw0/settle/internal/dto"
	"github.com/aretw0/settle/internal/logging"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
	"github.com/aretw0/settle/pkg/runner"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	messageField       = "text"
	conversationPrefix = "settle://conversations/"
)

// BufferArgs are the arguments of buffer_message.
type BufferArgs struct {
	ConversationKey string `json:"conversation_key"`
	Text            string `json:"text"`
	WaitTimeSeconds int    `json:"wait_time_seconds,omitempty"`
}

// PollArgs are the arguments of poll_conversation and inspect_conversation.
type PollArgs struct {
	ConversationKey string `json:"conversation_key"`
	WaitTimeSeconds int    `json:"wait_time_seconds,omitempty"`
	// Settle keeps polling until the conversation is ready or discarded.
	Settle bool `json:"settle,omitempty"`
}

// Server exposes an engine as MCP tools.
type Server struct {
	engine    ports.Engine
	poller    *runner.Poller
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance. pollOpts tune the poller behind
// poll_conversation with settle=true.
func NewServer(engine ports.Engine, pollOpts []runner.Option, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("settle-mcp", strings.TrimSpace(settle.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.poller = runner.NewPoller(engine, append([]runner.Option{runner.WithLogger(s.logger)}, pollOpts...)...)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: buffer_message
	bufferTool := mcp.NewTool("buffer_message",
		mcp.WithDescription("Buffer a message for a conversation and restart its wait window."),
		mcp.WithString("conversation_key", mcp.Required(), mcp.Description("Conversation identifier")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Raw message text")),
		mcp.WithNumber("wait_time_seconds", mcp.Description("Wait window in seconds (default 5)")),
		mcp.WithOutputSchema[dto.ActivationResponse](),
	)
	s.mcpServer.AddTool(bufferTool, mcp.NewStructuredToolHandler(s.handleBuffer))

	// TOOL: poll_conversation
	pollTool := mcp.NewTool("poll_conversation",
		mcp.WithDescription("Check whether a conversation settled. Returns ready with the consolidated text, wait, or discarded."),
		mcp.WithString("conversation_key", mcp.Required(), mcp.Description("Conversation identifier")),
		mcp.WithNumber("wait_time_seconds", mcp.Description("Wait window in seconds, as used when buffering")),
		mcp.WithBoolean("settle", mcp.Description("Keep polling until the conversation settles")),
		mcp.WithOutputSchema[dto.ActivationResponse](),
	)
	s.mcpServer.AddTool(pollTool, mcp.NewStructuredToolHandler(s.handlePoll))

	// TOOL: inspect_conversation
	inspectTool := mcp.NewTool("inspect_conversation",
		mcp.WithDescription("Read the buffered messages and window state of a conversation without changing it."),
		mcp.WithString("conversation_key", mcp.Required(), mcp.Description("Conversation identifier")),
		mcp.WithOutputSchema[domain.Snapshot](),
	)
	s.mcpServer.AddTool(inspectTool, mcp.NewStructuredToolHandler(s.handleInspect))
}

func settingsFor(key string, wait int) domain.Settings {
	return domain.Settings{
		ConversationKey: key,
		MessageField:    messageField,
		WaitTimeSeconds: wait,
	}
}

func (s *Server) handleBuffer(ctx context.Context, _ mcp.CallToolRequest, args BufferArgs) (dto.ActivationResponse, error) {
	act := domain.NewActivation(settingsFor(args.ConversationKey, args.WaitTimeSeconds), domain.Envelope{messageField: args.Text})
	out, err := s.poller.Process(ctx, act)
	if err != nil {
		return dto.ActivationResponse{}, fmt.Errorf("buffer failed: %w", err)
	}
	return dto.FromOutcome(act.ID, out), nil
}

func (s *Server) handlePoll(ctx context.Context, _ mcp.CallToolRequest, args PollArgs) (dto.ActivationResponse, error) {
	act := domain.NewActivation(settingsFor(args.ConversationKey, args.WaitTimeSeconds), domain.Envelope{}.WithPoll())
	out, err := s.poller.Process(ctx, act)
	if err != nil {
		return dto.ActivationResponse{}, fmt.Errorf("poll failed: %w", err)
	}
	if args.Settle {
		out, err = s.poller.Settle(ctx, act, out)
		if err != nil {
			return dto.ActivationResponse{}, fmt.Errorf("poll failed: %w", err)
		}
	}
	return dto.FromOutcome(act.ID, out), nil
}

func (s *Server) handleInspect(ctx context.Context, _ mcp.CallToolRequest, args PollArgs) (domain.Snapshot, error) {
	snap, err := s.engine.Inspect(ctx, domain.ConversationKey(args.ConversationKey))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("inspect failed: %w", err)
	}
	return *snap, nil
}

func (s *Server) registerResources() {
	// EXPOSE: settle://conversations/{key}
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(conversationPrefix+"{key}", "Conversation snapshot",
		mcp.WithTemplateMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		key := strings.TrimPrefix(request.Params.URI, conversationPrefix)
		if key == request.Params.URI {
			return nil, errors.New("unknown resource")
		}
		snap, err := s.engine.Inspect(ctx, domain.ConversationKey(key))
		if err != nil {
			return nil, fmt.Errorf("failed to inspect conversation: %w", err)
		}
		jsonBytes, _ := json.Marshal(snap)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
