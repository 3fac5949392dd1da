package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/settle"
	"github.com/aretw0/settle/internal/dto"
	"github.com/aretw0/settle/internal/logging"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
	"github.com/aretw0/settle/pkg/runner"
	"github.com/aretw0/settle/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxBodyBytes bounds the size of an activation request.
const MaxBodyBytes = 1 << 20

// Server exposes an engine over HTTP.
type Server struct {
	Engine    ports.Engine
	Connector ports.Connector
	Streams   *StreamManager

	poller   *runner.Poller
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	timeout  time.Duration
	guard    *session.Guard
	interval time.Duration
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics serves gatherer at /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithReadiness makes /ready connect to the store through connector.
func WithReadiness(connector ports.Connector) Option {
	return func(s *Server) {
		s.Connector = connector
	}
}

// WithGuard serializes activations of one conversation.
func WithGuard(guard *session.Guard) Option {
	return func(s *Server) {
		s.guard = guard
	}
}

// WithSettleTimeout bounds how long ?settle=true holds a request. Default 30s.
func WithSettleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPollInterval sets the delay between server-side poll checks for ?settle=true.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine ports.Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine:   engine,
		logger:   logging.NewNop(),
		timeout:  30 * time.Second,
		interval: runner.DefaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	s.poller = runner.NewPoller(engine,
		runner.WithGuard(s.guard),
		runner.WithInterval(s.interval),
		runner.WithLogger(s.logger),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})

	r.Post("/activations", s.ProcessActivation)
	r.Get("/conversations/{key}", s.InspectConversation)
	r.Get("/conversations/{key}/events", s.SubscribeConversation)
	r.Get("/health", s.GetHealth)
	r.Get("/ready", s.GetReady)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Settle API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// ProcessActivation handles the POST /activations request.
func (s *Server) ProcessActivation(w http.ResponseWriter, r *http.Request) {
	var body dto.ActivationRequest
	dec := dto.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		s.logger.Warn("ProcessActivation: Invalid request body", "err", err)
		writeJSON(w, http.StatusBadRequest, dto.ActivationResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	act, err := body.ToDomain()
	if err != nil {
		writeJSON(w, statusFor(err), dto.FromError(body.ID, err))
		return
	}

	out, err := s.poller.Process(r.Context(), act)
	if err != nil {
		writeJSON(w, statusFor(err), dto.FromError(act.ID, err))
		return
	}
	s.publish(act.ID, out)

	if settleRequested(r) && !act.IsPoll() {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		final, err := s.poller.Settle(ctx, act, out)
		if err != nil {
			status := statusFor(err)
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			writeJSON(w, status, dto.FromError(act.ID, err))
			return
		}
		if final != out {
			s.publish(act.ID, final)
		}
		out = final
	}

	w.Header().Set("X-Settle-Channel", out.Channel())
	writeJSON(w, http.StatusOK, dto.FromOutcome(act.ID, out))
}

func settleRequested(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("settle"))
	return err == nil && v
}

func (s *Server) publish(activationID string, out *domain.Outcome) {
	if out.Key == "" || s.Streams.Subscribers(out.Key) == 0 {
		return
	}
	b, err := json.Marshal(dto.FromOutcome(activationID, out))
	if err != nil {
		s.logger.Error("SSE: Failed to encode outcome", "err", err)
		return
	}
	s.Streams.Broadcast(out.Key, string(b))
}

// InspectConversation handles the GET /conversations/{key} request.
func (s *Server) InspectConversation(w http.ResponseWriter, r *http.Request) {
	key := domain.ConversationKey(chi.URLParam(r, "key"))
	snap, err := s.Engine.Inspect(r.Context(), key)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SubscribeConversation handles the GET /conversations/{key}/events request (SSE).
func (s *Server) SubscribeConversation(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	key := chi.URLParam(r, "key")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(key)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: outcome\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetReady handles the GET /ready request.
func (s *Server) GetReady(w http.ResponseWriter, r *http.Request) {
	if s.Connector != nil {
		conn, err := s.Connector.Connect(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		_ = conn.Close()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "settle-http",
		"version":     strings.TrimSpace(settle.Version),
		"api_version": apiVersion,
	})
}

// statusFor maps activation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case domain.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreFailure):
		return http.StatusBadGateway
	case errors.Is(err, runner.ErrNotSettled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
