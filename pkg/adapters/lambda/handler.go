// Package lambda runs activations inside AWS Lambda.
//
// Two event shapes are accepted. Handle takes an activation document
// ({"id", "settings", "payload"}) as sent by Step Functions or a direct
// Invoke, and returns the outcome as the function result. HandleAPIGateway
// takes an API Gateway proxy request whose body is the same document.
package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/aretw0/settle/internal/dto"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
)

// Handler adapts a ports.Engine to Lambda invocations.
type Handler struct {
	engine ports.Engine
	logger *slog.Logger
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the logger used for rejected invocations.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler validates dependencies and returns a Handler.
func NewHandler(engine ports.Engine, opts ...Option) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("lambda: engine must not be nil")
	}
	h := &Handler{engine: engine}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h, nil
}

// Handle processes one activation document. Failures are returned as errors
// so the invoker can retry or route them; the response still carries the
// activation id and conversation key.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) (dto.ActivationResponse, error) {
	var doc map[string]any
	if err := dto.Unmarshal(raw, &doc); err != nil {
		err = domain.ConfigError("decode_event", "", err)
		return dto.FromError("", err), err
	}
	act, err := dto.DecodeActivation(doc)
	if err != nil {
		return dto.FromError("", err), err
	}
	return h.process(ctx, act)
}

// HandleAPIGateway processes an activation posted through API Gateway. Errors
// are mapped to status codes and never returned, so the gateway relays them.
func (h *Handler) HandleAPIGateway(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body dto.ActivationRequest
	if err := dto.Unmarshal([]byte(req.Body), &body); err != nil {
		h.logger.Warn("HandleAPIGateway: Invalid request body", "err", err)
		return respond(http.StatusBadRequest, dto.ActivationResponse{Error: "invalid request body: " + err.Error()}), nil
	}
	if body.ID == "" {
		body.ID = req.RequestContext.RequestID
	}

	act, err := body.ToDomain()
	if err != nil {
		return respond(statusFor(err), dto.FromError(body.ID, err)), nil
	}
	resp, err := h.process(ctx, act)
	if err != nil {
		return respond(statusFor(err), resp), nil
	}
	out := respond(http.StatusOK, resp)
	out.Headers["X-Settle-Channel"] = resp.Channel
	return out, nil
}

func (h *Handler) process(ctx context.Context, act domain.Activation) (dto.ActivationResponse, error) {
	out, err := h.engine.Process(ctx, act)
	if err != nil {
		h.logger.Error("activation failed", "activation_id", act.ID, "kind", domain.KindOf(err), "err", err)
		return dto.FromError(act.ID, err), err
	}
	return dto.FromOutcome(act.ID, out), nil
}

func respond(status int, body dto.ActivationResponse) events.APIGatewayProxyResponse {
	b, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":"failed to encode response"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(b),
	}
}

func statusFor(err error) int {
	switch {
	case domain.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
