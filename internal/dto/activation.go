package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/aretw0/settle/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// waitTimeKey is the settings key that must be a whole number of seconds.
const waitTimeKey = "waitTimeSeconds"

// ActivationRequest is the wire form of an activation, shared by the HTTP, MCP
// and Lambda drivers. Settings keys follow the camelCase names of the node
// parameters (conversationKey, messageField, waitTimeSeconds, ...).
type ActivationRequest struct {
	ID       string         `json:"id,omitempty" mapstructure:"id"`
	Settings map[string]any `json:"settings,omitempty" mapstructure:"settings"`
	Payload  map[string]any `json:"payload" mapstructure:"payload"`
}

// ActivationResponse is the wire form of an outcome.
type ActivationResponse struct {
	ActivationID string         `json:"activationId" yaml:"activation_id"`
	Channel      string         `json:"channel,omitempty" yaml:"channel,omitempty"`
	Reason       string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Key          string         `json:"conversationKey,omitempty" yaml:"conversation_key,omitempty"`
	Payload      map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
	Error        string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewDecoder returns a JSON decoder that keeps numbers as json.Number, so ids
// and other numeric payload fields pass through without float rounding.
func NewDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// Unmarshal decodes data like json.Unmarshal, keeping numbers as json.Number.
func Unmarshal(data []byte, v any) error {
	dec := NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after the JSON document")
	}
	return nil
}

// DecodeSettings converts loose settings into domain.Settings. Input is weakly
// typed: "5" and 5.0 are both a valid waitTimeSeconds, 2.5 is not. Unknown keys
// are rejected.
func DecodeSettings(raw map[string]any) (domain.Settings, error) {
	var s domain.Settings
	if len(raw) == 0 {
		return s, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       wholeNumberHook,
	})
	if err != nil {
		return s, err
	}
	if err := dec.Decode(raw); err != nil {
		return s, domain.ConfigError("decode_settings", "", err)
	}
	// Zero means "use the default" only when the key is absent.
	if hasKey(raw, waitTimeKey) && s.WaitTimeSeconds < 1 {
		return s, domain.ConfigError("decode_settings", "", fmt.Errorf("%s must be >= 1, got %d", waitTimeKey, s.WaitTimeSeconds))
	}
	return s, nil
}

// wholeNumberHook rejects fractional numbers bound for integer fields, which a
// weak decode would truncate.
func wholeNumberHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return data, nil
	}

	var f float64
	switch v := data.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		parsed, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", v.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return data, nil
		}
		f = parsed
	default:
		return data, nil
	}
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("%v is not a whole number", data)
	}
	return int64(f), nil
}

func hasKey(raw map[string]any, key string) bool {
	for k := range raw {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// DecodeActivation builds a domain activation from a loosely typed document,
// e.g. an MCP tool argument map or a Lambda event.
func DecodeActivation(raw map[string]any) (domain.Activation, error) {
	var req ActivationRequest
	if err := mapstructure.Decode(raw, &req); err != nil {
		return domain.Activation{}, domain.ConfigError("decode_activation", "", err)
	}
	return req.ToDomain()
}

// ToDomain converts the request, generating an id when the caller sent none.
func (r ActivationRequest) ToDomain() (domain.Activation, error) {
	settings, err := DecodeSettings(r.Settings)
	if err != nil {
		return domain.Activation{}, err
	}
	act := domain.NewActivation(settings, domain.Envelope(r.Payload))
	if r.ID != "" {
		act.ID = r.ID
	}
	return act, nil
}

// FromOutcome renders an outcome for the wire.
func FromOutcome(activationID string, out *domain.Outcome) ActivationResponse {
	resp := ActivationResponse{
		ActivationID: activationID,
		Channel:      out.Channel(),
		Reason:       string(out.Reason),
		Key:          out.Key,
		Payload:      out.Payload,
	}
	if out.Failure != nil {
		resp.Error = out.Failure.Error()
	}
	return resp
}

// String is used in log lines.
func (r ActivationRequest) String() string {
	return fmt.Sprintf("activation(id=%s, fields=%d)", r.ID, len(r.Payload))
}

// FromError renders a failed activation for the wire.
func FromError(activationID string, err error) ActivationResponse {
	resp := ActivationResponse{
		ActivationID: activationID,
		Error:        err.Error(),
	}
	var de *domain.Error
	if errors.As(err, &de) {
		resp.Key = de.Key
	}
	return resp
}
