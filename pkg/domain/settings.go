package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Settings is the configuration surface of one activation. It is read once at
// the start of the activation and never cached by the engine.
type Settings struct {
	// ConversationKey identifies the conversation. When empty, the key is read
	// from the payload field named by ConversationKeyField.
	ConversationKey      string `json:"conversationKey,omitempty" yaml:"conversationKey,omitempty" mapstructure:"conversationKey"`
	ConversationKeyField string `json:"conversationKeyField,omitempty" yaml:"conversationKeyField,omitempty" mapstructure:"conversationKeyField"`

	// MessageField names the payload field holding the raw text.
	MessageField string `json:"messageField" yaml:"messageField" mapstructure:"messageField"`

	OutputField      string `json:"outputField,omitempty" yaml:"outputField,omitempty" mapstructure:"outputField"`
	AllMessagesField string `json:"allMessagesField,omitempty" yaml:"allMessagesField,omitempty" mapstructure:"allMessagesField"`

	// WaitTimeSeconds is the debounce window. Zero selects the default.
	WaitTimeSeconds int `json:"waitTimeSeconds,omitempty" yaml:"waitTimeSeconds,omitempty" mapstructure:"waitTimeSeconds"`
}

// WithDefaults returns a copy with unset optional fields filled in.
func (s Settings) WithDefaults() Settings {
	if s.OutputField == "" {
		s.OutputField = DefaultOutputField
	}
	if s.AllMessagesField == "" {
		s.AllMessagesField = DefaultAllMessagesField
	}
	if s.WaitTimeSeconds == 0 {
		s.WaitTimeSeconds = DefaultWaitTimeSeconds
	}
	return s
}

// Merge overlays the non-zero fields of override on s.
func (s Settings) Merge(override Settings) Settings {
	if override.ConversationKey != "" {
		s.ConversationKey = override.ConversationKey
	}
	if override.ConversationKeyField != "" {
		s.ConversationKeyField = override.ConversationKeyField
	}
	if override.MessageField != "" {
		s.MessageField = override.MessageField
	}
	if override.OutputField != "" {
		s.OutputField = override.OutputField
	}
	if override.AllMessagesField != "" {
		s.AllMessagesField = override.AllMessagesField
	}
	if override.WaitTimeSeconds != 0 {
		s.WaitTimeSeconds = override.WaitTimeSeconds
	}
	return s
}

// Validate checks the fields that have no default.
func (s Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.MessageField) == "" {
		errs = append(errs, errors.New("messageField is required"))
	}
	if s.ConversationKey == "" && strings.TrimSpace(s.ConversationKeyField) == "" {
		errs = append(errs, errors.New("conversationKey or conversationKeyField is required"))
	}
	if s.WaitTimeSeconds < 1 {
		errs = append(errs, fmt.Errorf("waitTimeSeconds must be >= 1, got %d", s.WaitTimeSeconds))
	}
	if s.OutputField == s.AllMessagesField {
		errs = append(errs, fmt.Errorf("outputField and allMessagesField must differ (%q)", s.OutputField))
	}
	return errors.Join(errs...)
}

// WaitTime is the window as a duration.
func (s Settings) WaitTime() time.Duration {
	return time.Duration(s.WaitTimeSeconds) * time.Second
}

// ResolveKey returns the conversation key for payload.
func (s Settings) ResolveKey(payload Envelope) (ConversationKey, error) {
	if s.ConversationKey != "" {
		return ConversationKey(s.ConversationKey), nil
	}
	raw, ok := payload[s.ConversationKeyField]
	if !ok {
		return "", fmt.Errorf("conversation key field %q is missing from the payload", s.ConversationKeyField)
	}
	var key ConversationKey
	switch v := raw.(type) {
	case string:
		key = ConversationKey(v)
	case fmt.Stringer:
		key = ConversationKey(v.String())
	case float64:
		key = ConversationKey(strconv.FormatFloat(v, 'f', -1, 64))
	case float32:
		key = ConversationKey(strconv.FormatFloat(float64(v), 'f', -1, 32))
	case int, int32, int64, uint, uint32, uint64:
		key = ConversationKey(fmt.Sprint(v))
	default:
		return "", fmt.Errorf("conversation key field %q has unsupported type %T", s.ConversationKeyField, raw)
	}
	if err := key.Validate(); err != nil {
		return "", fmt.Errorf("conversation key field %q: %w", s.ConversationKeyField, err)
	}
	return key, nil
}
