package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/aretw0/settle/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "runner.poll_interval")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// SupportedSchemes lists the store URL schemes the registry can open.
func SupportedSchemes() []string {
	return []string{"redis", "rediss", "memory", "file", "postgres", "postgresql", "dynamodb"}
}

// Validate checks the Config for invalid values and returns all validation errors found.
// Activation-level requirements (message field, conversation key) are checked per
// activation, since they may arrive with the request.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	u, err := url.Parse(c.Store.URL)
	switch {
	case c.Store.URL == "":
		errs = append(errs, ValidationError{"store.url", c.Store.URL, "is required"})
	case err != nil:
		errs = append(errs, ValidationError{"store.url", c.Store.URL, err.Error()})
	case !slices.Contains(SupportedSchemes(), u.Scheme):
		errs = append(errs, ValidationError{"store.url", u.Scheme, "unsupported scheme, want one of " + strings.Join(SupportedSchemes(), ", ")})
	}

	if c.Store.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Store.EncryptionKey)
		if err != nil || len(key) != 32 {
			errs = append(errs, ValidationError{"store.encryption_key", "<redacted>", "must be 32 bytes, base64 encoded"})
		}
	}
	for i, p := range c.Store.PIIPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, ValidationError{fmt.Sprintf("store.pii_patterns[%d]", i), p, err.Error()})
		}
	}
	if c.Store.LockTTL < 0 {
		errs = append(errs, ValidationError{"store.lock_ttl", c.Store.LockTTL, "must not be negative"})
	}

	if c.Defaults.WaitTimeSeconds < 0 {
		errs = append(errs, ValidationError{"defaults.waitTimeSeconds", c.Defaults.WaitTimeSeconds, "must not be negative"})
	}
	d := c.Defaults.WithDefaults()
	if d.OutputField == d.AllMessagesField {
		errs = append(errs, ValidationError{"defaults.allMessagesField", d.AllMessagesField, "must differ from outputField"})
	}

	if c.Runner.PollInterval <= 0 {
		errs = append(errs, ValidationError{"runner.poll_interval", c.Runner.PollInterval, "must be positive"})
	}
	if c.Runner.MaxPolls < 0 {
		errs = append(errs, ValidationError{"runner.max_polls", c.Runner.MaxPolls, "must not be negative"})
	}
	if c.Runner.Concurrency < 1 {
		errs = append(errs, ValidationError{"runner.concurrency", c.Runner.Concurrency, "must be at least 1"})
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, ValidationError{"logging.level", c.Logging.Level, "must be one of debug, info, warn, error"})
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		errs = append(errs, ValidationError{"logging.format", c.Logging.Format, "must be one of text, json, auto"})
	}

	return errs
}
