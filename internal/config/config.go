package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/settle/pkg/domain"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SETTLE_STORE_URL.
const EnvPrefix = "SETTLE"

// Config is the process configuration shared by every driver.
//
// Note: This struct is for configuration file persistence and viper loading.
// Per-activation settings arriving over the wire are decoded by internal/dto.
type Config struct {
	Store    StoreConfig     `mapstructure:"store" yaml:"store"`
	Defaults domain.Settings `mapstructure:"defaults" yaml:"defaults"`
	Engine   EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Runner   RunnerConfig    `mapstructure:"runner" yaml:"runner"`
	Server   ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// StoreConfig selects and tunes the conversation store.
type StoreConfig struct {
	// URL selects the backend: redis://, rediss://, memory://, file:///dir, postgres://, dynamodb://table.
	URL string `mapstructure:"url" yaml:"url"`
	// Prefix namespaces every key written by this deployment.
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	// PerActivation opens and closes a store connection for every activation
	// instead of sharing a pool.
	PerActivation bool `mapstructure:"per_activation" yaml:"per_activation"`
	// PasswordParam names an SSM parameter holding the store password.
	PasswordParam string `mapstructure:"password_param" yaml:"password_param"`
	// EncryptionKey (base64, 32 bytes) enables AES-GCM encryption of buffered messages.
	EncryptionKey string `mapstructure:"encryption_key" yaml:"encryption_key"`
	// RedactLogs masks buffered message values in store-level debug logs.
	RedactLogs bool `mapstructure:"redact_logs" yaml:"redact_logs"`
	// PIIPatterns are regular expressions masked in messages before they are buffered.
	PIIPatterns []string `mapstructure:"pii_patterns" yaml:"pii_patterns"`
	// LockTTL enables the per-key distributed guard when positive.
	LockTTL time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

// EngineConfig holds the engine-level switches.
type EngineConfig struct {
	AtomicDrain    bool `mapstructure:"atomic_drain" yaml:"atomic_drain"`
	ContinueOnFail bool `mapstructure:"continue_on_fail" yaml:"continue_on_fail"`
}

// RunnerConfig tunes the polling driver.
type RunnerConfig struct {
	// PollInterval is the delay before a wait envelope is fed back.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// MaxPolls bounds the poll checks per conversation; zero means unbounded.
	MaxPolls int `mapstructure:"max_polls" yaml:"max_polls"`
	// Concurrency bounds in-flight activations.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// ServerConfig configures the HTTP driver.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			URL: "redis://localhost:6379/0",
		},
		Defaults: domain.Settings{
			OutputField:      domain.DefaultOutputField,
			AllMessagesField: domain.DefaultAllMessagesField,
			WaitTimeSeconds:  domain.DefaultWaitTimeSeconds,
		},
		Runner: RunnerConfig{
			PollInterval: time.Second,
			MaxPolls:     0,
			Concurrency:  16,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// SetDefaults registers default values with v.
// Every key is registered so environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Store defaults
	v.SetDefault("store.url", defaults.Store.URL)
	v.SetDefault("store.prefix", defaults.Store.Prefix)
	v.SetDefault("store.per_activation", defaults.Store.PerActivation)
	v.SetDefault("store.password_param", defaults.Store.PasswordParam)
	v.SetDefault("store.encryption_key", defaults.Store.EncryptionKey)
	v.SetDefault("store.redact_logs", defaults.Store.RedactLogs)
	v.SetDefault("store.pii_patterns", defaults.Store.PIIPatterns)
	v.SetDefault("store.lock_ttl", defaults.Store.LockTTL)

	// Activation defaults
	v.SetDefault("defaults.conversationKey", defaults.Defaults.ConversationKey)
	v.SetDefault("defaults.conversationKeyField", defaults.Defaults.ConversationKeyField)
	v.SetDefault("defaults.messageField", defaults.Defaults.MessageField)
	v.SetDefault("defaults.outputField", defaults.Defaults.OutputField)
	v.SetDefault("defaults.allMessagesField", defaults.Defaults.AllMessagesField)
	v.SetDefault("defaults.waitTimeSeconds", defaults.Defaults.WaitTimeSeconds)

	// Engine defaults
	v.SetDefault("engine.atomic_drain", defaults.Engine.AtomicDrain)
	v.SetDefault("engine.continue_on_fail", defaults.Engine.ContinueOnFail)

	// Runner defaults
	v.SetDefault("runner.poll_interval", defaults.Runner.PollInterval)
	v.SetDefault("runner.max_polls", defaults.Runner.MaxPolls)
	v.SetDefault("runner.concurrency", defaults.Runner.Concurrency)

	// Server defaults
	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
}

// Loader reads configuration from defaults, an optional YAML file and
// SETTLE_* environment variables, and keeps the latest valid result.
type Loader struct {
	v *viper.Viper

	mu      sync.RWMutex
	current *Config
}

// NewLoader prepares a loader. An empty path skips the file layer.
func NewLoader(path string) *Loader {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return &Loader{v: v}
}

// Load reads every layer and validates the result.
func (l *Loader) Load() (*Config, error) {
	if l.v.ConfigFileUsed() != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", l.v.ConfigFileUsed(), err)
		}
	}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.store(cfg)
	return cfg, nil
}

// Current returns the last successfully loaded configuration, or the defaults.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return Default()
	}
	return l.current
}

// Watch reloads the file on change. onChange receives the new configuration, or
// the error that kept the previous one in place.
func (l *Loader) Watch(onChange func(*Config, error)) error {
	if l.v.ConfigFileUsed() == "" {
		return errors.New("no config file to watch")
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err == nil {
			l.store(cfg)
		}
		if onChange != nil {
			onChange(cfg, err)
		}
	})
	l.v.WatchConfig()
	return nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

func (l *Loader) store(cfg *Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "settle")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".settle"
	}
	return filepath.Join(home, ".config", "settle")
}

// ConfigFile returns the default config file path, or "" when it does not exist.
func ConfigFile() string {
	path := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
