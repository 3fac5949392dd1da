package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/settle"
	"github.com/aretw0/settle/internal/config"
	"github.com/aretw0/settle/pkg/adapters/paramstore"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/observability"
	"github.com/aretw0/settle/pkg/persistence/middleware"
	"github.com/aretw0/settle/pkg/registry"
	"github.com/aretw0/settle/pkg/runner"
	"github.com/aretw0/settle/pkg/session"
)

// App is a wired engine together with the resources it holds.
type App struct {
	Config  *config.Config
	Engine  *settle.Engine
	Backend *registry.Backend
	Guard   *session.Guard
	// Metrics is nil unless WithMetrics was given.
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

type buildOptions struct {
	logger   *slog.Logger
	registry *registry.Registry
	params   paramstore.Getter
	metrics  prometheus.Registerer
	defaults func() domain.Settings
}

// Option configures Build.
type Option func(*buildOptions)

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// WithRegistry replaces registry.Default().
func WithRegistry(r *registry.Registry) Option {
	return func(o *buildOptions) { o.registry = r }
}

// WithParams resolves store.password_param without SSM.
func WithParams(params paramstore.Getter) Option {
	return func(o *buildOptions) { o.params = params }
}

// WithMetrics registers activation metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *buildOptions) { o.metrics = reg }
}

// WithDefaults overrides the activation defaults taken from the config,
// e.g. with a loader that reloads them.
func WithDefaults(fn func() domain.Settings) Option {
	return func(o *buildOptions) { o.defaults = fn }
}

// Build opens the configured store and wires an engine over it.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = NewNopLogger()
	}
	if o.registry == nil {
		o.registry = registry.Default()
	}
	if o.defaults == nil {
		defaults := cfg.Defaults
		o.defaults = func() domain.Settings { return defaults }
	}

	// 1. Store middlewares
	mws, err := storeMiddlewares(cfg.Store, o.logger)
	if err != nil {
		return nil, err
	}

	// 2. Backend
	backend, err := o.registry.Open(ctx, cfg.Store.URL, registry.Options{
		Prefix:        cfg.Store.Prefix,
		PerActivation: cfg.Store.PerActivation,
		PasswordParam: cfg.Store.PasswordParam,
		Params:        o.params,
		Middlewares:   mws,
		Logger:        o.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening store: %w", err)
	}

	// 3. Hooks
	hooks := []domain.LifecycleHooks{createDebugHooks(o.logger)}
	var metrics *observability.Metrics
	if o.metrics != nil {
		metrics = observability.NewMetrics(o.metrics)
		hooks = append(hooks, metrics.Hooks())
	}

	// 4. Engine
	engine, err := settle.New(backend.Connector,
		settle.WithLogger(o.logger),
		settle.WithLifecycleHooks(domain.Combine(hooks...)),
		settle.WithDefaults(o.defaults),
		settle.WithAtomicDrain(cfg.Engine.AtomicDrain),
		settle.WithContinueOnFail(cfg.Engine.ContinueOnFail),
	)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}

	// 5. Guard
	guardOpts := []session.Option{session.WithLogger(o.logger)}
	if cfg.Store.LockTTL > 0 && backend.Locker != nil {
		guardOpts = append(guardOpts, session.WithLocker(backend.Locker), session.WithLockTTL(cfg.Store.LockTTL))
	}

	return &App{
		Config:  cfg,
		Engine:  engine,
		Backend: backend,
		Guard:   session.NewGuard(guardOpts...),
		Metrics: metrics,
		Logger:  o.logger,
	}, nil
}

// PollOptions configures a poller or runner from the runner section.
func (a *App) PollOptions() []runner.Option {
	return []runner.Option{
		runner.WithInterval(a.Config.Runner.PollInterval),
		runner.WithMaxPolls(a.Config.Runner.MaxPolls),
		runner.WithConcurrency(a.Config.Runner.Concurrency),
		runner.WithLogger(a.Logger),
		runner.WithGuard(a.Guard),
	}
}

// Close releases the store backend.
func (a *App) Close() error {
	return a.Backend.Close()
}

// storeMiddlewares builds the chain in the order values reach the store:
// masking, then encryption, then debug logging of what is actually written.
func storeMiddlewares(cfg config.StoreConfig, logger *slog.Logger) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		for _, p := range cfg.PIIPatterns {
			if _, err := regexp.Compile(p); err != nil {
				return nil, domain.ConfigError("pii_patterns", "", err)
			}
		}
		mws = append(mws, middleware.NewPIIMiddleware(cfg.PIIPatterns))
	}
	if cfg.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
		if err != nil || len(key) != 32 {
			return nil, domain.ConfigError("encryption_key", "", errors.New("must be 32 bytes, base64 encoded"))
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		mws = append(mws, middleware.NewLoggingMiddleware(logger, cfg.RedactLogs))
	}
	return mws, nil
}
