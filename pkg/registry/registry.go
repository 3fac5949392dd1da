// Package registry opens conversation store backends from a URL.
//
// Built-in schemes:
//
//	redis://[user:pass@]host:port/db   rediss:// for TLS
//	memory://                          process-local, for tests and single replicas
//	file:///var/lib/settle             one JSON file per key, single replica
//	postgres://... postgresql://...    lib/pq DSN
//	dynamodb://table?endpoint=http://localhost:8000
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/settle/internal/logging"
	"github.com/aretw0/settle/pkg/adapters/dynamodb"
	"github.com/aretw0/settle/pkg/adapters/file"
	"github.com/aretw0/settle/pkg/adapters/memory"
	"github.com/aretw0/settle/pkg/adapters/paramstore"
	"github.com/aretw0/settle/pkg/adapters/postgres"
	"github.com/aretw0/settle/pkg/adapters/redis"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/persistence/middleware"
	"github.com/aretw0/settle/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Options tune how a backend is opened.
type Options struct {
	// Prefix namespaces every store key.
	Prefix string
	// PerActivation dials a fresh connection per activation instead of sharing a pool.
	// Only the redis schemes distinguish the two.
	PerActivation bool
	// Password overrides the password in the URL.
	Password string
	// PasswordParam names an SSM parameter holding the password. Ignored when
	// Password is set.
	PasswordParam string
	// Params resolves PasswordParam. Nil uses SSM with the default AWS config.
	Params paramstore.Getter
	// Middlewares wrap every Conn handed out by the backend, first outermost.
	Middlewares []middleware.Middleware
	Logger      *slog.Logger
}

// Backend is an opened store.
type Backend struct {
	Scheme    string
	Connector ports.Connector
	// Locker is nil for backends without a distributed lock.
	Locker ports.DistributedLocker
	close  func() error
}

// Close releases pools and clients held by the backend.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// Opener opens a backend for a parsed URL. opts.Password is already resolved.
type Opener func(ctx context.Context, u *url.URL, opts Options) (*Backend, error)

// Registry maps URL schemes to openers.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		openers: make(map[string]Opener),
	}
}

// Default returns a registry with every built-in scheme registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register("redis", openRedis)
	r.Register("rediss", openRedis)
	r.Register("memory", openMemory)
	r.Register("file", openFile)
	r.Register("postgres", openPostgres)
	r.Register("postgresql", openPostgres)
	r.Register("dynamodb", openDynamo)
	return r
}

// Register adds an opener for scheme.
// If the scheme is already registered, it is overwritten.
func (r *Registry) Register(scheme string, fn Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[strings.ToLower(scheme)] = fn
}

// Schemes lists the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.openers))
	for s := range r.openers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open parses rawURL and opens the backend registered for its scheme.
// Failures are configuration errors.
func (r *Registry) Open(ctx context.Context, rawURL string, opts Options) (*Backend, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, domain.ConfigError("open_store", "", fmt.Errorf("parse store url: %w", err))
	}
	scheme := strings.ToLower(u.Scheme)

	r.mu.RLock()
	fn, ok := r.openers[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ConfigError("open_store", "", fmt.Errorf("unsupported store scheme %q", u.Scheme))
	}

	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Password == "" && opts.PasswordParam != "" {
		password, err := resolvePassword(ctx, opts)
		if err != nil {
			return nil, domain.ConfigError("open_store", "", err)
		}
		opts.Password = password
	}

	b, err := fn(ctx, u, opts)
	if err != nil {
		if domain.KindOf(err) != "" {
			return nil, err
		}
		return nil, domain.ConfigError("open_store", "", err)
	}
	b.Scheme = scheme
	b.Connector = middleware.WrapConnector(b.Connector, opts.Middlewares...)

	opts.Logger.Debug("store opened", "scheme", scheme, "prefix", opts.Prefix, "per_activation", opts.PerActivation)
	return b, nil
}

func resolvePassword(ctx context.Context, opts Options) (string, error) {
	getter := opts.Params
	if getter == nil {
		client, err := paramstore.NewFromDefaultConfig(ctx)
		if err != nil {
			return "", err
		}
		getter = client
	}
	password, err := getter.GetParameter(ctx, opts.PasswordParam)
	if err != nil {
		return "", fmt.Errorf("resolve store password: %w", err)
	}
	return password, nil
}

func openRedis(ctx context.Context, u *url.URL, opts Options) (*Backend, error) {
	clientOpts, err := backend.ParseURL(u.String())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.Password != "" {
		clientOpts.Password = opts.Password
	}
	storeOpts := []redis.Option{redis.WithPrefix(opts.Prefix)}

	if opts.PerActivation {
		return &Backend{Connector: redis.NewConnectorFromOptions(clientOpts, storeOpts...)}, nil
	}

	client := backend.NewClient(clientOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis at %s unreachable: %w", clientOpts.Addr, err)
	}
	connector := redis.NewPooledConnector(client, storeOpts...)
	return &Backend{
		Connector: connector,
		Locker:    redis.NewLocker(client, opts.Prefix),
		close:     connector.Close,
	}, nil
}

func openMemory(_ context.Context, _ *url.URL, _ Options) (*Backend, error) {
	return &Backend{Connector: ports.Static(memory.NewStore())}, nil
}

// openFile accepts file:///abs/dir and file://rel/dir. Like memory, the
// directory is the namespace and the key prefix is not applied.
func openFile(_ context.Context, u *url.URL, _ Options) (*Backend, error) {
	dir := u.Host + u.Path
	if dir == "" {
		return nil, fmt.Errorf("file store url needs a directory")
	}
	return &Backend{Connector: ports.Static(file.New(dir))}, nil
}

func openPostgres(ctx context.Context, u *url.URL, opts Options) (*Backend, error) {
	dsn := *u
	if opts.Password != "" {
		user := ""
		if u.User != nil {
			user = u.User.Username()
		}
		dsn.User = url.UserPassword(user, opts.Password)
	}
	store, err := postgres.New(dsn.String(), postgres.WithPrefix(opts.Prefix))
	if err != nil {
		return nil, err
	}
	if !opts.PerActivation {
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("postgres unreachable: %w", err)
		}
	}
	return &Backend{Connector: ports.Static(store), close: store.Close}, nil
}

func openDynamo(ctx context.Context, u *url.URL, opts Options) (*Backend, error) {
	table := u.Host
	if table == "" {
		table = strings.TrimPrefix(u.Opaque, "//")
	}
	store, err := dynamodb.Open(ctx, table, u.Query().Get("endpoint"), dynamodb.WithPrefix(opts.Prefix))
	if err != nil {
		return nil, err
	}
	return &Backend{Connector: ports.Static(store)}, nil
}
