package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Config holds the connection parameters of the store. Only this adapter reads it.
type Config struct {
	Host     string
	Port     int
	TLS      bool
	DB       int
	Username string
	Password string

	// DialTimeout bounds connection setup. Zero keeps the client default.
	DialTimeout time.Duration
}

// Options translates the config into client options.
func (c Config) Options() *backend.Options {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 6379
	}
	opts := &backend.Options{
		Addr:        net.JoinHostPort(host, strconv.Itoa(port)),
		Username:    c.Username,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: c.DialTimeout,
	}
	if c.TLS {
		opts.TLSConfig = &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		}
	}
	return opts
}

// Connector implements ports.Connector.
//
// In the default mode every Connect dials a fresh client, pings it and closes it
// when the activation releases the Conn. In pooled mode a shared client is handed
// out and Close leaves it open.
type Connector struct {
	opts      *backend.Options
	shared    *backend.Client
	storeOpts []Option
}

var _ ports.Connector = (*Connector)(nil)

// NewConnector returns a per-activation connector for cfg.
func NewConnector(cfg Config, opts ...Option) *Connector {
	return NewConnectorFromOptions(cfg.Options(), opts...)
}

// NewConnectorFromOptions is NewConnector for pre-built client options, e.g. from
// backend.ParseURL.
func NewConnectorFromOptions(clientOpts *backend.Options, opts ...Option) *Connector {
	return &Connector{opts: clientOpts, storeOpts: opts}
}

// NewPooledConnector hands out handles backed by client's pool. Handles never
// close client; Connector.Close does.
func NewPooledConnector(client *backend.Client, opts ...Option) *Connector {
	return &Connector{shared: client, storeOpts: opts}
}

// Connect acquires a handle for one activation. A store that cannot be reached
// is reported as a configuration error.
func (c *Connector) Connect(ctx context.Context) (ports.Conn, error) {
	if c.shared != nil {
		return &conn{Store: NewFromClient(c.shared, c.storeOpts...)}, nil
	}

	store := NewFromClient(backend.NewClient(c.opts), c.storeOpts...)
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, domain.ConfigError("connect", "", fmt.Errorf("redis at %s unreachable: %w", c.opts.Addr, err))
	}
	return &conn{Store: store, owned: true}, nil
}

// Close releases the shared client, if any.
func (c *Connector) Close() error {
	if c.shared != nil {
		return c.shared.Close()
	}
	return nil
}

type conn struct {
	*Store
	owned bool
}

func (c *conn) Close() error {
	if !c.owned {
		return nil
	}
	return c.Store.Close()
}
