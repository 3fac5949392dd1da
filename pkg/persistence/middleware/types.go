package middleware

import (
	"context"

	"github.com/aretw0/settle/pkg/ports"
)

// Middleware allows wrapping a ConversationStore to add behavior.
type Middleware func(ports.ConversationStore) ports.ConversationStore

// Chain applies mws so the first one is outermost.
func Chain(store ports.ConversationStore, mws ...Middleware) ports.ConversationStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// WrapConnector applies mws to every Conn handed out by connector. Closing the
// wrapped Conn closes the original one.
func WrapConnector(connector ports.Connector, mws ...Middleware) ports.Connector {
	if len(mws) == 0 {
		return connector
	}
	return ports.ConnectorFunc(func(ctx context.Context) (ports.Conn, error) {
		conn, err := connector.Connect(ctx)
		if err != nil {
			return nil, err
		}
		wrapped := Chain(conn, mws...)
		if d, ok := wrapped.(ports.Drainer); ok {
			return drainConn{wrappedConn{wrapped, conn}, d}, nil
		}
		return wrappedConn{wrapped, conn}, nil
	})
}

type wrappedConn struct {
	ports.ConversationStore
	raw ports.Conn
}

func (c wrappedConn) Close() error { return c.raw.Close() }

type drainConn struct {
	wrappedConn
	ports.Drainer
}
