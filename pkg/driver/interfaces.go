package driver

import "context"

// Conn is the low-level connection contract a driver supplies. The handle
// layer owns all bookkeeping (connection flag, transaction flag, last query);
// a Conn only performs the backend I/O it is asked for.
//
// Implementations that do not support an operation should embed
// UnimplementedConn so unsupported calls fail with apperrors.ErrNotImplemented
// instead of panicking.
type Conn interface {
	// Ping probes backend liveness and returns a health indicator,
	// typically round-trip latency in milliseconds.
	Ping(ctx context.Context) (float64, error)

	// Reconnect re-establishes the backend session. Drivers without real
	// reconnection semantics may return nil; the handle flips its
	// connected flag regardless.
	Reconnect(ctx context.Context) error

	// Disconnect tears down the backend session.
	Disconnect(ctx context.Context) error

	// Prepare readies a statement on the backend.
	Prepare(ctx context.Context, query string) error

	// Execute runs a statement with optional bind values and returns the
	// affected row count.
	Execute(ctx context.Context, query string, binds ...any) (int64, error)

	// Commit and Rollback end the current backend transaction. The handle
	// resets its transaction flag before delegating, so these run even
	// when backend state is uncertain.
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Driver creates connections for one backend from a generic config map.
// Implementations register themselves via Register in an init() function.
type Driver interface {
	// Name returns the registry key, e.g. "postgres".
	Name() string

	// Open establishes a new backend connection.
	Open(ctx context.Context, config map[string]any) (Conn, error)
}

// Connector binds a Driver to one set of connection arguments, yielding new
// connections on demand. Pools hold a Connector so they can materialize
// handles lazily without re-resolving the driver.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) { return f(ctx) }

// Bind returns a Connector that opens connections from d with the given
// config on every call.
func Bind(d Driver, config map[string]any) Connector {
	return ConnectorFunc(func(ctx context.Context) (Conn, error) {
		return d.Open(ctx, config)
	})
}
