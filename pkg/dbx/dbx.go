// Package dbx is the top-level entry point of the connectivity layer. A DB
// value resolves driver references, creates handles directly or through
// named pools, and tracks every handle it has created for bulk reconnect
// and disconnect. Process-wide state lives in an explicit DB rather than
// package globals; Default returns a shared instance for callers that want
// ambient access.
package dbx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/dbx/pkg/driver"
	"github.com/ekaya-inc/dbx/pkg/handle"
	"github.com/ekaya-inc/dbx/pkg/logging"
	"github.com/ekaya-inc/dbx/pkg/pool"
	"github.com/ekaya-inc/dbx/pkg/retry"
)

// DefaultPoolName is the pool ConnectCached uses when no name is given.
const DefaultPoolName = "default"

// DB holds the process-wide connectivity state: the named pool registry,
// the list of every handle created through Connect, and the most recently
// created handle. All list and pointer access is guarded by the DB's own
// lock, distinct from per-pool locks.
type DB struct {
	logger *zap.Logger

	mu           sync.Mutex
	pools        *pool.Registry
	conns        []*handle.Handle
	last         *handle.Handle
	afterConnect func(*handle.Handle)
	poolMax      int
}

// Option configures a DB.
type Option func(*DB)

// WithAfterConnect registers a callback invoked with each handle after a
// successful Connect. Used for instrumentation and session setup.
func WithAfterConnect(fn func(*handle.Handle)) Option {
	return func(db *DB) { db.afterConnect = fn }
}

// WithPoolMax sets the capacity for pools created by ConnectCached.
func WithPoolMax(max int) Option {
	return func(db *DB) { db.poolMax = max }
}

// New creates a DB with an empty pool registry.
func New(logger *zap.Logger, opts ...Option) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := &DB{
		logger:  logger,
		pools:   pool.NewRegistry(),
		poolMax: pool.DefaultMax,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

var (
	defaultDB   *DB
	defaultOnce sync.Once
)

// Default returns the shared process-wide DB, created on first use with the
// global zap logger.
func Default() *DB {
	defaultOnce.Do(func() {
		defaultDB = New(zap.L())
	})
	return defaultDB
}

// Connect resolves ref, opens a new non-pooled connection, and returns its
// handle. The handle is recorded in the all-connections list and becomes
// LastHandle. Driver opens are retried on transient failures.
func (db *DB) Connect(ctx context.Context, ref driver.Ref, config map[string]any) (*handle.Handle, error) {
	d, err := ref.Resolve()
	if err != nil {
		return nil, err
	}

	conn, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (driver.Conn, error) {
		return d.Open(ctx, config)
	})
	if err != nil {
		db.logger.Error("connect failed",
			zap.String("driver", ref.String()),
			zap.Any("config", logging.SanitizeConfig(config)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("connect %s: %w", ref, err)
	}

	h := handle.New(conn, db.logger)

	db.mu.Lock()
	db.conns = append(db.conns, h)
	db.last = h
	cb := db.afterConnect
	db.mu.Unlock()

	if cb != nil {
		cb(h)
	}

	db.logger.Info("connected",
		zap.String("driver", ref.String()),
		zap.String("handle", h.ID().String()),
	)
	return h, nil
}

// ConnectCached checks a handle out of the named pool, creating the pool on
// first use with ref and config as its connect arguments. Once a pool
// exists, config is ignored for that name. The checked-out handle becomes
// LastHandle.
func (db *DB) ConnectCached(ctx context.Context, ref driver.Ref, config map[string]any, opts ...ConnectOption) (*handle.Handle, error) {
	var co connectOptions
	co.poolName = DefaultPoolName
	for _, opt := range opts {
		opt(&co)
	}

	p, err := db.lookupOrCreatePool(co.poolName, ref, config)
	if err != nil {
		return nil, err
	}

	h, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	db.last = h
	db.mu.Unlock()
	return h, nil
}

// lookupOrCreatePool is atomic under the DB lock so two callers racing on
// the same name share one pool.
func (db *DB) lookupOrCreatePool(name string, ref driver.Ref, config map[string]any) (*pool.Pool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if p, ok := db.pools.Lookup(name); ok {
		return p, nil
	}

	d, err := ref.Resolve()
	if err != nil {
		return nil, err
	}
	p := pool.New(name, driver.Bind(d, config), db.poolMax, db.logger)
	db.pools.Register(p)
	db.logger.Info("pool created",
		zap.String("pool", name),
		zap.String("driver", ref.String()),
		zap.Int("max", db.poolMax),
	)
	return p, nil
}

// ConnectOption configures ConnectCached.
type ConnectOption func(*connectOptions)

type connectOptions struct {
	poolName string
}

// WithPoolName routes ConnectCached to a named pool instead of "default".
func WithPoolName(name string) ConnectOption {
	return func(o *connectOptions) {
		if name != "" {
			o.poolName = name
		}
	}
}

// Pool returns the named pool, or nil when no pool of that name exists.
// Callers must distinguish a nil pool from an existing pool with zero
// handles. An empty name means DefaultPoolName.
func (db *DB) Pool(name string) *pool.Pool {
	if name == "" {
		name = DefaultPoolName
	}
	p, _ := db.pools.Lookup(name)
	return p
}

// Pools exposes the pool registry for observability surfaces.
func (db *DB) Pools() *pool.Registry { return db.pools }

// LastHandle returns the handle most recently created or checked out
// through this DB, or nil.
func (db *DB) LastHandle() *handle.Handle {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.last
}

// Ping opens a non-pooled connection, probes it, and disconnects.
func (db *DB) Ping(ctx context.Context, ref driver.Ref, config map[string]any) (float64, error) {
	h, err := db.Connect(ctx, ref, config)
	if err != nil {
		return 0, err
	}
	defer func() {
		if dErr := h.Disconnect(ctx); dErr != nil {
			db.logger.Warn("disconnect after ping failed",
				zap.String("handle", h.ID().String()),
				zap.String("error", logging.SanitizeError(dErr)),
			)
		}
	}()
	return h.Ping(ctx)
}

// ReconnectAll reconnects every handle ever created through Connect.
// Handles are not locked at this layer; concurrent direct use of a handle
// during a bulk reconnect is the caller's problem.
func (db *DB) ReconnectAll(ctx context.Context) error {
	var errs []error
	for _, h := range db.snapshotConns() {
		if err := h.Reconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DisconnectAll disconnects every handle ever created through Connect.
func (db *DB) DisconnectAll(ctx context.Context) error {
	var errs []error
	for _, h := range db.snapshotConns() {
		if err := h.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (db *DB) snapshotConns() []*handle.Handle {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*handle.Handle, len(db.conns))
	copy(out, db.conns)
	return out
}
