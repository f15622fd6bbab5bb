// Package handle wraps a driver connection with the bookkeeping every
// backend shares: a connection flag, a transaction flag, the last executed
// query, and a per-handle lock that serializes transaction scopes. All real
// I/O is delegated to the driver.Conn injected at construction.
package handle

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/dbx/pkg/driver"
	"github.com/ekaya-inc/dbx/pkg/logging"
)

// Handle represents one live logical database connection.
//
// The embedded mutex guards transaction scopes only: concurrent Transaction
// calls on the same handle serialize, but plain Execute/Prepare calls are
// not synchronized and concurrent direct use is the caller's responsibility.
type Handle struct {
	id   uuid.UUID
	conn driver.Conn

	mu sync.Mutex // held for the full duration of a Transaction scope

	connected bool
	inTx      bool
	lastQuery string

	logger *zap.Logger
}

// New wraps a freshly opened driver connection. The handle starts connected.
func New(conn driver.Conn, logger *zap.Logger) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handle{
		id:        uuid.New(),
		conn:      conn,
		connected: true,
		logger:    logger,
	}
}

// ID returns the handle's identity, used in logs and pool bookkeeping.
func (h *Handle) ID() uuid.UUID { return h.id }

// Connected reports the connection flag.
func (h *Handle) Connected() bool { return h.connected }

// InTransaction reports whether a Transaction scope is active.
func (h *Handle) InTransaction() bool { return h.inTx }

// LastQuery returns the text of the most recently prepared or executed query.
func (h *Handle) LastQuery() string { return h.lastQuery }

// Conn exposes the underlying driver connection for driver-specific callers.
func (h *Handle) Conn() driver.Conn { return h.conn }

// Reconnect flips the connection flag and delegates to the driver. The flag
// flips even when the driver's reconnection fails; drivers without real
// reconnection semantics are flag-only by contract.
func (h *Handle) Reconnect(ctx context.Context) error {
	h.connected = true
	if err := h.conn.Reconnect(ctx); err != nil {
		h.logger.Warn("driver reconnect failed",
			zap.String("handle", h.id.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return err
	}
	return nil
}

// Disconnect delegates to the driver and clears the connection flag. The
// flag clears even on driver error: a disconnect request always leaves the
// handle logically disconnected.
func (h *Handle) Disconnect(ctx context.Context) error {
	err := h.conn.Disconnect(ctx)
	h.connected = false
	return err
}

// Ping delegates to the driver's liveness probe.
func (h *Handle) Ping(ctx context.Context) (float64, error) {
	return h.conn.Ping(ctx)
}

// Prepare records the query as LastQuery, then delegates.
func (h *Handle) Prepare(ctx context.Context, query string) error {
	h.lastQuery = query
	return h.conn.Prepare(ctx, query)
}

// Execute records the query as LastQuery, then delegates.
func (h *Handle) Execute(ctx context.Context, query string, binds ...any) (int64, error) {
	h.lastQuery = query
	return h.conn.Execute(ctx, query, binds...)
}

// Commit clears the transaction flag, then delegates. The flag clears
// regardless of whether the driver commit succeeds.
func (h *Handle) Commit(ctx context.Context) error {
	h.inTx = false
	return h.conn.Commit(ctx)
}

// Rollback clears the transaction flag, then delegates. The flag clears
// regardless of whether the driver rollback succeeds.
func (h *Handle) Rollback(ctx context.Context) error {
	h.inTx = false
	return h.conn.Rollback(ctx)
}

// Transaction runs fn in a transaction scope. The handle's lock is held for
// the whole scope, so Transaction calls on the same handle cannot
// interleave. On normal return fn's work is committed unless fn already
// committed or rolled back itself; on error or panic the work is rolled
// back and the error (or panic) propagates. The transaction flag is always
// false on exit.
func (h *Handle) Transaction(ctx context.Context, fn func(*Handle) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.inTx = true
	defer func() { h.inTx = false }()

	defer func() {
		if p := recover(); p != nil {
			if rbErr := h.Rollback(ctx); rbErr != nil {
				h.logger.Warn("rollback after panic failed",
					zap.String("handle", h.id.String()),
					zap.String("error", logging.SanitizeError(rbErr)),
				)
			}
			panic(p)
		}
	}()

	if err := fn(h); err != nil {
		if rbErr := h.Rollback(ctx); rbErr != nil {
			h.logger.Warn("rollback failed",
				zap.String("handle", h.id.String()),
				zap.String("error", logging.SanitizeError(rbErr)),
			)
		}
		return err
	}

	// fn may have committed or rolled back on its own; only commit if the
	// scope is still marked in-transaction.
	if h.inTx {
		return h.Commit(ctx)
	}
	return nil
}
