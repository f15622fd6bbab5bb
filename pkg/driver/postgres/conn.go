package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/dbx/pkg/driver"
	"github.com/ekaya-inc/dbx/pkg/retry"
)

// Driver opens single-session PostgreSQL connections via pgx.
type Driver struct{}

// Name returns the registry key.
func (Driver) Name() string { return "postgres" }

// Open establishes a new PostgreSQL session.
func (Driver) Open(ctx context.Context, config map[string]any) (driver.Conn, error) {
	cfg, err := FromMap(config)
	if err != nil {
		return nil, err
	}
	connStr := cfg.ConnString()

	pc, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Conn{pc: pc, connStr: connStr}, nil
}

// Conn is one PostgreSQL session. Statement numbering for Prepare is local
// to the session.
type Conn struct {
	pc       *pgx.Conn
	connStr  string
	prepared int
}

// Ping probes the session and returns round-trip latency in milliseconds.
func (c *Conn) Ping(ctx context.Context) (float64, error) {
	start := time.Now()
	if err := c.pc.Ping(ctx); err != nil {
		return 0, fmt.Errorf("ping failed: %w", err)
	}
	return float64(time.Since(start).Microseconds()) / 1000.0, nil
}

// Reconnect closes the current session and dials a fresh one with the same
// connection string, retrying transient failures.
func (c *Conn) Reconnect(ctx context.Context) error {
	if c.pc != nil && !c.pc.IsClosed() {
		_ = c.pc.Close(ctx)
	}

	pc, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*pgx.Conn, error) {
		return pgx.Connect(ctx, c.connStr)
	})
	if err != nil {
		return fmt.Errorf("reconnect to postgres: %w", err)
	}
	c.pc = pc
	c.prepared = 0
	return nil
}

// Disconnect closes the session.
func (c *Conn) Disconnect(ctx context.Context) error {
	if c.pc == nil || c.pc.IsClosed() {
		return nil
	}
	return c.pc.Close(ctx)
}

// Prepare readies a server-side statement under a session-local name.
func (c *Conn) Prepare(ctx context.Context, query string) error {
	c.prepared++
	name := fmt.Sprintf("dbx_stmt_%d", c.prepared)
	if _, err := c.pc.Prepare(ctx, name, query); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	return nil
}

// Execute runs a statement with positional binds ($1, $2, ...) and returns
// the affected row count.
func (c *Conn) Execute(ctx context.Context, query string, binds ...any) (int64, error) {
	tag, err := c.pc.Exec(ctx, query, binds...)
	if err != nil {
		return 0, fmt.Errorf("execute: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Commit ends the session's open transaction. Outside a transaction
// PostgreSQL degrades this to a warning, which is fine for the flag-reset
// path.
func (c *Conn) Commit(ctx context.Context) error {
	_, err := c.pc.Exec(ctx, "COMMIT")
	return err
}

// Rollback aborts the session's open transaction.
func (c *Conn) Rollback(ctx context.Context) error {
	_, err := c.pc.Exec(ctx, "ROLLBACK")
	return err
}

var _ driver.Conn = (*Conn)(nil)
