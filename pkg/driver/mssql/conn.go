package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/ekaya-inc/dbx/pkg/driver"
	"github.com/ekaya-inc/dbx/pkg/retry"
)

// Driver opens single-session SQL Server connections.
type Driver struct{}

// Name returns the registry key.
func (Driver) Name() string { return "mssql" }

// Open establishes a new SQL Server session. The database/sql pool is
// pinned to one *sql.Conn so session state (open transactions, temp
// tables) behaves like a single connection.
func (Driver) Open(ctx context.Context, config map[string]any) (driver.Conn, error) {
	cfg, err := FromMap(config)
	if err != nil {
		return nil, err
	}
	return dial(ctx, cfg.ConnString())
}

func dial(ctx context.Context, connStr string) (*Conn, error) {
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("open sqlserver: %w", err)
	}
	db.SetMaxOpenConns(1)

	session, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to sqlserver: %w", err)
	}
	return &Conn{db: db, session: session, connStr: connStr}, nil
}

// Conn is one pinned SQL Server session.
type Conn struct {
	db      *sql.DB
	session *sql.Conn
	connStr string
}

var errSessionClosed = errors.New("session is closed")

// live returns the pinned session, or an error after Disconnect. Handles
// stay addressable after disconnecting, so calls on a closed session must
// fail, not crash.
func (c *Conn) live() (*sql.Conn, error) {
	if c.session == nil {
		return nil, errSessionClosed
	}
	return c.session, nil
}

// Ping probes the session and returns round-trip latency in milliseconds.
func (c *Conn) Ping(ctx context.Context) (float64, error) {
	session, err := c.live()
	if err != nil {
		return 0, err
	}
	start := time.Now()
	if err := session.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("ping failed: %w", err)
	}
	return float64(time.Since(start).Microseconds()) / 1000.0, nil
}

// Reconnect drops the pinned session and dials a fresh one, retrying
// transient failures.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.closeSession()

	fresh, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*Conn, error) {
		return dial(ctx, c.connStr)
	})
	if err != nil {
		return fmt.Errorf("reconnect to sqlserver: %w", err)
	}
	c.db = fresh.db
	c.session = fresh.session
	return nil
}

// Disconnect closes the session and the underlying pool.
func (c *Conn) Disconnect(context.Context) error {
	c.closeSession()
	return nil
}

func (c *Conn) closeSession() {
	if c.session != nil {
		_ = c.session.Close()
		c.session = nil
	}
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
}

// Prepare readies a statement on the session. The statement handle is
// released immediately; callers re-submit the text through Execute.
func (c *Conn) Prepare(ctx context.Context, query string) error {
	session, err := c.live()
	if err != nil {
		return err
	}
	stmt, err := session.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	return stmt.Close()
}

// Execute runs a statement with positional binds (@p1, @p2, ...) and
// returns the affected row count.
func (c *Conn) Execute(ctx context.Context, query string, binds ...any) (int64, error) {
	session, err := c.live()
	if err != nil {
		return 0, err
	}
	res, err := session.ExecContext(ctx, query, binds...)
	if err != nil {
		return 0, fmt.Errorf("execute: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil // driver cannot report a count; not an execution failure
	}
	return n, nil
}

// Commit ends the session's open transaction.
func (c *Conn) Commit(ctx context.Context) error {
	session, err := c.live()
	if err != nil {
		return err
	}
	_, err = session.ExecContext(ctx, "IF @@TRANCOUNT > 0 COMMIT TRANSACTION")
	return err
}

// Rollback aborts the session's open transaction.
func (c *Conn) Rollback(ctx context.Context) error {
	session, err := c.live()
	if err != nil {
		return err
	}
	_, err = session.ExecContext(ctx, "IF @@TRANCOUNT > 0 ROLLBACK TRANSACTION")
	return err
}

var _ driver.Conn = (*Conn)(nil)
