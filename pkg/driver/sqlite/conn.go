package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/ekaya-inc/dbx/pkg/driver"
)

// Driver opens single-session SQLite connections. Useful for tests and
// local tooling where a file (or :memory:) stands in for a server.
type Driver struct{}

// Name returns the registry key.
func (Driver) Name() string { return "sqlite" }

// Open creates a pinned single-connection session on the given database
// file. Config keys: "path" (required), e.g. "app.db" or ":memory:".
func (Driver) Open(ctx context.Context, config map[string]any) (driver.Conn, error) {
	path, ok := config["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return dial(ctx, path)
}

func dial(ctx context.Context, path string) (*Conn, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	session, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}
	return &Conn{db: db, session: session, path: path}, nil
}

// Conn is one pinned SQLite session.
type Conn struct {
	db      *sql.DB
	session *sql.Conn
	path    string
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
// For SQLite this is effectively a file-handle check.
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

// Reconnect reopens the database file. An in-memory database loses its
// contents, as any reconnect to :memory: would.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.closeSession()

	fresh, err := dial(ctx, c.path)
	if err != nil {
		return fmt.Errorf("reconnect to sqlite: %w", err)
	}
	c.db = fresh.db
	c.session = fresh.session
	return nil
}

// Disconnect closes the session and the underlying handle.
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

// Prepare readies a statement on the session and releases it immediately;
// callers re-submit the text through Execute.
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

// Execute runs a statement with ? binds and returns the affected row count.
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
		return 0, nil // not an execution failure
	}
	return n, nil
}

// noActiveTransaction reports the SQLite error for COMMIT or ROLLBACK
// issued outside a transaction. Only that case is a no-op; other failures
// propagate.
func noActiveTransaction(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no transaction is active")
}

// Commit ends the session's open transaction; a no-op outside one.
func (c *Conn) Commit(ctx context.Context) error {
	session, err := c.live()
	if err != nil {
		return err
	}
	if _, err := session.ExecContext(ctx, "COMMIT"); err != nil && !noActiveTransaction(err) {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the session's open transaction; a no-op outside one.
func (c *Conn) Rollback(ctx context.Context) error {
	session, err := c.live()
	if err != nil {
		return err
	}
	if _, err := session.ExecContext(ctx, "ROLLBACK"); err != nil && !noActiveTransaction(err) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

var _ driver.Conn = (*Conn)(nil)
