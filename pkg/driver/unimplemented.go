package driver

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/dbx/pkg/apperrors"
)

// UnimplementedConn provides ErrNotImplemented stubs for every Conn
// operation except Reconnect, Disconnect, Commit, and Rollback, which are
// no-ops so that flag-only lifecycle management works for minimal drivers.
// Embed it and override what the backend actually supports.
type UnimplementedConn struct{}

func (UnimplementedConn) Ping(context.Context) (float64, error) {
	return 0, fmt.Errorf("ping: %w", apperrors.ErrNotImplemented)
}

func (UnimplementedConn) Reconnect(context.Context) error { return nil }

func (UnimplementedConn) Disconnect(context.Context) error { return nil }

func (UnimplementedConn) Prepare(context.Context, string) error {
	return fmt.Errorf("prepare: %w", apperrors.ErrNotImplemented)
}

func (UnimplementedConn) Execute(context.Context, string, ...any) (int64, error) {
	return 0, fmt.Errorf("execute: %w", apperrors.ErrNotImplemented)
}

func (UnimplementedConn) Commit(context.Context) error { return nil }

func (UnimplementedConn) Rollback(context.Context) error { return nil }

var _ Conn = UnimplementedConn{}
