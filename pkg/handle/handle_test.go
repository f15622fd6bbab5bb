package handle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/dbx/pkg/driver"
)

// fakeConn records every driver call so tests can assert on delegation
// order and counts.
type fakeConn struct {
	driver.UnimplementedConn

	mu          sync.Mutex
	pingVal     float64
	pingErr     error
	commitErr   error
	rollbackErr error

	reconnects  int
	disconnects int
	commits     int
	rollbacks   int
	prepared    []string
	executed    []string
}

func (c *fakeConn) Ping(context.Context) (float64, error) {
	return c.pingVal, c.pingErr
}

func (c *fakeConn) Reconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnects++
	return nil
}

func (c *fakeConn) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *fakeConn) Prepare(_ context.Context, query string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prepared = append(c.prepared, query)
	return nil
}

func (c *fakeConn) Execute(_ context.Context, query string, _ ...any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executed = append(c.executed, query)
	return 1, nil
}

func (c *fakeConn) Commit(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits++
	return c.commitErr
}

func (c *fakeConn) Rollback(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbacks++
	return c.rollbackErr
}

func newTestHandle(t *testing.T) (*Handle, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	return New(conn, zaptest.NewLogger(t)), conn
}

func TestNewHandleStartsConnected(t *testing.T) {
	h, _ := newTestHandle(t)

	assert.True(t, h.Connected())
	assert.False(t, h.InTransaction())
	assert.Empty(t, h.LastQuery())
}

func TestDisconnectAndReconnectFlipFlag(t *testing.T) {
	h, conn := newTestHandle(t)
	ctx := context.Background()

	require.NoError(t, h.Disconnect(ctx))
	assert.False(t, h.Connected())
	assert.Equal(t, 1, conn.disconnects)

	require.NoError(t, h.Reconnect(ctx))
	assert.True(t, h.Connected())
	assert.Equal(t, 1, conn.reconnects)
}

func TestPrepareAndExecuteRecordLastQuery(t *testing.T) {
	h, conn := newTestHandle(t)
	ctx := context.Background()

	require.NoError(t, h.Prepare(ctx, "SELECT 1"))
	assert.Equal(t, "SELECT 1", h.LastQuery())

	n, err := h.Execute(ctx, "UPDATE t SET x = $1", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "UPDATE t SET x = $1", h.LastQuery())

	assert.Equal(t, []string{"SELECT 1"}, conn.prepared)
	assert.Equal(t, []string{"UPDATE t SET x = $1"}, conn.executed)
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	h, conn := newTestHandle(t)

	err := h.Transaction(context.Background(), func(h *Handle) error {
		assert.True(t, h.InTransaction(), "flag is up inside the scope")
		_, err := h.Execute(context.Background(), "INSERT INTO t VALUES (1)")
		return err
	})
	require.NoError(t, err)

	assert.False(t, h.InTransaction(), "flag is down after the scope")
	assert.Equal(t, 1, conn.commits)
	assert.Equal(t, 0, conn.rollbacks)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	h, conn := newTestHandle(t)
	boom := errors.New("boom")

	err := h.Transaction(context.Background(), func(*Handle) error {
		return boom
	})
	require.ErrorIs(t, err, boom, "the body's error propagates, not rollback's")

	assert.False(t, h.InTransaction())
	assert.Equal(t, 0, conn.commits)
	assert.Equal(t, 1, conn.rollbacks)
}

func TestTransactionBodyErrorWinsOverRollbackError(t *testing.T) {
	h, conn := newTestHandle(t)
	conn.rollbackErr = errors.New("rollback lost the server")
	boom := errors.New("boom")

	err := h.Transaction(context.Background(), func(*Handle) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, h.InTransaction(), "flag resets even when rollback fails")
}

func TestTransactionHonorsEarlyCommit(t *testing.T) {
	h, conn := newTestHandle(t)

	err := h.Transaction(context.Background(), func(h *Handle) error {
		return h.Commit(context.Background())
	})
	require.NoError(t, err)

	assert.Equal(t, 1, conn.commits, "no second commit after the body's own")
	assert.False(t, h.InTransaction())
}

func TestTransactionHonorsEarlyRollback(t *testing.T) {
	h, conn := newTestHandle(t)

	err := h.Transaction(context.Background(), func(h *Handle) error {
		return h.Rollback(context.Background())
	})
	require.NoError(t, err)

	assert.Equal(t, 0, conn.commits, "early rollback suppresses the commit")
	assert.Equal(t, 1, conn.rollbacks)
	assert.False(t, h.InTransaction())
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	h, conn := newTestHandle(t)

	assert.Panics(t, func() {
		_ = h.Transaction(context.Background(), func(*Handle) error {
			panic("kaboom")
		})
	})

	assert.False(t, h.InTransaction(), "flag resets on the panic path")
	assert.Equal(t, 1, conn.rollbacks)
	assert.Equal(t, 0, conn.commits)
}

func TestTransactionsSerializeOnOneHandle(t *testing.T) {
	h, _ := newTestHandle(t)

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Transaction(context.Background(), func(*Handle) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "transaction scopes must not interleave")
	assert.False(t, h.InTransaction())
}

func TestCommitResetsFlagDespiteDriverError(t *testing.T) {
	h, conn := newTestHandle(t)
	conn.commitErr = errors.New("server went away")

	err := h.Transaction(context.Background(), func(*Handle) error { return nil })
	require.Error(t, err)
	assert.False(t, h.InTransaction())
}

func TestPingDelegates(t *testing.T) {
	h, conn := newTestHandle(t)
	conn.pingVal = 12.5

	v, err := h.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)
}

func TestUnimplementedConnSurfacesNotImplemented(t *testing.T) {
	h := New(driver.UnimplementedConn{}, zaptest.NewLogger(t))

	_, err := h.Ping(context.Background())
	assert.Error(t, err)

	err = h.Prepare(context.Background(), "SELECT 1")
	assert.Error(t, err)
}
