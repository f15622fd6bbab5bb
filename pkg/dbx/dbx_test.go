package dbx

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/dbx/pkg/apperrors"
	"github.com/ekaya-inc/dbx/pkg/driver"
	"github.com/ekaya-inc/dbx/pkg/handle"
)

type fakeConn struct {
	driver.UnimplementedConn

	mu          sync.Mutex
	pingVal     float64
	reconnects  int
	disconnects int
}

func (c *fakeConn) Ping(context.Context) (float64, error) { return c.pingVal, nil }

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

type fakeDriver struct {
	name  string
	mu    sync.Mutex
	opens int
	conns []*fakeConn
}

func (d *fakeDriver) Name() string { return d.name }

func (d *fakeDriver) Open(_ context.Context, _ map[string]any) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	c := &fakeConn{pingVal: 5}
	d.conns = append(d.conns, c)
	return c, nil
}

func newTestDB(t *testing.T, opts ...Option) (*DB, *fakeDriver) {
	t.Helper()
	return New(zaptest.NewLogger(t), opts...), &fakeDriver{name: "fake"}
}

func TestConnect(t *testing.T) {
	db, drv := newTestDB(t)

	h, err := db.Connect(context.Background(), driver.Resolved(drv), nil)
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.True(t, h.Connected())
	assert.Same(t, h, db.LastHandle())
	assert.Equal(t, 1, drv.opens)
}

func TestConnectAfterConnectCallback(t *testing.T) {
	var got *handle.Handle
	db, drv := newTestDB(t, WithAfterConnect(func(h *handle.Handle) { got = h }))

	h, err := db.Connect(context.Background(), driver.Resolved(drv), nil)
	require.NoError(t, err)
	assert.Same(t, h, got, "callback receives the new handle")
}

func TestConnectZeroRef(t *testing.T) {
	db, _ := newTestDB(t)

	_, err := db.Connect(context.Background(), driver.Ref{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidDriver)
}

func TestConnectUnknownName(t *testing.T) {
	db, _ := newTestDB(t)

	_, err := db.Connect(context.Background(), driver.ByName("definitely-not-registered"), nil)
	assert.ErrorIs(t, err, apperrors.ErrUnknownDriver)
}

func TestConnectByRegisteredName(t *testing.T) {
	drv := &fakeDriver{name: "dbx-test-registered"}
	driver.Register(driver.Registration{
		Info:   driver.Info{Name: drv.name, DisplayName: "Test"},
		Driver: drv,
	})

	db := New(zaptest.NewLogger(t))
	h, err := db.Connect(context.Background(), driver.ByName(drv.name), nil)
	require.NoError(t, err)
	assert.NotNil(t, h)
}

func TestConnectCachedCreatesPoolOnce(t *testing.T) {
	db, drv := newTestDB(t)
	ctx := context.Background()

	h1, err := db.ConnectCached(ctx, driver.Resolved(drv), map[string]any{"host": "a"})
	require.NoError(t, err)
	require.NotNil(t, db.Pool(DefaultPoolName), "first call materializes the default pool")

	// A second driver and config are ignored once the pool exists.
	other := &fakeDriver{name: "other"}
	h2, err := db.ConnectCached(ctx, driver.Resolved(other), map[string]any{"host": "b"})
	require.NoError(t, err)
	assert.Equal(t, 0, other.opens, "existing pool keeps its original connect arguments")

	assert.NotNil(t, h1)
	assert.Same(t, h2, db.LastHandle())
}

func TestConnectCachedNamedPools(t *testing.T) {
	db, drv := newTestDB(t)
	ctx := context.Background()

	_, err := db.ConnectCached(ctx, driver.Resolved(drv), nil, WithPoolName("reports"))
	require.NoError(t, err)

	assert.NotNil(t, db.Pool("reports"))
	assert.Nil(t, db.Pool(DefaultPoolName), "only the named pool exists")
}

func TestConnectCachedPoolMax(t *testing.T) {
	db, drv := newTestDB(t, WithPoolMax(2))
	ctx := context.Background()

	seen := make(map[*handle.Handle]bool)
	for i := 0; i < 5; i++ {
		h, err := db.ConnectCached(ctx, driver.Resolved(drv), nil)
		require.NoError(t, err)
		seen[h] = true
	}
	assert.Len(t, seen, 2, "checkouts cycle within the configured capacity")
	assert.Equal(t, 2, drv.opens)
}

func TestPoolMissReturnsNil(t *testing.T) {
	db, _ := newTestDB(t)
	assert.Nil(t, db.Pool("reports"), "no pool is distinct from an empty pool")
}

func TestPing(t *testing.T) {
	db, drv := newTestDB(t)

	v, err := db.Ping(context.Background(), driver.Resolved(drv), nil)
	require.NoError(t, err)
	assert.Equal(t, float64(5), v)
	assert.Equal(t, 1, drv.conns[0].disconnects, "ping connections do not linger")
}

func TestReconnectAllAndDisconnectAll(t *testing.T) {
	db, drv := newTestDB(t)
	ctx := context.Background()

	h1, err := db.Connect(ctx, driver.Resolved(drv), nil)
	require.NoError(t, err)
	h2, err := db.Connect(ctx, driver.Resolved(drv), nil)
	require.NoError(t, err)

	require.NoError(t, db.DisconnectAll(ctx))
	assert.False(t, h1.Connected())
	assert.False(t, h2.Connected())

	require.NoError(t, db.ReconnectAll(ctx))
	assert.True(t, h1.Connected())
	assert.True(t, h2.Connected())
	for _, c := range drv.conns {
		assert.Equal(t, 1, c.reconnects)
	}
}

func TestConcurrentConnectCached(t *testing.T) {
	db, drv := newTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.ConnectCached(ctx, driver.Resolved(drv), nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Racing callers share one pool rather than each creating their own.
	p := db.Pool(DefaultPoolName)
	require.NotNil(t, p)
	assert.Equal(t, uint64(16), p.GetStats().Checkouts)
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
