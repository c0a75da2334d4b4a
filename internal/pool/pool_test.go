package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftpg/pgwire/internal/pool"
)

type fakeConn struct {
	id     int
	closed bool
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func newCountingConstructor() (func(ctx context.Context) (*fakeConn, error), *int) {
	n := 0
	return func(ctx context.Context) (*fakeConn, error) {
		n++
		return &fakeConn{id: n}, nil
	}, &n
}

func TestAcquireReturnReusesIdleConnection(t *testing.T) {
	constructor, opened := newCountingConstructor()
	p, err := pool.New(pool.Config[*fakeConn]{Constructor: constructor, MaxConnectionCount: 2})
	require.NoError(t, err)

	ctx := context.Background()
	lease, err := p.Acquire(ctx)
	require.NoError(t, err)
	first := lease.Conn().id

	p.Return(lease, true)

	lease2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, lease2.Conn().id)
	assert.Equal(t, 1, *opened)
}

func TestReturnWithNonZeroTxDepthDestroysConnection(t *testing.T) {
	constructor, opened := newCountingConstructor()
	p, err := pool.New(pool.Config[*fakeConn]{Constructor: constructor, MaxConnectionCount: 2})
	require.NoError(t, err)

	ctx := context.Background()
	lease, err := p.Acquire(ctx)
	require.NoError(t, err)
	conn := lease.Conn()

	p.Return(lease, false)
	assert.True(t, conn.closed)

	lease2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, *opened)
	assert.NotEqual(t, conn.id, lease2.Conn().id)
}

func TestMaxConnectionAgeExpiresConnection(t *testing.T) {
	constructor, opened := newCountingConstructor()
	p, err := pool.New(pool.Config[*fakeConn]{
		Constructor:        constructor,
		MaxConnectionCount: 1,
		MaxConnectionAge:   5 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx := context.Background()
	lease, err := p.Acquire(ctx)
	require.NoError(t, err)
	first := lease.Conn().id
	p.Return(lease, true)

	time.Sleep(15 * time.Millisecond)

	lease2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, lease2.Conn().id)
	assert.Equal(t, 2, *opened)
}

func TestMaxQueryCountExpiresConnection(t *testing.T) {
	constructor, opened := newCountingConstructor()
	p, err := pool.New(pool.Config[*fakeConn]{
		Constructor:        constructor,
		MaxConnectionCount: 1,
		MaxQueryCount:      2,
	})
	require.NoError(t, err)

	ctx := context.Background()
	lease, err := p.Acquire(ctx)
	require.NoError(t, err)
	lease.MarkQuery()
	lease.MarkQuery()
	p.Return(lease, true)

	lease2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, *opened)
	assert.NotEqual(t, lease.Conn().id, lease2.Conn().id)
}

func TestTryAcquireFailsWhenPoolExhausted(t *testing.T) {
	constructor, _ := newCountingConstructor()
	p, err := pool.New(pool.Config[*fakeConn]{Constructor: constructor, MaxConnectionCount: 1})
	require.NoError(t, err)

	ctx := context.Background()
	lease, err := p.Acquire(ctx)
	require.NoError(t, err)
	_ = lease

	_, err = p.TryAcquire(ctx)
	assert.Error(t, err)
}

func TestShutdownClosesIdleConnections(t *testing.T) {
	constructor, _ := newCountingConstructor()
	p, err := pool.New(pool.Config[*fakeConn]{Constructor: constructor, MaxConnectionCount: 1})
	require.NoError(t, err)

	ctx := context.Background()
	lease, err := p.Acquire(ctx)
	require.NoError(t, err)
	conn := lease.Conn()
	p.Return(lease, true)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	err = p.Shutdown(shutdownCtx)
	require.NoError(t, err)
	assert.True(t, conn.closed)
}
