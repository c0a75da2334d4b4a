package pgwire

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/riftpg/pgwire/internal/pool"
)

// PoolConfig configures a Pool per §4.7.
type PoolConfig struct {
	Endpoint           Endpoint
	Options            []OptionFn
	Dialer             Dialer
	MaxConnectionCount int
	MaxConnectionAge   time.Duration
	MaxSessionUse      time.Duration
	MaxQueryCount      int
	ConnectTimeout     time.Duration

	// Registerer, when set, registers the pool_lease/pool_return/pool_open/
	// pool_close counters from §6's observability interface.
	Registerer prometheus.Registerer
}

// Pool is a bounded, fair allocator of Sessions against one Endpoint.
type Pool struct {
	inner *pool.Pool[*Session]
}

// NewPool constructs a Pool. Every Session it opens shares cfg.Options.
func NewPool(cfg PoolConfig) (*Pool, error) {
	var metrics *pool.Metrics
	if cfg.Registerer != nil {
		metrics = pool.NewMetrics(cfg.Registerer, "pgwire")
	}

	inner, err := pool.New(pool.Config[*Session]{
		Constructor: func(ctx context.Context) (*Session, error) {
			return Open(ctx, cfg.Dialer, cfg.Endpoint, cfg.Options...)
		},
		MaxConnectionCount: cfg.MaxConnectionCount,
		MaxConnectionAge:   cfg.MaxConnectionAge,
		MaxSessionUse:      cfg.MaxSessionUse,
		MaxQueryCount:      cfg.MaxQueryCount,
		ConnectTimeout:     cfg.ConnectTimeout,
		Metrics:            metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Pool{inner: inner}, nil
}

// PooledSession is a Session leased from a Pool. Returning it via Release
// runs the return algorithm from §4.7: transaction depth must be 0 or the
// connection is force-destroyed.
type PooledSession struct {
	lease *pool.Lease[*Session]
	pool  *pool.Pool[*Session]
}

// Session returns the leased connection.
func (p *PooledSession) Session() *Session { return p.lease.Conn() }

// Release returns the session to the pool. Each Release counts as one query
// toward MaxQueryCount, however many statements ran during the lease.
func (p *PooledSession) Release() {
	s := p.lease.Conn()
	p.lease.MarkQuery()
	p.pool.Return(p.lease, s.tx.depth == 0)
}

// Acquire leases a Session, opening a new physical connection if the pool
// has not reached MaxConnectionCount, or blocking (FIFO) until one is
// returned.
func (p *Pool) Acquire(ctx context.Context) (*PooledSession, error) {
	lease, err := p.inner.Acquire(ctx)
	if err != nil {
		return nil, newError(KindConnectionLost, err)
	}
	return &PooledSession{lease: lease, pool: p.inner}, nil
}

// TryAcquire leases a Session without blocking, returning a *PoolExhausted*
// error if none is available and the pool is already at capacity.
func (p *Pool) TryAcquire(ctx context.Context) (*PooledSession, error) {
	lease, err := p.inner.TryAcquire(ctx)
	if err != nil {
		return nil, newError(KindPoolExhausted, err)
	}
	return &PooledSession{lease: lease, pool: p.inner}, nil
}

// Shutdown refuses new leases, drains outstanding ones, and closes every
// underlying transport. See internal/pool.Pool.Shutdown.
func (p *Pool) Shutdown(ctx context.Context) error {
	return p.inner.Shutdown(ctx)
}
