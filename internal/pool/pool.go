package pool

import (
	"context"
	"time"

	"github.com/jackc/puddle/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

// entry wraps a leased connection with the bookkeeping the expiry
// predicates in §4.7 need: age since open, wall-time since last lease, and
// statements executed since open.
type entry[T Conn] struct {
	conn        T
	createdAt   time.Time
	lastLeaseAt time.Time
	queryCount  int
	broken      bool
}

// Pool is a bounded, fair allocator of physical connections. It wraps
// puddle.Pool for the FIFO idle-set/waiter bookkeeping and layers the
// expiry predicates, a dial concurrency cap, and metrics on top.
type Pool[T Conn] struct {
	cfg     Config[T]
	inner   *puddle.Pool[*entry[T]]
	dialSem *semaphore.Weighted
}

// New constructs a Pool. The constructor is invoked by puddle whenever a
// new physical connection is needed; it never runs more than
// MaxConnectionCount times concurrently, bounded by dialSem independently
// of puddle's own lease accounting.
func New[T Conn](cfg Config[T]) (*Pool[T], error) {
	p := &Pool[T]{
		cfg:     cfg,
		dialSem: semaphore.NewWeighted(int64(cfg.maxConnectionCount())),
	}

	inner, err := puddle.NewPool(&puddle.Config[*entry[T]]{
		Constructor: p.construct,
		Destructor:  p.destruct,
		MaxSize:     cfg.maxConnectionCount(),
	})
	if err != nil {
		return nil, err
	}

	p.inner = inner
	return p, nil
}

func (p *Pool[T]) construct(ctx context.Context) (*entry[T], error) {
	if err := p.dialSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.dialSem.Release(1)

	dialCtx := ctx
	if p.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
	}

	conn, err := p.cfg.Constructor(dialCtx)
	if err != nil {
		return nil, err
	}

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.opened.Inc()
	}

	now := time.Now()
	return &entry[T]{conn: conn, createdAt: now, lastLeaseAt: now}, nil
}

func (p *Pool[T]) destruct(e *entry[T]) {
	_ = e.conn.Close()
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.closed.Inc()
	}
}

// Lease is a leased connection. Conn returns the underlying connection;
// Return hands it back per §4.7's return algorithm.
type Lease[T Conn] struct {
	res  *puddle.Resource[*entry[T]]
	pool *Pool[T]
}

// Conn returns the leased connection.
func (l *Lease[T]) Conn() T { return l.res.Value().conn }

// MarkQuery increments the lease's statement count, consulted by
// MaxQueryCount on return.
func (l *Lease[T]) MarkQuery() { l.res.Value().queryCount++ }

// MarkBroken flags the connection as unusable regardless of the expiry
// predicates; Return will always destroy it.
func (l *Lease[T]) MarkBroken() { l.res.Value().broken = true }

// Acquire leases a connection per the algorithm in §4.7: an idle connection
// that passes all expiry predicates is preferred (puddle serves idle
// connections FIFO); otherwise a new one is opened up to MaxConnectionCount,
// or the request waits.
func (p *Pool[T]) Acquire(ctx context.Context) (*Lease[T], error) {
	for {
		res, err := p.inner.Acquire(ctx)
		if err != nil {
			return nil, err
		}

		e := res.Value()
		if e.broken || p.expired(e) {
			res.Destroy()
			continue
		}

		e.lastLeaseAt = time.Now()
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.leases.Inc()
		}
		return &Lease[T]{res: res, pool: p}, nil
	}
}

// TryAcquire leases a connection without blocking, failing with
// puddle.ErrNotAvailable if none is idle and the pool is already at
// capacity. Callers surface this as *PoolExhausted*.
func (p *Pool[T]) TryAcquire(ctx context.Context) (*Lease[T], error) {
	res, err := p.inner.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}

	e := res.Value()
	if e.broken || p.expired(e) {
		res.Destroy()
		return p.TryAcquire(ctx)
	}

	e.lastLeaseAt = time.Now()
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.leases.Inc()
	}
	return &Lease[T]{res: res, pool: p}, nil
}

// Return hands a lease back to the pool. txDepthZero must report whether
// the connection's transaction depth returned to 0 (Testable Property 3);
// if not, the connection is force-rollback territory for the caller and
// Return always destroys it.
func (p *Pool[T]) Return(l *Lease[T], txDepthZero bool) {
	e := l.res.Value()
	if !txDepthZero {
		e.broken = true
	}

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.returns.Inc()
	}

	if e.broken || p.expired(e) {
		l.res.Destroy()
		return
	}

	l.res.Release()
}

func (p *Pool[T]) expired(e *entry[T]) bool {
	if p.cfg.MaxConnectionAge > 0 && time.Since(e.createdAt) > p.cfg.MaxConnectionAge {
		return true
	}
	if p.cfg.MaxSessionUse > 0 && time.Since(e.lastLeaseAt) > p.cfg.MaxSessionUse {
		return true
	}
	if p.cfg.MaxQueryCount > 0 && e.queryCount >= p.cfg.MaxQueryCount {
		return true
	}
	return false
}

// Stat reports the pool's current size and idle/constructing counts.
func (p *Pool[T]) Stat() *puddle.Stat {
	return p.inner.Stat()
}

// Shutdown refuses new leases, destroys every currently idle connection,
// and waits for in-use connections to be returned (each of which is then
// destroyed via Close below) until ctx expires. Errors from individual
// connection closes are aggregated with multierr rather than short-circuit
// on the first failure, so one bad connection does not mask the rest.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	var errs error

	for _, res := range p.inner.AcquireAllIdle() {
		if err := res.Value().conn.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
		res.Destroy()
	}

	done := make(chan struct{})
	go func() {
		p.inner.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = multierr.Append(errs, ctx.Err())
	}

	return errs
}
