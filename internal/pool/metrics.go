package pool

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the four pool-lifecycle counters named in the core's
// observability interface: pool_lease, pool_return, pool_open, pool_close.
// The core logs nothing itself; a caller wires these into its own registry.
type Metrics struct {
	leases  prometheus.Counter
	returns prometheus.Counter
	opened  prometheus.Counter
	closed  prometheus.Counter
}

// NewMetrics builds the four counters and registers them against reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		leases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "lease_total",
			Help: "Connections leased from the pool.",
		}),
		returns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "return_total",
			Help: "Connections returned to the pool.",
		}),
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "open_total",
			Help: "Physical connections opened by the pool.",
		}),
		closed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "close_total",
			Help: "Physical connections closed by the pool.",
		}),
	}

	reg.MustRegister(m.leases, m.returns, m.opened, m.closed)
	return m
}
