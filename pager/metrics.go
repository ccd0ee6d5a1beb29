package pager

import "github.com/prometheus/client_golang/prometheus"

// pagerMetrics holds the Prometheus instruments a Pager reports against. Each
// Pager gets its own prometheus.Registry (rather than registering against
// prometheus.DefaultRegisterer) so that opening multiple pagers in the same
// process — as the test suite does — never collides on duplicate metric
// registration.
type pagerMetrics struct {
	registry    *prometheus.Registry
	allocations prometheus.Counter
	frees       prometheus.Counter
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

func newPagerMetrics() *pagerMetrics {
	reg := prometheus.NewRegistry()
	m := &pagerMetrics{
		registry: reg,
		allocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bptree_pager_pages_allocated_total",
			Help: "Total number of pages allocated, including free-list reuse.",
		}),
		frees: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bptree_pager_pages_freed_total",
			Help: "Total number of pages released back to the free-list.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bptree_pager_cache_hits_total",
			Help: "Page reads served from the in-memory LRU cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bptree_pager_cache_misses_total",
			Help: "Page reads that required a disk read.",
		}),
	}
	reg.MustRegister(m.allocations, m.frees, m.cacheHits, m.cacheMisses)
	return m
}

// Registry exposes the Pager's private Prometheus registry, e.g. for mounting
// under promhttp.HandlerFor in a long-running process.
func (p *Pager) Registry() *prometheus.Registry {
	return p.metrics.registry
}
