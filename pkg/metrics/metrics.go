// Package metrics exports pool state to Prometheus. The collector reads
// point-in-time snapshots from the pool registry on each scrape, so it adds no
// bookkeeping to the checkout path beyond the counters pools already keep.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ekaya-inc/dbx/pkg/pool"
)

// PoolCollector implements prometheus.Collector over a pool registry.
type PoolCollector struct {
	registry *pool.Registry

	handles   *prometheus.Desc
	capacity  *prometheus.Desc
	connected *prometheus.Desc
	checkouts *prometheus.Desc
}

// NewPoolCollector builds a collector for every pool registered now or
// later in registry.
func NewPoolCollector(registry *pool.Registry) *PoolCollector {
	return &PoolCollector{
		registry: registry,
		handles: prometheus.NewDesc(
			"dbx_pool_handles",
			"Materialized handles in the pool (unfilled slots excluded)",
			[]string{"pool"}, nil,
		),
		capacity: prometheus.NewDesc(
			"dbx_pool_capacity",
			"Maximum handles the pool may hold",
			[]string{"pool"}, nil,
		),
		connected: prometheus.NewDesc(
			"dbx_pool_connected_handles",
			"Handles whose connection flag is up",
			[]string{"pool"}, nil,
		),
		checkouts: prometheus.NewDesc(
			"dbx_pool_checkouts_total",
			"Round-robin checkouts served by the pool",
			[]string{"pool"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.handles
	ch <- c.capacity
	ch <- c.connected
	ch <- c.checkouts
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	for _, p := range c.registry.Snapshot() {
		stats := p.GetStats()
		ch <- prometheus.MustNewConstMetric(c.handles, prometheus.GaugeValue,
			float64(stats.Size), stats.Name)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue,
			float64(stats.Max), stats.Name)
		ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue,
			float64(stats.Connected), stats.Name)
		ch <- prometheus.MustNewConstMetric(c.checkouts, prometheus.CounterValue,
			float64(stats.Checkouts), stats.Name)
	}
}

var _ prometheus.Collector = (*PoolCollector)(nil)
