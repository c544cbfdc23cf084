package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolStats is a point-in-time view of the store connection pool.
type PoolStats struct {
	Acquired     int32
	Idle         int32
	Total        int32
	Max          int32
	AcquireCount int64
	EmptyAcquire int64
}

type poolCollector struct {
	stat func() PoolStats

	acquired, idle, total, max *prometheus.Desc
	acquireCount, emptyAcquire *prometheus.Desc
}

// NewPoolCollector exports store pool gauges, reading stat on every scrape.
func NewPoolCollector(stat func() PoolStats) prometheus.Collector {
	return &poolCollector{
		stat:         stat,
		acquired:     prometheus.NewDesc("store_pool_acquired_conns", "Connections currently checked out of the store pool.", nil, nil),
		idle:         prometheus.NewDesc("store_pool_idle_conns", "Idle connections in the store pool.", nil, nil),
		total:        prometheus.NewDesc("store_pool_total_conns", "Total connections in the store pool.", nil, nil),
		max:          prometheus.NewDesc("store_pool_max_conns", "Configured maximum size of the store pool.", nil, nil),
		acquireCount: prometheus.NewDesc("store_pool_acquire_total", "Successful connection acquisitions.", nil, nil),
		emptyAcquire: prometheus.NewDesc("store_pool_empty_acquire_total", "Acquisitions that had to wait for a connection.", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
	ch <- c.max
	ch <- c.acquireCount
	ch <- c.emptyAcquire
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.Acquired))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.Max))
	ch <- prometheus.MustNewConstMetric(c.acquireCount, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.emptyAcquire, prometheus.CounterValue, float64(s.EmptyAcquire))
}
