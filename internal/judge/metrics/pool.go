package metrics

import (
	"ojengine/internal/common/db"

	"github.com/prometheus/client_golang/prometheus"
)

// poolCollector reads connection pool statistics at scrape time.
type poolCollector struct {
	stats func() db.Stats

	maxOpen      *prometheus.Desc
	open         *prometheus.Desc
	inUse        *prometheus.Desc
	idle         *prometheus.Desc
	waitCount    *prometheus.Desc
	waitDuration *prometheus.Desc
}

func newPoolCollector(stats func() db.Stats) *poolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db", name), help, nil, nil)
	}
	return &poolCollector{
		stats:        stats,
		maxOpen:      desc("max_open_connections", "Configured maximum of open connections."),
		open:         desc("open_connections", "Established connections, in use or idle."),
		inUse:        desc("connections_in_use", "Connections currently in use."),
		idle:         desc("connections_idle", "Idle connections."),
		waitCount:    desc("wait_count_total", "Connections waited for."),
		waitDuration: desc("wait_duration_seconds_total", "Time blocked waiting for a connection."),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxOpen
	ch <- c.open
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waitCount
	ch <- c.waitDuration
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.maxOpen, prometheus.GaugeValue, float64(s.MaxOpenConnections))
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(s.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(s.WaitCount))
	ch <- prometheus.MustNewConstMetric(c.waitDuration, prometheus.CounterValue, s.WaitDuration.Seconds())
}

// RegisterPool exports the storage connection pool. stats is called on every scrape.
func (r *Recorder) RegisterPool(stats func() db.Stats) {
	r.registry.MustRegister(newPoolCollector(stats))
}
