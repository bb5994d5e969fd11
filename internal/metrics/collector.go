package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// QueueStats provides the collector access to live worker-pool state.
type QueueStats interface {
	QueueDepth() int
	ActiveWorkers() int
}

// ModelStats reports whether the model bundle is currently loaded.
type ModelStats interface {
	Initialized() bool
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool   *pgxpool.Pool
	queue  QueueStats
	models ModelStats

	queueDepth      *prometheus.Desc
	activeWorkers   *prometheus.Desc
	modelsLoaded    *prometheus.Desc
	dbTotalConns    *prometheus.Desc
	dbAcquiredConns *prometheus.Desc
	dbIdleConns     *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Any argument may be nil; its gauges then report 0.
func NewCollector(pool *pgxpool.Pool, queue QueueStats, models ModelStats) *Collector {
	return &Collector{
		pool:   pool,
		queue:  queue,
		models: models,
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "queue_depth"),
			"Jobs waiting in the processing queue.",
			nil, nil,
		),
		activeWorkers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_workers"),
			"Workers currently processing a job.",
			nil, nil,
		),
		modelsLoaded: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "models_loaded"),
			"Whether the inference model bundle is initialized (0 or 1).",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Database pool connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "idle_conns"),
			"Database pool idle connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.activeWorkers
	ch <- c.modelsLoaded
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var depth, active float64
	if c.queue != nil {
		depth = float64(c.queue.QueueDepth())
		active = float64(c.queue.ActiveWorkers())
	}
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, depth)
	ch <- prometheus.MustNewConstMetric(c.activeWorkers, prometheus.GaugeValue, active)

	var loaded float64
	if c.models != nil && c.models.Initialized() {
		loaded = 1
	}
	ch <- prometheus.MustNewConstMetric(c.modelsLoaded, prometheus.GaugeValue, loaded)

	if c.pool != nil {
		stat := c.pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(stat.IdleConns()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, 0)
	}
}
