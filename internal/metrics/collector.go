package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// JobStats provides the metrics collector access to live job-queue state.
type JobStats interface {
	ProcessingJobCount() int64
	PendingCheckCount() int64
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool  *pgxpool.Pool
	stats JobStats

	// Descriptors for scrape-time gauges.
	processingJobs  *prometheus.Desc
	pendingChecks   *prometheus.Desc
	dbTotalConns    *prometheus.Desc
	dbAcquiredConns *prometheus.Desc
	dbIdleConns     *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// pool may be nil (metrics will report 0). stats may be nil if no store is wired.
func NewCollector(pool *pgxpool.Pool, stats JobStats) *Collector {
	return &Collector{
		pool:  pool,
		stats: stats,
		processingJobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "processing_jobs"),
			"Current number of transcription jobs in the processing state.",
			nil, nil,
		),
		pendingChecks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pending_checks"),
			"Current number of scheduled status checks not yet run.",
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
	ch <- c.processingJobs
	ch <- c.pendingChecks
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	// Job queue stats
	if c.stats != nil {
		ch <- prometheus.MustNewConstMetric(c.processingJobs, prometheus.GaugeValue, float64(c.stats.ProcessingJobCount()))
		ch <- prometheus.MustNewConstMetric(c.pendingChecks, prometheus.GaugeValue, float64(c.stats.PendingCheckCount()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.processingJobs, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.pendingChecks, prometheus.GaugeValue, 0)
	}

	// Database pool stats
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
