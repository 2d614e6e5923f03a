// Package metrics exposes Prometheus collectors for the compression engine,
// the archive store and the scheduler.
//
// Collectors are registered on an injected prometheus.Registerer so tests can
// use a private registry. A nil *Collectors is valid and records nothing.
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	engine := compression.New(cfg, compression.WithMetrics(m))
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "statvault"

// Queue names used as label values.
const (
	QueueCompression = "compression"
	QueueArchive     = "archive"
)

// Collectors holds every statvault metric.
type Collectors struct {
	compressions      *prometheus.CounterVec   // by data type and outcome
	compressionRatio  *prometheus.HistogramVec // final ratio by data type
	compressionTime   *prometheus.HistogramVec // pipeline latency by data type
	stageFailures     *prometheus.CounterVec   // absorbed codec errors by algorithm
	bytesSaved        prometheus.Counter
	queueDepth        *prometheus.GaugeVec     // pending jobs by queue
	operations        *prometheus.CounterVec   // archive operations by kind and outcome
	operationLatency  *prometheus.HistogramVec // archive operation latency by kind
	checksumMismatch  prometheus.Counter
	archives          prometheus.Gauge
	archivedBytes     prometheus.Gauge
	retentionDeleted  prometheus.Counter
	schedulerRuns     *prometheus.CounterVec // by job and outcome
	schedulerDuration *prometheus.HistogramVec
}

// New creates and registers collectors on reg.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		compressions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compression",
			Name:      "jobs_total",
			Help:      "Compression jobs by data type and outcome (compressed, ineffective, failed).",
		}, []string{"data_type", "outcome"}),
		compressionRatio: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compression",
			Name:      "ratio",
			Help:      "Final size divided by original size.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 0.7, 0.9, 1, 1.5},
		}, []string{"data_type"}),
		compressionTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compression",
			Name:      "duration_seconds",
			Help:      "Time spent running the codec pipeline.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"data_type"}),
		stageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compression",
			Name:      "stage_failures_total",
			Help:      "Codec stages that failed and passed their input through.",
		}, []string{"algorithm"}),
		bytesSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compression",
			Name:      "bytes_saved_total",
			Help:      "Bytes saved by effective compressions.",
		}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker.",
		}, []string{"queue"}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "operations_total",
			Help:      "Archive store operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		operationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "operation_duration_seconds",
			Help:      "Archive store operation latency, excluding queue wait.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		checksumMismatch: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "checksum_mismatches_total",
			Help:      "Restores whose data did not match the stored checksum.",
		}),
		archives: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "records",
			Help:      "Archives currently held.",
		}),
		archivedBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "stored_bytes",
			Help:      "Total archived payload size.",
		}),
		retentionDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "retention_deleted_total",
			Help:      "Archives removed by the retention sweep.",
		}),
		schedulerRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduled job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		schedulerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Scheduled job run time including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"job"}),
	}
}

func (c *Collectors) ObserveCompression(dataType, outcome string, ratio float64, d time.Duration) {
	if c == nil {
		return
	}
	c.compressions.WithLabelValues(dataType, outcome).Inc()
	c.compressionRatio.WithLabelValues(dataType).Observe(ratio)
	c.compressionTime.WithLabelValues(dataType).Observe(d.Seconds())
}

func (c *Collectors) StageFailed(algorithm string) {
	if c == nil {
		return
	}
	c.stageFailures.WithLabelValues(algorithm).Inc()
}

func (c *Collectors) BytesSaved(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesSaved.Add(float64(n))
}

func (c *Collectors) QueueDepth(queue string, n int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(queue).Set(float64(n))
}

func (c *Collectors) ObserveOperation(operation string, err error, d time.Duration) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.operations.WithLabelValues(operation, outcome).Inc()
	c.operationLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func (c *Collectors) ChecksumMismatch() {
	if c == nil {
		return
	}
	c.checksumMismatch.Inc()
}

func (c *Collectors) SetArchives(count int, bytes int64) {
	if c == nil {
		return
	}
	c.archives.Set(float64(count))
	c.archivedBytes.Set(float64(bytes))
}

func (c *Collectors) RetentionDeleted(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.retentionDeleted.Add(float64(n))
}

func (c *Collectors) ObserveSchedulerRun(job string, err error, d time.Duration) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.schedulerRuns.WithLabelValues(job, outcome).Inc()
	c.schedulerDuration.WithLabelValues(job).Observe(d.Seconds())
}
