package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DiskManagerMetrics contains Prometheus metrics for retention runs.
type DiskManagerMetrics struct {
	diskUsageBytes            prometheus.Gauge
	diskTotalBytes            prometheus.Gauge
	diskUtilizationPercentage prometheus.Gauge
	cleanupOperationsTotal    *prometheus.CounterVec
	filesDeletedTotal         *prometheus.CounterVec
	bytesFreedTotal           *prometheus.CounterVec
	cleanupDurationSeconds    prometheus.Histogram
}

// NewDiskManagerMetrics creates and registers new disk manager metrics.
func NewDiskManagerMetrics(registry *prometheus.Registry) (*DiskManagerMetrics, error) {
	m := &DiskManagerMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register disk manager metrics: %w", err)
	}
	return m, nil
}

func (m *DiskManagerMetrics) initMetrics() {
	m.diskUsageBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "diskmanager_disk_usage_bytes",
		Help:      "Current disk usage of the output filesystem in bytes",
	})

	m.diskTotalBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "diskmanager_disk_total_bytes",
		Help:      "Total size of the output filesystem in bytes",
	})

	m.diskUtilizationPercentage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "diskmanager_disk_utilization_percentage",
		Help:      "Current disk utilization as a percentage",
	})

	m.cleanupOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "diskmanager_cleanup_operations_total",
		Help:      "Total number of cleanup runs",
	}, []string{"policy", "status"})

	m.filesDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "diskmanager_files_deleted_total",
		Help:      "Total number of files deleted by retention",
	}, []string{"policy"})

	m.bytesFreedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "diskmanager_bytes_freed_total",
		Help:      "Total bytes freed by retention",
	}, []string{"policy"})

	m.cleanupDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "diskmanager_cleanup_duration_seconds",
		Help:      "Time taken by a cleanup run",
		Buckets:   prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
	})
}

// UpdateDiskUsage records the current filesystem usage.
func (m *DiskManagerMetrics) UpdateDiskUsage(used, total uint64, percent float64) {
	m.diskUsageBytes.Set(float64(used))
	m.diskTotalBytes.Set(float64(total))
	m.diskUtilizationPercentage.Set(percent)
}

// RecordCleanup records the result of one policy run.
func (m *DiskManagerMetrics) RecordCleanup(policy string, deleted int, freed int64, seconds float64, err error) {
	status := LabelSuccess
	if err != nil {
		status = LabelError
	}
	m.cleanupOperationsTotal.WithLabelValues(policy, status).Inc()
	m.filesDeletedTotal.WithLabelValues(policy).Add(float64(deleted))
	m.bytesFreedTotal.WithLabelValues(policy).Add(float64(freed))
	m.cleanupDurationSeconds.Observe(seconds)
}

// Collect implements the prometheus.Collector interface.
func (m *DiskManagerMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.diskUsageBytes
	ch <- m.diskTotalBytes
	ch <- m.diskUtilizationPercentage
	m.cleanupOperationsTotal.Collect(ch)
	m.filesDeletedTotal.Collect(ch)
	m.bytesFreedTotal.Collect(ch)
	ch <- m.cleanupDurationSeconds
}

// Describe implements the prometheus.Collector interface.
func (m *DiskManagerMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.diskUsageBytes.Desc()
	ch <- m.diskTotalBytes.Desc()
	ch <- m.diskUtilizationPercentage.Desc()
	m.cleanupOperationsTotal.Describe(ch)
	m.filesDeletedTotal.Describe(ch)
	m.bytesFreedTotal.Describe(ch)
	ch <- m.cleanupDurationSeconds.Desc()
}
