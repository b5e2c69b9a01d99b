// Package metrics provides custom Prometheus metrics for reowatch components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// RecorderMetrics covers recordings, snapshots and capture crashes.
type RecorderMetrics struct {
	RecordingsStarted   *prometheus.CounterVec   // by camera
	RecordingsCompleted *prometheus.CounterVec   // by camera, result
	RecordingDuration   *prometheus.HistogramVec // by camera
	ClipBytes           *prometheus.CounterVec   // by camera
	Snapshots           *prometheus.CounterVec   // by camera, source, result
	CaptureCrashes      *prometheus.CounterVec   // by camera
	Detections          *prometheus.CounterVec   // by camera
	CameraState         *prometheus.GaugeVec     // by camera, numeric recorder state
}

// NewRecorderMetrics creates and registers the recorder metrics.
func NewRecorderMetrics(registry *prometheus.Registry) (*RecorderMetrics, error) {
	m := &RecorderMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register recorder metrics: %w", err)
	}
	return m, nil
}

func (m *RecorderMetrics) initMetrics() {
	m.RecordingsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "recordings_started_total",
		Help:      "Total number of recordings started",
	}, []string{"camera"})

	m.RecordingsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "recordings_completed_total",
		Help:      "Total number of recordings finished, by result",
	}, []string{"camera", "result"}) // result: success, unstable, crashed, error

	m.RecordingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "recording_duration_seconds",
		Help:      "Duration of saved clips",
		Buckets:   prometheus.ExponentialBuckets(BucketStart1s, BucketFactor2, BucketCount12), // 1s to ~68m
	}, []string{"camera"})

	m.ClipBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "clip_bytes_total",
		Help:      "Total bytes written to saved clips",
	}, []string{"camera"})

	m.Snapshots = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "snapshots_total",
		Help:      "Total number of snapshot attempts by source and result",
	}, []string{"camera", "source", "result"})

	m.CaptureCrashes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "capture_crashes_total",
		Help:      "Total number of capture processes that exited unexpectedly",
	}, []string{"camera"})

	m.Detections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "person_detections_total",
		Help:      "Total number of person detection rising edges",
	}, []string{"camera"})

	m.CameraState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "camera_state",
		Help:      "Recorder state per camera (0=idle, 1=recording, 2=stopping_delayed, 3=stopping)",
	}, []string{"camera"})
}

// Collect implements the prometheus.Collector interface.
func (m *RecorderMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RecordingsStarted.Collect(ch)
	m.RecordingsCompleted.Collect(ch)
	m.RecordingDuration.Collect(ch)
	m.ClipBytes.Collect(ch)
	m.Snapshots.Collect(ch)
	m.CaptureCrashes.Collect(ch)
	m.Detections.Collect(ch)
	m.CameraState.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *RecorderMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RecordingsStarted.Describe(ch)
	m.RecordingsCompleted.Describe(ch)
	m.RecordingDuration.Describe(ch)
	m.ClipBytes.Describe(ch)
	m.Snapshots.Describe(ch)
	m.CaptureCrashes.Describe(ch)
	m.Detections.Describe(ch)
	m.CameraState.Describe(ch)
}
