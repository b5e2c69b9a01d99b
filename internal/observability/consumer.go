package observability

import (
	"github.com/reowatch/reowatch/internal/events"
	"github.com/reowatch/reowatch/internal/observability/metrics"
	"github.com/reowatch/reowatch/internal/recorder"
)

// Consumer updates recorder metrics from bus events.
type Consumer struct {
	m *metrics.RecorderMetrics
}

// NewConsumer returns an events.EventConsumer backed by m.
func NewConsumer(m *Metrics) *Consumer {
	return &Consumer{m: m.Recorder}
}

// Name implements events.EventConsumer.
func (c *Consumer) Name() string { return "metrics" }

// ProcessEvent implements events.EventConsumer.
func (c *Consumer) ProcessEvent(event events.Event) error {
	cam := event.Camera

	switch event.Kind {
	case events.KindDetectionStarted:
		c.m.Detections.WithLabelValues(cam).Inc()
	case events.KindRecordingStarted:
		c.m.RecordingsStarted.WithLabelValues(cam).Inc()
	case events.KindClipSaved:
		c.m.RecordingsCompleted.WithLabelValues(cam, metrics.LabelSuccess).Inc()
		if a := event.Artifact; a != nil {
			c.m.RecordingDuration.WithLabelValues(cam).Observe(a.Duration.Seconds())
			c.m.ClipBytes.WithLabelValues(cam).Add(float64(a.Size))
		}
	case events.KindRecordingFailed:
		c.m.RecordingsCompleted.WithLabelValues(cam, metrics.LabelError).Inc()
	case events.KindCaptureCrashed:
		c.m.CaptureCrashes.WithLabelValues(cam).Inc()
		c.m.RecordingsCompleted.WithLabelValues(cam, metrics.LabelCrashed).Inc()
	case events.KindSnapshotSaved:
		source := ""
		if event.Artifact != nil {
			source = event.Artifact.Source
		}
		c.m.Snapshots.WithLabelValues(cam, source, metrics.LabelSuccess).Inc()
	case events.KindSnapshotFailed:
		c.m.Snapshots.WithLabelValues(cam, "", metrics.LabelError).Inc()
	}
	return nil
}

// ObserveState records a recorder state change. It matches the observer
// signature the orchestrator accepts.
func (c *Consumer) ObserveState(camera string, state recorder.State) {
	c.m.CameraState.WithLabelValues(camera).Set(float64(state))
}
