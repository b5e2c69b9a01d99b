package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/events"
	"github.com/reowatch/reowatch/internal/observability/metrics"
)

type fakeProvider struct {
	mu   sync.Mutex
	sent []*Notification
	err  error
}

func (f *fakeProvider) GetName() string { return "fake" }

func (f *fakeProvider) Send(_ context.Context, n *Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeProvider) Sent() []*Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Notification(nil), f.sent...)
}

func TestRender(t *testing.T) {
	t.Parallel()

	clip := events.NewEvent(events.KindClipSaved, "front").WithArtifact(events.Artifact{
		Path:     "/rec/front/clips/person_detection_20240101_120000_000_ch0.mp4",
		Size:     3 * 1024 * 1024,
		Duration: 61400 * time.Millisecond,
	})
	crash := events.NewEvent(events.KindCaptureCrashed, "front")
	crash.ExitCode = 1
	crash.Stderr = []string{"Input #0", "rtsp://camera: 401 Unauthorized"}
	failed := events.NewEvent(events.KindRecordingFailed, "back").WithError(errors.NewStd("disk full"))

	tests := []struct {
		name        string
		event       events.Event
		wantTitle   string
		wantMessage string
	}{
		{"clip", clip, "Clip from front", "Recorded 1m1s (3.0 MB): person_detection_20240101_120000_000_ch0.mp4"},
		{"crash", crash, "Capture crashed on front", "ffmpeg exited with code 1.\nrtsp://camera: 401 Unauthorized"},
		{"failure", failed, "Recording failed on back", "disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := Render(tt.event)
			require.NotNil(t, n)
			assert.Equal(t, tt.wantTitle, n.Title)
			assert.Equal(t, tt.wantMessage, n.Message)
		})
	}

	for _, k := range events.AllKinds() {
		assert.NotNil(t, Render(events.NewEvent(k, "front")), "kind %s has no message", k)
	}
	assert.Nil(t, Render(events.NewEvent("unknown", "front")))
}

func TestConsumerFiltersKinds(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	c := NewConsumer([]Provider{p}, nil, 0)
	assert.Equal(t, "notification", c.Name())

	for _, k := range events.AllKinds() {
		require.NoError(t, c.ProcessEvent(events.NewEvent(k, "front")))
	}

	sent := p.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, events.KindClipSaved, sent[0].Kind)
	assert.Equal(t, events.KindCaptureCrashed, sent[1].Kind)
}

func TestConsumerReportsFailures(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewNotificationMetrics(reg)
	require.NoError(t, err)

	bad := &fakeProvider{err: errors.NewStd("503")}
	good := &fakeProvider{}
	c := NewConsumer([]Provider{bad, good}, []events.Kind{events.KindDetectionStarted}, time.Second, WithMetrics(m))

	err = c.ProcessEvent(events.NewEvent(events.KindDetectionStarted, "front"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotification))
	assert.Len(t, good.Sent(), 1, "one failing provider must not block the others")
	assert.InDelta(t, 1, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("detection_started", metrics.LabelError)), 0)
}

func TestConsumerRateLimit(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	c := NewConsumer([]Provider{p}, []events.Kind{events.KindClipSaved}, time.Second,
		WithRateLimit(rate.NewLimiter(rate.Every(time.Hour), 2)))

	for range 5 {
		require.NoError(t, c.ProcessEvent(events.NewEvent(events.KindClipSaved, "front")))
	}
	assert.Len(t, p.Sent(), 2)
}

func TestShoutrrrProvider(t *testing.T) {
	t.Parallel()

	_, err := NewShoutrrrProvider(nil, time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = NewShoutrrrProvider([]string{"notaservice://token@host"}, time.Second)
	require.Error(t, err)

	p, err := NewShoutrrrProvider([]string{"logger://"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "shoutrrr", p.GetName())
	assert.NoError(t, p.Send(t.Context(), &Notification{Title: "t", Message: "hello"}))
}
