//go:build !windows

package orchestrator

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reowatch/reowatch/internal/camera"
	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/events"
	"github.com/reowatch/reowatch/internal/recorder"
	"github.com/reowatch/reowatch/internal/testutil"
)

func testSettings(t *testing.T, names ...string) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Recording = conf.RecordingSettings{
		PostDetection:   100 * time.Millisecond,
		OutputDir:       t.TempDir(),
		FfmpegPath:      fakes.Graceful,
		GraceTimeout:    2 * time.Second,
		TermTimeout:     time.Second,
		SnapshotTimeout: 2 * time.Second,
		StatusInterval:  20 * time.Millisecond,
		Stability: conf.StabilitySettings{
			Interval: 10 * time.Millisecond,
			Required: 2,
			Attempts: 50,
		},
	}
	for i, name := range names {
		s.Cameras = append(s.Cameras, conf.CameraSettings{
			Name:     name,
			Host:     "10.0.0.1" + string(rune('0'+i)),
			Port:     80,
			Username: "admin",
			Password: "secret",
			Codec:    conf.CodecH264,
			Enabled:  true,
		})
	}
	return s
}

// fakeFactory hands out camera.Fake sessions and lets tests prepare them
type fakeFactory struct {
	mu    sync.Mutex
	fakes map[string]*camera.Fake
	setup func(name string, f *camera.Fake)
}

func (ff *fakeFactory) create(cam conf.CameraSettings) camera.Session {
	f := camera.NewFake(cam)
	if ff.setup != nil {
		ff.setup(cam.Name, f)
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.fakes == nil {
		ff.fakes = make(map[string]*camera.Fake)
	}
	ff.fakes[cam.Name] = f
	return f
}

func (ff *fakeFactory) get(name string) *camera.Fake {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.fakes[name]
}

func TestStartSkipsFailedCamera(t *testing.T) {
	t.Parallel()

	ff := &fakeFactory{setup: func(name string, f *camera.Fake) {
		if name == "porch" {
			f.ConnectErr = errors.NewStd("login failed")
		}
	}}
	o := New(testSettings(t, "garden", "porch"), WithSessionFactory(ff.create))

	require.NoError(t, o.Start(t.Context()))
	defer o.Shutdown(context.Background())

	cams := o.Cameras()
	require.Len(t, cams, 1)
	assert.Equal(t, "garden", cams[0].Name)
	assert.Equal(t, recorder.StateIdle.String(), cams[0].State)
	assert.Equal(t, []string{"Connect"}, ff.get("porch").Calls())
}

func TestStartWithNoUsableCamera(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(f *camera.Fake)
	}{
		{"connect fails", func(f *camera.Fake) { f.ConnectErr = errors.NewStd("unreachable") }},
		{"no person detection", func(f *camera.Fake) { f.SetSupported(camera.KindPerson, false) }},
		{"subscribe fails", func(f *camera.Fake) { f.SubscribeErr = errors.NewStd("poll failed") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ff := &fakeFactory{setup: func(_ string, f *camera.Fake) { tt.setup(f) }}
			o := New(testSettings(t, "garden"), WithSessionFactory(ff.create))

			err := o.Start(t.Context())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNoCameras)
			assert.Empty(t, o.Cameras())
			assert.False(t, ff.get("garden").Connected(), "session left connected")
		})
	}
}

func TestStartWithNoCamerasConfigured(t *testing.T) {
	t.Parallel()

	o := New(testSettings(t), WithSessionFactory((&fakeFactory{}).create))
	assert.ErrorIs(t, o.Start(t.Context()), ErrNoCameras)

	// Shutdown before a successful start is a no-op
	o.Shutdown(context.Background())
}

func TestStartupOrder(t *testing.T) {
	t.Parallel()

	ff := &fakeFactory{}
	o := New(testSettings(t, "garden"), WithSessionFactory(ff.create))
	require.NoError(t, o.Start(t.Context()))

	assert.Equal(t, []string{"Connect", "RegisterDetectionCallback", "SubscribeEvents"}, ff.get("garden").Calls())

	o.Shutdown(context.Background())
	assert.Equal(t,
		[]string{"Connect", "RegisterDetectionCallback", "SubscribeEvents", "UnsubscribeEvents", "Disconnect"},
		ff.get("garden").Calls())
	assert.False(t, ff.get("garden").Connected())

	// Second shutdown does nothing
	o.Shutdown(context.Background())
	assert.Len(t, ff.get("garden").Calls(), 5)
}

func TestDetectionRecordsAndShutdownFinalizesClip(t *testing.T) {
	t.Parallel()

	ff := &fakeFactory{}
	pub := testutil.NewEventRecorder()

	var mu sync.Mutex
	var states []recorder.State
	observer := func(cam string, s recorder.State) {
		mu.Lock()
		defer mu.Unlock()
		if cam == "garden" {
			states = append(states, s)
		}
	}

	o := New(testSettings(t, "garden", "porch"),
		WithSessionFactory(ff.create),
		WithPublisher(pub),
		WithStateObserver(observer))
	require.NoError(t, o.Start(t.Context()))

	ff.get("garden").SetDetected(camera.KindPerson, true)

	snaps := pub.WaitFor(t, events.KindSnapshotSaved, 1, testutil.DefaultTestTimeout)
	assert.Equal(t, "garden", snaps[0].Camera)
	assert.Equal(t, events.SourceCameraAPI, snaps[0].Artifact.Source)
	assert.FileExists(t, snaps[0].Artifact.Path)

	pub.WaitFor(t, events.KindRecordingStarted, 1, testutil.DefaultTestTimeout)
	require.Eventually(t, func() bool {
		for _, c := range o.Cameras() {
			if c.Name == "garden" {
				return c.State == recorder.StateRecording.String() && c.Detected && c.ClipPath != ""
			}
		}
		return false
	}, testutil.DefaultTestTimeout, 5*time.Millisecond)

	// Let the status loop tick at least once
	time.Sleep(50 * time.Millisecond)

	o.Shutdown(context.Background())

	clips := pub.OfKind(events.KindClipSaved)
	require.Len(t, clips, 1)
	assert.Equal(t, "garden", clips[0].Camera)
	info, err := os.Stat(clips[0].Artifact.Path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Empty(t, pub.OfKind(events.KindCaptureCrashed))
	assert.Empty(t, pub.OfKind(events.KindRecordingStarted)[1:])
	assert.Contains(t, ff.get("porch").Calls(), "Disconnect")

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, recorder.StateRecording, states[0])
	assert.Equal(t, recorder.StateIdle, states[len(states)-1])
}

func TestPersonPresentAtStartupIsRecorded(t *testing.T) {
	t.Parallel()

	ff := &fakeFactory{setup: func(_ string, f *camera.Fake) {
		f.SetDetected(camera.KindPerson, true)
	}}
	pub := testutil.NewEventRecorder()
	o := New(testSettings(t, "garden"), WithSessionFactory(ff.create), WithPublisher(pub))
	require.NoError(t, o.Start(t.Context()))

	pub.WaitFor(t, events.KindDetectionStarted, 1, testutil.DefaultTestTimeout)
	pub.WaitFor(t, events.KindSnapshotSaved, 1, testutil.DefaultTestTimeout)
	pub.WaitFor(t, events.KindRecordingStarted, 1, testutil.DefaultTestTimeout)

	o.Shutdown(context.Background())
	require.Len(t, pub.OfKind(events.KindClipSaved), 1)
	assert.Len(t, pub.OfKind(events.KindDetectionStarted), 1)
}

func TestShutdownLogsErrorsWithoutFailing(t *testing.T) {
	t.Parallel()

	ff := &fakeFactory{setup: func(_ string, f *camera.Fake) {
		f.UnsubscribeErr = errors.NewStd("unsubscribe failed")
		f.DisconnectErr = errors.NewStd("logout failed")
	}}
	o := New(testSettings(t, "garden"), WithSessionFactory(ff.create))
	require.NoError(t, o.Start(t.Context()))

	o.Shutdown(context.Background())
	assert.Equal(t, []string{"UnsubscribeEvents", "Disconnect"}, ff.get("garden").Calls()[3:])
}

func TestRunReturnsAfterCancel(t *testing.T) {
	t.Parallel()

	ff := &fakeFactory{}
	o := New(testSettings(t, "garden"), WithSessionFactory(ff.create))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool { return len(o.Cameras()) == 1 },
		testutil.DefaultTestTimeout, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testutil.DefaultTestTimeout):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, ff.get("garden").Connected())
}
