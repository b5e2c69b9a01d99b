// Package orchestrator runs one detection and recording pipeline per
// enabled camera and tears them down in order on shutdown.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reowatch/reowatch/internal/artifacts"
	"github.com/reowatch/reowatch/internal/camera"
	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/detection"
	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/events"
	"github.com/reowatch/reowatch/internal/filecheck"
	"github.com/reowatch/reowatch/internal/logger"
	"github.com/reowatch/reowatch/internal/recorder"
	"github.com/reowatch/reowatch/internal/snapshot"
)

// ErrNoCameras is returned by Start when no camera could be initialised.
var ErrNoCameras = errors.NewStd("no camera could be initialised")

// DefaultShutdownTimeout leaves room for a full stop ladder plus the
// stability check on every camera.
const DefaultShutdownTimeout = 60 * time.Second

// SessionFactory creates the camera session for cam.
type SessionFactory func(cam conf.CameraSettings) camera.Session

// ReolinkSessions is the production SessionFactory.
func ReolinkSessions(cam conf.CameraSettings) camera.Session {
	return camera.NewClient(cam)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSessionFactory overrides how camera sessions are created.
func WithSessionFactory(f SessionFactory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

// WithPublisher sets the event sink shared by all pipelines.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.pub = p }
}

// WithSpaceGuard installs a free-space check for recording starts.
func WithSpaceGuard(g recorder.SpaceGuard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

// WithStateObserver is told about every recorder state change.
func WithStateObserver(fn func(camera string, state recorder.State)) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

// pipeline is everything running for one camera
type pipeline struct {
	cam       conf.CameraSettings
	session   camera.Session
	recorder  *recorder.Controller
	debouncer *detection.Debouncer
}

// CameraStatus is a point-in-time view of one camera.
type CameraStatus struct {
	Name           string    `json:"name"`
	State          string    `json:"state"`
	Detected       bool      `json:"detected"`
	LastChange     time.Time `json:"last_change,omitzero"`
	ClipPath       string    `json:"clip_path,omitempty"`
	RecordingSince time.Time `json:"recording_since,omitzero"`
}

// Orchestrator owns the camera pipelines.
type Orchestrator struct {
	settings *conf.Settings
	factory  SessionFactory
	pub      events.Publisher
	guard    recorder.SpaceGuard
	observe  func(string, recorder.State)
	log      logger.Logger

	mu        sync.RWMutex
	pipelines []*pipeline
	cancel    context.CancelFunc
	loops     *errgroup.Group
	started   bool
}

// New returns an orchestrator for the enabled cameras in settings.
func New(settings *conf.Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		settings: settings,
		factory:  ReolinkSessions,
		pub:      events.Discard{},
		log:      logger.Global().Module("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start initialises every enabled camera and launches its monitoring loop.
// Cameras that fail to initialise are logged and skipped.
func (o *Orchestrator) Start(ctx context.Context) error {
	cams := o.settings.EnabledCameras()

	var (
		mu      sync.Mutex
		ready   []*pipeline
		initErr = make(map[string]error)
		g       errgroup.Group
	)
	for _, cam := range cams {
		g.Go(func() error {
			p, err := o.initCamera(ctx, cam)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				initErr[cam.Name] = err
				return nil
			}
			ready = append(ready, p)
			return nil
		})
	}
	_ = g.Wait()

	for name, err := range initErr {
		o.log.Error("camera initialisation failed, skipping it",
			logger.String("camera", name),
			logger.Error(err))
	}
	if len(ready) == 0 {
		return errors.New(ErrNoCameras).
			Component("orchestrator").
			Category(errors.CategoryConfiguration).
			Context("configured", len(cams)).
			Build()
	}

	// Keep configuration order for status output
	ordered := make([]*pipeline, 0, len(ready))
	for _, cam := range cams {
		for _, p := range ready {
			if p.cam.Name == cam.Name {
				ordered = append(ordered, p)
			}
		}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	loops, loopCtx := errgroup.WithContext(loopCtx)
	for _, p := range ordered {
		loops.Go(func() error {
			o.monitor(loopCtx, p)
			return nil
		})
	}

	o.mu.Lock()
	o.pipelines = ordered
	o.cancel = cancel
	o.loops = loops
	o.started = true
	o.mu.Unlock()

	o.log.Info("monitoring cameras",
		logger.Int("active", len(ordered)),
		logger.Int("configured", len(cams)))
	return nil
}

// initCamera connects a camera and wires its pipeline
func (o *Orchestrator) initCamera(ctx context.Context, cam conf.CameraSettings) (*pipeline, error) {
	session := o.factory(cam)

	if err := session.Connect(ctx); err != nil {
		return nil, err
	}

	if !session.SupportsAI(cam.Channel, detection.PersonKind) {
		_ = session.Disconnect(ctx)
		return nil, errors.Newf("camera does not support person detection on channel %d", cam.Channel).
			Component("orchestrator").
			Category(errors.CategoryCapability).
			Context("camera", cam.Name).
			Build()
	}

	rec := o.settings.Recording
	base := rec.OutputDir
	streamURL := session.StreamParams().RTSPURL()
	namer := &artifacts.Namer{}

	recOpts := []recorder.Option{
		recorder.WithPublisher(o.pub),
		recorder.WithNamer(namer),
	}
	if o.guard != nil {
		recOpts = append(recOpts, recorder.WithSpaceGuard(o.guard))
	}
	if o.observe != nil {
		name := cam.Name
		recOpts = append(recOpts, recorder.WithStateObserver(func(s recorder.State) { o.observe(name, s) }))
	}

	controller := recorder.New(recorder.Config{
		Camera:        cam.Name,
		Channel:       cam.Channel,
		StreamURL:     streamURL,
		ClipDir:       cam.ClipPath(base),
		FfmpegPath:    rec.FfmpegPath,
		PostDetection: rec.PostDetection,
		GraceTimeout:  rec.GraceTimeout,
		TermTimeout:   rec.TermTimeout,
		Settle:        rec.Settle,
		Stability: filecheck.Options{
			PollInterval:   rec.Stability.Interval,
			RequiredStable: rec.Stability.Required,
			MaxAttempts:    rec.Stability.Attempts,
		},
	}, recOpts...)

	producer := snapshot.New(snapshot.Config{
		Camera:     cam.Name,
		Channel:    cam.Channel,
		Dir:        cam.SnapshotPath(base),
		StreamURL:  streamURL,
		FfmpegPath: rec.FfmpegPath,
		Timeout:    rec.SnapshotTimeout,
	}, session, namer, o.pub)

	debouncer := detection.NewDebouncer(cam.Name, cam.Channel, session, controller, producer, o.pub)
	session.RegisterDetectionCallback("person-watcher", debouncer.OnNotification)

	if err := session.SubscribeEvents(ctx); err != nil {
		debouncer.Close()
		_ = session.Disconnect(ctx)
		return nil, err
	}
	// a person already in view when monitoring begins produces no change
	// notification, so sync with the state read during Connect
	debouncer.OnNotification()

	o.log.Info("camera ready",
		logger.String("camera", cam.Name),
		logger.Int("channel", cam.Channel))

	return &pipeline{
		cam:       cam,
		session:   session,
		recorder:  controller,
		debouncer: debouncer,
	}, nil
}

// monitor periodically reports how long a camera has been quiet
func (o *Orchestrator) monitor(ctx context.Context, p *pipeline) {
	interval := o.settings.Recording.StatusInterval
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := p.debouncer.Snapshot()
			since := started
			if !st.LastChange.IsZero() {
				since = st.LastChange
			}
			o.log.Debug("camera status",
				logger.String("camera", p.cam.Name),
				logger.Bool("person_detected", st.Detected),
				logger.String("recorder", p.recorder.State().String()),
				logger.Duration("since_last_change", time.Since(since).Round(time.Second)))
		}
	}
}

// Run starts the pipelines, blocks until ctx is cancelled and shuts down.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	o.Shutdown(shutdownCtx)
	return nil
}

// Shutdown stops the monitoring loops, then stops recording, unsubscribes
// and disconnects every camera concurrently. Errors are logged, not
// returned.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	pipelines := o.pipelines
	cancel, loops := o.cancel, o.loops
	o.mu.Unlock()

	cancel()
	_ = loops.Wait()

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	collect := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, p := range pipelines {
		g.Go(func() error {
			p.debouncer.Close()
			if _, err := p.recorder.StopNow(ctx); err != nil {
				collect(wrapShutdown(p.cam.Name, "stop_recording", err))
			}
			collect(wrapShutdown(p.cam.Name, "unsubscribe", p.session.UnsubscribeEvents(ctx)))
			collect(wrapShutdown(p.cam.Name, "disconnect", p.session.Disconnect(ctx)))
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		o.log.Warn("error during shutdown", logger.Error(err))
	}
	o.log.Info("all cameras stopped", logger.Int("errors", len(errs)))
}

func wrapShutdown(cam, op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.New(err).
		Component("orchestrator").
		Context("camera", cam).
		Context("operation", op).
		Build()
}

// Cameras returns the status of every running camera.
func (o *Orchestrator) Cameras() []CameraStatus {
	o.mu.RLock()
	pipelines := o.pipelines
	o.mu.RUnlock()

	out := make([]CameraStatus, 0, len(pipelines))
	for _, p := range pipelines {
		det := p.debouncer.Snapshot()
		rec := p.recorder.Status()
		out = append(out, CameraStatus{
			Name:           p.cam.Name,
			State:          rec.State.String(),
			Detected:       det.Detected,
			LastChange:     det.LastChange,
			ClipPath:       rec.ClipPath,
			RecordingSince: rec.StartedAt,
		})
	}
	return out
}
