// Package recorder drives the per-camera recording lifecycle: it starts an
// ffmpeg capture when a person appears, keeps it running while detections
// continue, and stops it a configurable delay after the last one.
package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/reowatch/reowatch/internal/artifacts"
	"github.com/reowatch/reowatch/internal/capture"
	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/events"
	"github.com/reowatch/reowatch/internal/filecheck"
	"github.com/reowatch/reowatch/internal/logger"
	"github.com/reowatch/reowatch/internal/privacy"
)

const (
	// stderrTailLines is how much ffmpeg output is surfaced on a crash
	stderrTailLines = 15
	// killWait bounds the wait after SIGKILL
	killWait = 5 * time.Second
)

// Config holds the per-camera recording parameters.
type Config struct {
	Camera        string
	Channel       int
	StreamURL     string
	ClipDir       string
	FfmpegPath    string
	PostDetection time.Duration
	GraceTimeout  time.Duration
	TermTimeout   time.Duration
	Settle        time.Duration
	Stability     filecheck.Options
}

// Clip describes a finished recording.
type Clip struct {
	Path      string
	Size      int64
	Duration  time.Duration
	StartedAt time.Time
	Stable    bool
}

// Status is a point-in-time view of the controller.
type Status struct {
	State     State
	ClipPath  string
	StartedAt time.Time
}

// SpaceGuard is consulted before a recording starts.
type SpaceGuard interface {
	CheckSpace(dir string)
}

// Option configures a Controller.
type Option func(*Controller)

// WithPublisher sets where lifecycle events are sent.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) { c.pub = p }
}

// WithSpaceGuard installs a free-space check run at recording start.
func WithSpaceGuard(g SpaceGuard) Option {
	return func(c *Controller) { c.guard = g }
}

// WithStateObserver registers fn to be called after every state change.
// fn runs with the controller locked and must not call back into it.
func WithStateObserver(fn func(State)) Option {
	return func(c *Controller) { c.observe = fn }
}

// WithNamer shares a file namer with other producers for the same camera.
func WithNamer(n *artifacts.Namer) Option {
	return func(c *Controller) { c.namer = n }
}

// session is one capture process and the background work attached to it
type session struct {
	path        string
	proc        *capture.Process
	startedAt   time.Time
	timer       *time.Timer
	watchCancel context.CancelFunc
	watchDone   chan struct{}
	// stopped is closed once the session has been torn down
	stopped chan struct{}
}

// Controller owns at most one recording session for a camera.
type Controller struct {
	cfg     Config
	pub     events.Publisher
	guard   SpaceGuard
	observe func(State)
	namer   *artifacts.Namer
	log     logger.Logger

	mu    sync.Mutex
	state State
	sess  *session
	// timerGen invalidates stop timers that were cancelled after firing
	timerGen uint64
}

// New returns an idle controller.
func New(cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:   cfg,
		pub:   events.Discard{},
		state: StateIdle,
		log:   logger.Global().Module("recorder").With(logger.String("camera", cfg.Camera)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.namer == nil {
		c.namer = &artifacts.Namer{}
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the current state and active clip, if any.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state}
	if c.sess != nil {
		st.ClipPath = c.sess.path
		st.StartedAt = c.sess.startedAt
	}
	return st
}

// IsIdle reports whether no recording is active.
func (c *Controller) IsIdle() bool {
	return c.State() == StateIdle
}

// transitionState moves to the given state if the table allows it. It must
// be called with c.mu held.
func (c *Controller) transitionState(to State) error {
	from := c.state
	if !canTransition(from, to) {
		err := errors.Newf("invalid recorder transition %s -> %s", from, to).
			Component("recorder").
			Category(errors.CategoryState).
			Context("camera", c.cfg.Camera).
			Build()
		c.log.Error("rejected state transition", logger.Error(err))
		return err
	}

	c.state = to
	if from != to {
		c.log.Debug("state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	}
	if c.observe != nil {
		c.observe(to)
	}
	return nil
}

// StartOrExtend begins a recording when idle, or keeps the current one
// running. A pending delayed stop is cancelled and the same file continues.
// If a stop is in progress, it waits for it and then starts a new clip.
func (c *Controller) StartOrExtend(ctx context.Context) error {
	c.mu.Lock()
	for c.state == StateStopping {
		stopped := c.sess.stopped
		c.mu.Unlock()
		select {
		case <-stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	defer c.mu.Unlock()

	switch c.state {
	case StateRecording:
		c.log.Trace("recording already active")
		return nil

	case StateStoppingDelayed:
		c.cancelTimerLocked()
		if err := c.transitionState(StateRecording); err != nil {
			return err
		}
		c.log.Info("person detected again, continuing recording",
			logger.String("path", c.sess.path))
		return nil

	case StateIdle:
		return c.startLocked(ctx)
	}
	return nil
}

// startLocked spawns the capture process and its watchdog
func (c *Controller) startLocked(ctx context.Context) error {
	if err := os.MkdirAll(c.cfg.ClipDir, 0o755); err != nil {
		enhanced := errors.New(err).
			Component("recorder").
			Category(errors.CategoryFileIO).
			Context("operation", "create_clip_dir").
			Context("camera", c.cfg.Camera).
			Build()
		c.publishFailure("", enhanced)
		return enhanced
	}
	if c.guard != nil {
		c.guard.CheckSpace(c.cfg.ClipDir)
	}

	now := time.Now()
	path := artifacts.ClipPath(c.cfg.ClipDir, c.namer.Stamp(now), c.cfg.Channel)

	proc, err := capture.Spawn(ctx, capture.Config{
		FfmpegPath: c.cfg.FfmpegPath,
		URL:        c.cfg.StreamURL,
		Output:     path,
		Mode:       capture.ModeRecord,
	})
	if err != nil {
		c.log.Error("failed to start recording",
			logger.String("url", privacy.SanitizeRTSPUrl(c.cfg.StreamURL)),
			logger.Error(err))
		c.publishFailure(path, err)
		return err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		path:        path,
		proc:        proc,
		startedAt:   now,
		watchCancel: cancel,
		watchDone:   make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	c.sess = sess
	_ = c.transitionState(StateRecording)
	go c.watchdog(watchCtx, sess)

	c.log.Info("recording started",
		logger.String("path", path),
		logger.Int("pid", proc.PID()))
	c.pub.TryPublish(events.NewEvent(events.KindRecordingStarted, c.cfg.Camera).
		WithArtifact(events.Artifact{
			Kind:      events.ArtifactClip,
			Camera:    c.cfg.Camera,
			Path:      path,
			CreatedAt: now,
		}))
	return nil
}

// StopAfterDelay arms the post-detection timer. Calling it again while the
// timer is pending restarts the delay. It does nothing when not recording.
func (c *Controller) StopAfterDelay() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateRecording, StateStoppingDelayed:
	default:
		c.log.Trace("no recording to stop", logger.String("state", c.state.String()))
		return
	}

	c.cancelTimerLocked()
	c.timerGen++
	gen := c.timerGen
	c.sess.timer = time.AfterFunc(c.cfg.PostDetection, func() {
		c.onStopTimer(gen)
	})
	_ = c.transitionState(StateStoppingDelayed)

	c.log.Debug("stop scheduled", logger.Duration("delay", c.cfg.PostDetection))
}

// cancelTimerLocked stops any pending stop timer. Bumping the generation
// also defuses a callback that already started and is waiting for c.mu.
func (c *Controller) cancelTimerLocked() {
	c.timerGen++
	if c.sess != nil && c.sess.timer != nil {
		c.sess.timer.Stop()
		c.sess.timer = nil
	}
}

// onStopTimer runs the stop protocol when the delay expires
func (c *Controller) onStopTimer(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.state != StateStoppingDelayed {
		c.mu.Unlock()
		return
	}
	sess := c.sess
	c.beginStopLocked()
	c.mu.Unlock()

	c.log.Info("no person detected for post-detection delay, stopping recording",
		logger.Duration("delay", c.cfg.PostDetection))
	_, _ = c.runStop(context.Background(), sess)
}

// StopNow stops any recording immediately and returns the finished clip.
// It returns nil, nil when idle. If a stop is already running, it waits for
// that stop to finish and returns nil, nil.
func (c *Controller) StopNow(ctx context.Context) (*Clip, error) {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return nil, nil

	case StateStopping:
		stopped := c.sess.stopped
		c.mu.Unlock()
		select {
		case <-stopped:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	sess := c.sess
	c.beginStopLocked()
	c.mu.Unlock()

	return c.runStop(ctx, sess)
}

// beginStopLocked cancels the timer and watchdog and enters Stopping
func (c *Controller) beginStopLocked() {
	c.cancelTimerLocked()
	c.sess.watchCancel()
	_ = c.transitionState(StateStopping)
}

// runStop executes the stop protocol for sess and always leaves the
// controller idle
func (c *Controller) runStop(ctx context.Context, sess *session) (*Clip, error) {
	stopAt := time.Now()
	defer c.finishSession(sess)

	<-sess.watchDone

	c.stopProcess(sess.proc)
	if err := sess.proc.Close(); err != nil {
		c.log.Debug("closing ffmpeg stdin failed", logger.Error(err))
	}

	res, err := filecheck.WaitUntilStable(ctx, sess.path, c.cfg.Stability)
	if err != nil {
		c.log.Warn("file stability check interrupted", logger.Error(err))
	}

	if !res.Usable() {
		c.removeRemnant(sess.path)
		failure := errors.Newf("recording produced no usable output").
			Component("recorder").
			Category(errors.CategoryFileIO).
			Timing("stop_recording", time.Since(stopAt)).
			FileContext(sess.path, res.Size).
			Context("camera", c.cfg.Camera).
			Context("status", res.Status.String()).
			Context("exit_code", sess.proc.ExitCode()).
			Build()
		c.log.Error("recording failed",
			logger.String("path", sess.path),
			logger.String("status", res.Status.String()),
			logger.Any("stderr", sess.proc.StderrTail(stderrTailLines)))
		c.publishFailure(sess.path, failure)
		return nil, failure
	}

	if res.Status == filecheck.StatusTimedOut {
		c.log.Warn("clip size still changing after stability check, keeping it",
			logger.String("path", sess.path),
			logger.Int("attempts", res.Attempts))
	}

	c.settle(ctx)

	clip := &Clip{
		Path:      sess.path,
		Size:      finalSize(sess.path, res.Size),
		Duration:  stopAt.Sub(sess.startedAt),
		StartedAt: sess.startedAt,
		Stable:    res.Status == filecheck.StatusStable,
	}
	c.reportClip(clip)
	return clip, nil
}

// stopProcess walks the escalation ladder: quit command, SIGTERM, SIGKILL
func (c *Controller) stopProcess(proc *capture.Process) {
	if !proc.Alive() {
		return
	}

	if err := proc.RequestGracefulStop(); err != nil {
		c.log.Debug("graceful stop request failed", logger.Error(err))
	}
	if proc.Wait(c.cfg.GraceTimeout) {
		return
	}

	c.log.Warn("ffmpeg ignored quit command, sending SIGTERM",
		logger.Int("pid", proc.PID()),
		logger.Duration("waited", c.cfg.GraceTimeout))
	if err := proc.Terminate(); err != nil {
		c.log.Warn("terminate failed", logger.Error(err))
	}
	if proc.Wait(c.cfg.TermTimeout) {
		return
	}

	c.log.Warn("ffmpeg ignored SIGTERM, killing process group", logger.Int("pid", proc.PID()))
	if err := proc.Kill(); err != nil {
		c.log.Error("kill failed", logger.Error(err))
	}
	if !proc.Wait(killWait) {
		c.log.Error("ffmpeg still running after SIGKILL", logger.Int("pid", proc.PID()))
	}
}

// settle gives the muxer a moment to finish writing the index
func (c *Controller) settle(ctx context.Context) {
	if c.cfg.Settle <= 0 {
		return
	}
	timer := time.NewTimer(c.cfg.Settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// finishSession clears sess and returns to Idle
func (c *Controller) finishSession(sess *session) {
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
		_ = c.transitionState(StateIdle)
	}
	c.mu.Unlock()
	close(sess.stopped)
}

// watchdog resets the controller when ffmpeg exits on its own
func (c *Controller) watchdog(ctx context.Context, sess *session) {
	defer close(sess.watchDone)

	select {
	case <-ctx.Done():
		return
	case <-sess.proc.Done():
	}

	c.mu.Lock()
	if c.sess != sess || c.state == StateStopping {
		c.mu.Unlock()
		return
	}
	c.cancelTimerLocked()
	sess.watchCancel()
	c.sess = nil
	_ = c.transitionState(StateIdle)
	c.mu.Unlock()

	defer close(sess.stopped)
	_ = sess.proc.Close()

	exitCode := sess.proc.ExitCode()
	ran := time.Since(sess.startedAt)

	if exitCode == 0 {
		c.log.Debug("ffmpeg exited on its own",
			logger.Int("exit_code", exitCode),
			logger.Duration("runtime", ran))
		if size := finalSize(sess.path, 0); size > 0 {
			c.reportClip(&Clip{Path: sess.path, Size: size, Duration: ran, StartedAt: sess.startedAt})
			return
		}
		c.removeRemnant(sess.path)
		c.publishFailure(sess.path, errors.Newf("ffmpeg exited without writing %s", filepath.Base(sess.path)).
			Component("recorder").
			Category(errors.CategoryFileIO).
			FileContext(sess.path, 0).
			Context("camera", c.cfg.Camera).
			Build())
		return
	}

	tail := sess.proc.StderrTail(stderrTailLines)
	crash := errors.Newf("ffmpeg exited unexpectedly with code %d", exitCode).
		Component("recorder").
		Category(errors.CategoryProcess).
		Context("camera", c.cfg.Camera).
		Context("exit_code", exitCode).
		Context("runtime_seconds", int(ran.Seconds())).
		Build()
	c.log.Error("recording process crashed",
		logger.Int("exit_code", exitCode),
		logger.Duration("runtime", ran),
		logger.String("path", sess.path),
		logger.Any("stderr", tail),
		logger.Error(crash))

	if finalSize(sess.path, 0) <= 0 {
		c.removeRemnant(sess.path)
	}

	ev := events.NewEvent(events.KindCaptureCrashed, c.cfg.Camera).WithError(crash)
	ev.ExitCode = exitCode
	ev.Stderr = redactLines(tail)
	c.pub.TryPublish(ev)
}

// reportClip logs and publishes a saved clip
func (c *Controller) reportClip(clip *Clip) {
	c.log.Info("clip saved",
		logger.String("path", clip.Path),
		logger.String("size", fmt.Sprintf("%.2f MB", float64(clip.Size)/(1024*1024))),
		logger.Duration("duration", clip.Duration),
		logger.Bool("stable", clip.Stable))

	c.pub.TryPublish(events.NewEvent(events.KindClipSaved, c.cfg.Camera).
		WithArtifact(events.Artifact{
			Kind:      events.ArtifactClip,
			Camera:    c.cfg.Camera,
			Path:      clip.Path,
			Size:      clip.Size,
			Duration:  clip.Duration,
			Source:    events.SourceFfmpeg,
			CreatedAt: clip.StartedAt,
		}))
}

func (c *Controller) publishFailure(path string, err error) {
	ev := events.NewEvent(events.KindRecordingFailed, c.cfg.Camera).WithError(err)
	if path != "" {
		ev = ev.WithArtifact(events.Artifact{Kind: events.ArtifactClip, Camera: c.cfg.Camera, Path: path})
	}
	c.pub.TryPublish(ev)
}

// removeRemnant deletes an empty or missing output file
func (c *Controller) removeRemnant(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.log.Warn("failed to remove empty clip",
			logger.String("path", filepath.Base(path)),
			logger.Error(err))
	}
}

// finalSize stats path, falling back to known when it cannot
func finalSize(path string, known int64) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return known
	}
	return info.Size()
}

// redactLines scrubs credentials ffmpeg may echo back in its diagnostics
func redactLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = privacy.ScrubMessage(l)
	}
	return out
}
