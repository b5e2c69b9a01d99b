// Package snapshot saves a still image when a person first appears. It asks
// the camera for a JPEG and falls back to grabbing one frame from the RTSP
// stream with ffmpeg.
package snapshot

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/reowatch/reowatch/internal/artifacts"
	"github.com/reowatch/reowatch/internal/capture"
	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/events"
	"github.com/reowatch/reowatch/internal/logger"
	"github.com/reowatch/reowatch/internal/privacy"
)

// DefaultTimeout bounds the ffmpeg single-frame fallback
const DefaultTimeout = 10 * time.Second

// Fetcher retrieves a JPEG from the camera's own snapshot endpoint.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, channel int) ([]byte, error)
}

// Config describes where snapshots for one camera go and how to fall back.
type Config struct {
	Camera     string
	Channel    int
	Dir        string
	StreamURL  string
	FfmpegPath string
	Timeout    time.Duration
}

// Producer takes snapshots for one camera.
type Producer struct {
	cfg     Config
	fetcher Fetcher
	namer   *artifacts.Namer
	pub     events.Publisher
	log     logger.Logger
}

// New returns a producer. namer may be shared with the camera's recorder;
// nil gets a private one. pub may be nil.
func New(cfg Config, fetcher Fetcher, namer *artifacts.Namer, pub events.Publisher) *Producer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if namer == nil {
		namer = &artifacts.Namer{}
	}
	if pub == nil {
		pub = events.Discard{}
	}
	return &Producer{
		cfg:     cfg,
		fetcher: fetcher,
		namer:   namer,
		pub:     pub,
		log:     logger.Global().Module("snapshot").With(logger.String("camera", cfg.Camera)),
	}
}

// Take saves one snapshot and returns the artifact written.
func (p *Producer) Take(ctx context.Context) (events.Artifact, error) {
	if err := os.MkdirAll(p.cfg.Dir, 0o755); err != nil {
		return p.fail(errors.New(err).
			Component("snapshot").
			Category(errors.CategoryFileIO).
			Context("operation", "create_snapshot_dir").
			Build())
	}

	now := time.Now()
	path := artifacts.SnapshotPath(p.cfg.Dir, p.namer.Stamp(now))

	fetchErr := p.fromCamera(ctx, path)
	if fetchErr == nil {
		return p.saved(path, events.SourceCameraAPI, now)
	}

	if !shouldFallback(ctx, fetchErr) {
		p.log.Warn("camera snapshot timed out, not falling back",
			logger.Error(fetchErr))
		return p.fail(fetchErr)
	}

	p.log.Info("camera snapshot failed, grabbing a frame from the stream",
		logger.Error(fetchErr))
	if err := p.fromStream(ctx, path); err != nil {
		_ = os.Remove(path)
		return p.fail(errors.Join(fetchErr, err))
	}
	return p.saved(path, events.SourceFfmpeg, now)
}

// fromCamera downloads the JPEG from the camera API and writes it to path
func (p *Producer) fromCamera(ctx context.Context, path string) error {
	data, err := p.fetcher.FetchSnapshot(ctx, p.cfg.Channel)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.Newf("camera returned an empty snapshot").
			Component("snapshot").
			Category(errors.CategoryImageFetch).
			Context("channel", p.cfg.Channel).
			Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: snapshots are meant to be shared
		return errors.New(err).
			Component("snapshot").
			Category(errors.CategoryFileIO).
			Context("operation", "write_snapshot").
			Build()
	}
	return nil
}

// fromStream grabs a single frame with ffmpeg, killing it on timeout
func (p *Producer) fromStream(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	proc, err := capture.Spawn(ctx, capture.Config{
		FfmpegPath: p.cfg.FfmpegPath,
		URL:        p.cfg.StreamURL,
		Output:     path,
		Mode:       capture.ModeSingleFrame,
	})
	if err != nil {
		return err
	}
	defer func() { _ = proc.Close() }()

	select {
	case <-proc.Done():
	case <-ctx.Done():
		_ = proc.Kill()
		<-proc.Done()
		return errors.New(fmt.Errorf("single-frame capture did not finish: %w", ctx.Err())).
			Component("snapshot").
			Category(errors.CategoryTimeout).
			Context("timeout", p.cfg.Timeout.String()).
			Context("url", privacy.SanitizeRTSPUrl(p.cfg.StreamURL)).
			Build()
	}

	if code := proc.ExitCode(); code != 0 {
		return errors.Newf("single-frame capture exited with code %d", code).
			Component("snapshot").
			Category(errors.CategoryProcess).
			Context("stderr", privacy.ScrubMessage(fmt.Sprint(proc.StderrTail(3)))).
			Build()
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		return errors.Newf("single-frame capture produced no image").
			Component("snapshot").
			Category(errors.CategoryFileIO).
			Build()
	}
	return nil
}

func (p *Producer) saved(path, source string, at time.Time) (events.Artifact, error) {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	artifact := events.Artifact{
		Kind:      events.ArtifactSnapshot,
		Camera:    p.cfg.Camera,
		Path:      path,
		Size:      size,
		Source:    source,
		CreatedAt: at,
	}

	p.log.Info("snapshot saved",
		logger.String("path", path),
		logger.String("source", source),
		logger.Int64("size", size))
	p.pub.TryPublish(events.NewEvent(events.KindSnapshotSaved, p.cfg.Camera).WithArtifact(artifact))
	return artifact, nil
}

func (p *Producer) fail(err error) (events.Artifact, error) {
	p.log.Error("snapshot failed", logger.Error(err))
	p.pub.TryPublish(events.NewEvent(events.KindSnapshotFailed, p.cfg.Camera).WithError(err))
	return events.Artifact{}, err
}

// shouldFallback reports whether a failed camera fetch is worth retrying
// over RTSP. A transport timeout means the camera is unreachable, and a
// cancelled ctx means we are shutting down.
func shouldFallback(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.IsCategory(err, errors.CategoryTimeout) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	return true
}
