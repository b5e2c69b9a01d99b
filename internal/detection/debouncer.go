// Package detection turns raw camera notifications into recording actions.
// It tracks the person-detected flag per camera and acts only on edges.
package detection

import (
	"context"
	"sync"
	"time"

	"github.com/reowatch/reowatch/internal/events"
	"github.com/reowatch/reowatch/internal/logger"
)

// PersonKind is the AI detection type the debouncer follows.
const PersonKind = "person"

// State is the last observed detection flag.
type State struct {
	Detected   bool
	LastChange time.Time
}

// Source reports the current AI detection flags of a camera.
type Source interface {
	IsDetected(channel int, kind string) bool
}

// Recorder is the part of the recording controller the debouncer drives.
type Recorder interface {
	IsIdle() bool
	StartOrExtend(ctx context.Context) error
	StopAfterDelay()
}

// Snapshotter captures a still image.
type Snapshotter interface {
	Take(ctx context.Context) (events.Artifact, error)
}

// Debouncer reacts to person detection edges for one camera channel.
type Debouncer struct {
	camera  string
	channel int
	source  Source
	rec     Recorder
	snap    Snapshotter
	pub     events.Publisher
	log     logger.Logger

	queue *serialQueue
	// jobs tracks fire-and-forget snapshot goroutines
	jobs sync.WaitGroup

	mu     sync.Mutex
	state  State
	closed bool
	// pendingStarts counts queued starts the recorder has not seen yet
	pendingStarts int
}

// NewDebouncer returns a debouncer with its task queue running. Call Close
// to stop it.
func NewDebouncer(camera string, channel int, source Source, rec Recorder, snap Snapshotter, pub events.Publisher) *Debouncer {
	if pub == nil {
		pub = events.Discard{}
	}
	log := logger.Global().Module("detection").With(logger.String("camera", camera))
	return &Debouncer{
		camera:  camera,
		channel: channel,
		source:  source,
		rec:     rec,
		snap:    snap,
		pub:     pub,
		log:     log,
		queue:   newSerialQueue(log),
	}
}

// Snapshot returns a copy of the current detection state.
func (d *Debouncer) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// OnNotification is the camera event callback. It reads the person flag,
// decides synchronously and hands the resulting work to the task queue.
func (d *Debouncer) OnNotification() {
	detected := d.source.IsDetected(d.channel, PersonKind)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || detected == d.state.Detected {
		return
	}
	d.state = State{Detected: detected, LastChange: time.Now()}

	if detected {
		d.log.Info("person detected")
		d.pub.TryPublish(events.NewEvent(events.KindDetectionStarted, d.camera))

		if d.pendingStarts == 0 && d.rec.IsIdle() {
			d.dispatchSnapshot()
		}
		d.pendingStarts++
		queued := d.queue.Submit("start-or-extend", func(ctx context.Context) {
			if err := d.rec.StartOrExtend(ctx); err != nil {
				d.log.Warn("could not start recording", logger.Error(err))
			}
			d.mu.Lock()
			d.pendingStarts--
			d.mu.Unlock()
		})
		if !queued {
			d.pendingStarts--
		}
		return
	}

	d.log.Info("person no longer detected")
	d.pub.TryPublish(events.NewEvent(events.KindDetectionEnded, d.camera))
	d.queue.Submit("stop-after-delay", func(context.Context) {
		d.rec.StopAfterDelay()
	})
}

// dispatchSnapshot runs a snapshot job in the background
func (d *Debouncer) dispatchSnapshot() {
	d.jobs.Go(func() {
		if _, err := d.snap.Take(d.queue.ctx); err != nil {
			d.log.Warn("snapshot failed", logger.Error(err))
		}
	})
}

// Close stops the task queue and waits for in-flight snapshot jobs.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.queue.Close()
	d.jobs.Wait()
}
