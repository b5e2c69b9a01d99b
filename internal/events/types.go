// Package events provides an asynchronous event bus that fans recorder and
// detection events out to consumers such as MQTT, notifications, the
// artifact index and metrics without blocking the capture path.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/reowatch/reowatch/internal/privacy"
)

// Kind identifies what happened.
type Kind string

const (
	KindDetectionStarted Kind = "detection_started"
	KindDetectionEnded   Kind = "detection_ended"
	KindSnapshotSaved    Kind = "snapshot_saved"
	KindSnapshotFailed   Kind = "snapshot_failed"
	KindRecordingStarted Kind = "recording_started"
	KindClipSaved        Kind = "clip_saved"
	KindRecordingFailed  Kind = "recording_failed"
	KindCaptureCrashed   Kind = "capture_crashed"
)

// AllKinds lists every event kind in lifecycle order.
func AllKinds() []Kind {
	return []Kind{
		KindDetectionStarted,
		KindDetectionEnded,
		KindSnapshotSaved,
		KindSnapshotFailed,
		KindRecordingStarted,
		KindClipSaved,
		KindRecordingFailed,
		KindCaptureCrashed,
	}
}

// ArtifactKind distinguishes stills from video clips.
type ArtifactKind string

const (
	ArtifactSnapshot ArtifactKind = "snapshot"
	ArtifactClip     ArtifactKind = "clip"
)

// Snapshot sources.
const (
	SourceCameraAPI = "camera-api"
	SourceFfmpeg    = "ffmpeg"
)

// Artifact is a file produced for a camera.
type Artifact struct {
	Kind      ArtifactKind  `json:"kind"`
	Camera    string        `json:"camera"`
	Path      string        `json:"path"`
	Size      int64         `json:"size"`
	Duration  time.Duration `json:"duration,omitempty"`
	Source    string        `json:"source,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Event is a single occurrence published on the bus.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Camera    string    `json:"camera"`
	Timestamp time.Time `json:"timestamp"`
	Artifact  *Artifact `json:"artifact,omitempty"`
	ExitCode  int       `json:"exit_code,omitempty"`
	Stderr    []string  `json:"stderr,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// NewEvent returns an event with a fresh ID and the current time.
func NewEvent(kind Kind, camera string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Camera:    camera,
		Timestamp: time.Now(),
	}
}

// WithArtifact attaches a to the event.
func (e Event) WithArtifact(a Artifact) Event {
	e.Artifact = &a
	return e
}

// WithError records err's message with credentials and hosts scrubbed.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Message = privacy.ScrubMessage(err.Error())
	}
	return e
}

// Publisher accepts events without blocking.
type Publisher interface {
	// TryPublish queues the event and reports whether it was accepted
	TryPublish(event Event) bool
}

// Discard is a Publisher that drops every event.
type Discard struct{}

// TryPublish implements Publisher.
func (Discard) TryPublish(Event) bool { return false }

// EventConsumer processes events delivered by the bus.
type EventConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent processes a single event
	ProcessEvent(event Event) error
}

// EventBusStats contains runtime statistics for monitoring
type EventBusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
