package mqtt

import (
	"time"

	"github.com/reowatch/reowatch/internal/events"
)

// EventDTO is the JSON payload published for every event. Field names are
// part of the topic contract consumed by automations.
type EventDTO struct {
	ID        string    `json:"id"`
	Camera    string    `json:"camera"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	ArtifactKind    string  `json:"artifactKind,omitempty"`
	Path            string  `json:"path,omitempty"`
	SizeBytes       int64   `json:"sizeBytes,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	Source          string  `json:"source,omitempty"`

	ExitCode int      `json:"exitCode,omitempty"`
	Stderr   []string `json:"stderr,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// NewEventDTO flattens an event for publishing.
func NewEventDTO(e events.Event) EventDTO {
	dto := EventDTO{
		ID:        e.ID,
		Camera:    e.Camera,
		Kind:      string(e.Kind),
		Timestamp: e.Timestamp,
		ExitCode:  e.ExitCode,
		Stderr:    e.Stderr,
		Message:   e.Message,
	}
	if a := e.Artifact; a != nil {
		dto.ArtifactKind = string(a.Kind)
		dto.Path = a.Path
		dto.SizeBytes = a.Size
		dto.DurationSeconds = a.Duration.Seconds()
		dto.Source = a.Source
	}
	return dto
}
