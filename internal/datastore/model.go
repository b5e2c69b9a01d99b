// Package datastore keeps an index of saved snapshots and clips in sqlite.
package datastore

import (
	"time"

	"github.com/reowatch/reowatch/internal/events"
)

// Artifact is one saved file.
type Artifact struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Camera     string    `gorm:"index:idx_artifacts_camera_created,priority:1;not null" json:"camera"`
	Kind       string    `gorm:"index;not null" json:"kind"`
	Path       string    `gorm:"uniqueIndex;not null" json:"path"`
	Size       int64     `json:"size"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `gorm:"index:idx_artifacts_camera_created,priority:2;not null" json:"created_at"`
}

// TableName sets the table name.
func (Artifact) TableName() string { return "artifacts" }

// FromEvent builds a row from an event carrying an artifact.
func FromEvent(e events.Event) (Artifact, bool) {
	a := e.Artifact
	if a == nil {
		return Artifact{}, false
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = e.Timestamp
	}
	camera := a.Camera
	if camera == "" {
		camera = e.Camera
	}
	return Artifact{
		ID:         e.ID,
		Camera:     camera,
		Kind:       string(a.Kind),
		Path:       a.Path,
		Size:       a.Size,
		DurationMs: a.Duration.Milliseconds(),
		Source:     a.Source,
		CreatedAt:  created,
	}, true
}
