package notification

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/reowatch/reowatch/internal/events"
)

// Render turns an event into a notification, or returns nil for kinds that
// have no message.
func Render(e events.Event) *Notification {
	n := &Notification{Kind: e.Kind, Camera: e.Camera}
	ts := e.Timestamp.Format("15:04:05")

	switch e.Kind {
	case events.KindDetectionStarted:
		n.Title = fmt.Sprintf("Person at %s", e.Camera)
		n.Message = fmt.Sprintf("Person detected by %s at %s.", e.Camera, ts)
	case events.KindDetectionEnded:
		n.Title = fmt.Sprintf("%s clear", e.Camera)
		n.Message = fmt.Sprintf("No person in view of %s since %s.", e.Camera, ts)
	case events.KindSnapshotSaved:
		n.Title = fmt.Sprintf("Snapshot from %s", e.Camera)
		n.Message = fmt.Sprintf("Snapshot saved: %s", artifactName(e))
	case events.KindClipSaved:
		n.Title = fmt.Sprintf("Clip from %s", e.Camera)
		if a := e.Artifact; a != nil {
			n.Message = fmt.Sprintf("Recorded %s (%.1f MB): %s",
				a.Duration.Round(time.Second), float64(a.Size)/(1024*1024), filepath.Base(a.Path))
		} else {
			n.Message = "Clip saved."
		}
	case events.KindRecordingStarted:
		n.Title = fmt.Sprintf("Recording %s", e.Camera)
		n.Message = fmt.Sprintf("Recording started at %s.", ts)
	case events.KindSnapshotFailed, events.KindRecordingFailed:
		n.Title = fmt.Sprintf("%s failed on %s", humanKind(e.Kind), e.Camera)
		n.Message = e.Message
	case events.KindCaptureCrashed:
		n.Title = fmt.Sprintf("Capture crashed on %s", e.Camera)
		var b strings.Builder
		fmt.Fprintf(&b, "ffmpeg exited with code %d.", e.ExitCode)
		if len(e.Stderr) > 0 {
			b.WriteString("\n")
			b.WriteString(e.Stderr[len(e.Stderr)-1])
		}
		n.Message = b.String()
	default:
		return nil
	}
	if n.Message == "" {
		n.Message = n.Title
	}
	return n
}

func artifactName(e events.Event) string {
	if e.Artifact == nil {
		return "unknown"
	}
	return filepath.Base(e.Artifact.Path)
}

func humanKind(k events.Kind) string {
	switch k {
	case events.KindSnapshotFailed:
		return "Snapshot"
	case events.KindRecordingFailed:
		return "Recording"
	default:
		return string(k)
	}
}
