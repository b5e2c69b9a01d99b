// Package artifacts names the snapshot and clip files written for a camera.
package artifacts

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// TimestampLayout is the file name timestamp, with millisecond precision.
const TimestampLayout = "20060102_150405.000"

const filePrefix = "person_detection_"

// Namer hands out file name timestamps that never repeat, even when two
// artifacts are requested within the same millisecond.
type Namer struct {
	mu   sync.Mutex
	last time.Time
}

// Stamp returns a unique timestamp string for now.
func (n *Namer) Stamp(now time.Time) string {
	now = now.Truncate(time.Millisecond)

	n.mu.Lock()
	if !now.After(n.last) {
		now = n.last.Add(time.Millisecond)
	}
	n.last = now
	n.mu.Unlock()

	return formatStamp(now)
}

// formatStamp renders t as 20060102_150405_000
func formatStamp(t time.Time) string {
	s := t.Format(TimestampLayout)
	return s[:len(s)-4] + "_" + s[len(s)-3:]
}

// SnapshotPath returns dir/person_detection_<stamp>.jpg.
func SnapshotPath(dir, stamp string) string {
	return filepath.Join(dir, filePrefix+stamp+".jpg")
}

// ClipPath returns dir/person_detection_<stamp>_ch<channel>.mp4.
func ClipPath(dir, stamp string, channel int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s_ch%d.mp4", filePrefix, stamp, channel))
}

// IsClip reports whether name looks like a clip written by this program.
func IsClip(name string) bool {
	matched, _ := filepath.Match(filePrefix+"*_ch*.mp4", name)
	return matched
}

// IsSnapshot reports whether name looks like a snapshot written by this program.
func IsSnapshot(name string) bool {
	matched, _ := filepath.Match(filePrefix+"*.jpg", name)
	return matched
}
