package artifacts

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamerStamp(t *testing.T) {
	t.Parallel()

	var n Namer
	at := time.Date(2024, 5, 17, 14, 3, 9, 250*int(time.Millisecond), time.UTC)

	assert.Equal(t, "20240517_140309_250", n.Stamp(at))
	assert.Equal(t, "20240517_140309_251", n.Stamp(at), "same millisecond is bumped")
	assert.Equal(t, "20240517_140309_252", n.Stamp(at.Add(-time.Second)), "clock going backwards still advances")
	assert.Equal(t, "20240517_140310_000", n.Stamp(at.Add(750*time.Millisecond)))
}

func TestNamerConcurrentUnique(t *testing.T) {
	t.Parallel()

	var (
		n    Namer
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	now := time.Now()
	for range 50 {
		wg.Go(func() {
			s := n.Stamp(now)
			mu.Lock()
			seen[s] = true
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestPaths(t *testing.T) {
	t.Parallel()

	clip := ClipPath("/rec/front/clips", "20240517_140309_250", 0)
	assert.Equal(t, filepath.Join("/rec/front/clips", "person_detection_20240517_140309_250_ch0.mp4"), clip)
	assert.True(t, IsClip(filepath.Base(clip)))
	assert.False(t, IsSnapshot(filepath.Base(clip)))

	snap := SnapshotPath("/rec/front/snapshots", "20240517_140309_250")
	require.Equal(t, filepath.Join("/rec/front/snapshots", "person_detection_20240517_140309_250.jpg"), snap)
	assert.True(t, IsSnapshot(filepath.Base(snap)))
	assert.False(t, IsClip("holiday.mp4"))
}
