package diskmanager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reowatch/reowatch/internal/artifacts"
	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/observability/metrics"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// writeClip creates a clip of size bytes that is age old.
func writeClip(t *testing.T, dir string, age time.Duration, size int) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	ts := testNow.Add(-age)
	path := artifacts.ClipPath(dir, new(artifacts.Namer).Stamp(ts), 0)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(path, ts, ts))
	return path
}

func writeSnapshot(t *testing.T, dir string, age time.Duration) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	ts := testNow.Add(-age)
	path := artifacts.SnapshotPath(dir, new(artifacts.Namer).Stamp(ts))
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0o644))
	require.NoError(t, os.Chtimes(path, ts, ts))
	return path
}

// fakeUsage reports the bytes of the given dirs against a fixed capacity
func fakeUsage(total int64, dirs ...string) UsageFunc {
	return func(string) (DiskSpaceInfo, error) {
		var used int64
		for _, d := range dirs {
			_ = filepath.WalkDir(d, func(_ string, e os.DirEntry, err error) error {
				if err != nil || e.IsDir() {
					return nil
				}
				if info, err := e.Info(); err == nil {
					used += info.Size()
				}
				return nil
			})
		}
		return DiskSpaceInfo{
			TotalBytes:  uint64(total),
			UsedBytes:   uint64(used),
			FreeBytes:   uint64(total - used),
			UsedPercent: float64(used) / float64(total) * 100,
		}, nil
	}
}

func TestScanTargetsIgnoresForeignFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clip := writeClip(t, dir, time.Hour, 10)
	snap := writeSnapshot(t, dir, 2*time.Hour)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	files, err := ScanTargets([]Target{
		{Camera: "front", Dir: dir},
		{Camera: "front", Dir: dir},
		{Camera: "gone", Dir: filepath.Join(dir, "missing")},
	})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, snap, files[0].Path, "oldest first")
	assert.False(t, files[0].Clip)
	assert.Equal(t, clip, files[1].Path)
	assert.True(t, files[1].Clip)
}

func TestUsageCleanupKeepsNewestClips(t *testing.T) {
	t.Parallel()

	front := t.TempDir()
	back := t.TempDir()

	var frontClips, backClips []string
	for i := range 4 {
		frontClips = append(frontClips, writeClip(t, front, time.Duration(10-i)*time.Hour, 100))
		backClips = append(backClips, writeClip(t, back, time.Duration(20-i)*time.Hour, 100))
	}

	var mu sync.Mutex
	var deleted []string
	m := NewForTargets(conf.RetentionSettings{MaxUsage: 50, MinClips: 2}, front,
		[]Target{{Camera: "front", Dir: front}, {Camera: "back", Dir: back}},
		WithUsageFunc(fakeUsage(1000, front, back)), // 800/1000 used
		WithClock(func() time.Time { return testNow }),
		WithDeleteHook(func(_ context.Context, p string) {
			mu.Lock()
			defer mu.Unlock()
			deleted = append(deleted, p)
		}))

	results, err := m.RunOnce(t.Context())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, PolicyUsage, results[1].Policy)
	assert.Equal(t, 3, results[1].Deleted, "800 -> 500 bytes")
	assert.Equal(t, int64(300), results[1].FreedBytes)

	// back clips are older so they go first, but the newest two survive
	assert.Equal(t, []string{backClips[0], backClips[1], frontClips[0]}, deleted)
	assert.NoFileExists(t, backClips[1])
	assert.FileExists(t, backClips[2])
	assert.FileExists(t, frontClips[1])
}

func TestUsageCleanupBelowThreshold(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clip := writeClip(t, dir, time.Hour, 100)

	m := NewForTargets(conf.RetentionSettings{MaxUsage: 90}, dir,
		[]Target{{Camera: "front", Dir: dir}},
		WithUsageFunc(fakeUsage(1000, dir)))

	results, err := m.RunOnce(t.Context())
	require.NoError(t, err)
	for _, r := range results {
		assert.Zero(t, r.Deleted)
	}
	assert.FileExists(t, clip)
}

func TestAgeCleanup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	oldClips := []string{
		writeClip(t, dir, 50*24*time.Hour, 10),
		writeClip(t, dir, 40*24*time.Hour, 10),
		writeClip(t, dir, 35*24*time.Hour, 10),
	}
	oldSnap := writeSnapshot(t, dir, 45*24*time.Hour)
	fresh := writeClip(t, dir, time.Hour, 10)

	reg := prometheus.NewRegistry()
	dm, err := metrics.NewDiskManagerMetrics(reg)
	require.NoError(t, err)

	m := NewForTargets(conf.RetentionSettings{MaxAge: 30 * 24 * time.Hour, MinClips: 2}, dir,
		[]Target{{Camera: "front", Dir: dir}},
		WithUsageFunc(fakeUsage(1<<30, dir)),
		WithClock(func() time.Time { return testNow }),
		WithMetrics(dm))

	results, err := m.RunOnce(t.Context())
	require.NoError(t, err)
	require.Len(t, results, 1, "usage policy disabled without maxusage")
	assert.Equal(t, PolicyAge, results[0].Policy)
	assert.Equal(t, 3, results[0].Deleted)

	assert.NoFileExists(t, oldClips[0])
	assert.NoFileExists(t, oldClips[1])
	assert.NoFileExists(t, oldSnap)
	assert.FileExists(t, oldClips[2], "second newest clip is protected by minclips")
	assert.FileExists(t, fresh)
}

func TestCheckSpace(t *testing.T) {
	t.Parallel()

	calls := 0
	usage := func(string) (DiskSpaceInfo, error) {
		calls++
		return DiskSpaceInfo{UsedPercent: 95}, nil
	}

	NewForTargets(conf.RetentionSettings{}, "", nil, WithUsageFunc(usage)).CheckSpace("/x")
	assert.Zero(t, calls, "no threshold means no check")

	NewForTargets(conf.RetentionSettings{MaxUsage: 90}, "", nil, WithUsageFunc(usage)).CheckSpace("/x")
	assert.Equal(t, 1, calls)
}

func TestNewBuildsTargetsFromSettings(t *testing.T) {
	t.Parallel()

	s := &conf.Settings{}
	s.Recording.OutputDir = "/rec"
	s.Cameras = []conf.CameraSettings{{Name: "front"}, {Name: "back", ClipDir: "/nas/back"}}

	m := New(s)
	assert.Equal(t, []Target{
		{Camera: "front", Dir: filepath.Join("/rec", "front", "clips")},
		{Camera: "front", Dir: filepath.Join("/rec", "front", "snapshots")},
		{Camera: "back", Dir: "/nas/back"},
		{Camera: "back", Dir: filepath.Join("/rec", "back", "snapshots")},
	}, m.targets)
}

func TestGetDetailedDiskUsage(t *testing.T) {
	t.Parallel()

	usage, err := GetDetailedDiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, usage.TotalBytes)

	_, err = GetDetailedDiskUsage(filepath.Join(t.TempDir(), "does", "not", "exist"))
	assert.Error(t, err)
}
