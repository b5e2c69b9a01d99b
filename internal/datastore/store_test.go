package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reowatch/reowatch/internal/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndList(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, cam := range []string{"front", "back", "front", "front"} {
		require.NoError(t, s.Save(ctx, &Artifact{
			Camera:    cam,
			Kind:      string(events.ArtifactClip),
			Path:      filepath.Join("/rec", cam, "clip", time.Duration(i).String()),
			Size:      int64(100 * (i + 1)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, int64(400), all[0].Size, "newest first")

	front, err := s.List(ctx, "front", 2)
	require.NoError(t, err)
	require.Len(t, front, 2)
	for _, a := range front {
		assert.Equal(t, "front", a.Camera)
		assert.NotEmpty(t, a.ID)
	}
	assert.True(t, front[0].CreatedAt.After(front[1].CreatedAt))

	none, err := s.List(ctx, "garage", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaveReplacesSamePath(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.Save(ctx, &Artifact{Camera: "front", Kind: "clip", Path: "/a.mp4", Size: 1, CreatedAt: time.Now()}))
	require.NoError(t, s.Save(ctx, &Artifact{Camera: "front", Kind: "clip", Path: "/a.mp4", Size: 2, CreatedAt: time.Now()}))

	rows, err := s.List(ctx, "front", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Size)

	require.NoError(t, s.DeleteByPath(ctx, "/a.mp4"))
	rows, err = s.List(ctx, "front", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOpenFileDatabase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "reowatch.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(t.Context(), &Artifact{Camera: "front", Kind: "snapshot", Path: "/s.jpg", CreatedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	rows, err := s.List(t.Context(), "", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.FileExists(t, path)
}

func TestConsumerIndexesArtifacts(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	c := NewConsumer(s)
	assert.Equal(t, "datastore", c.Name())

	clip := events.NewEvent(events.KindClipSaved, "front").WithArtifact(events.Artifact{
		Kind: events.ArtifactClip, Camera: "front", Path: "/rec/front/clips/a.mp4",
		Size: 2048, Duration: 3 * time.Second, CreatedAt: time.Now(),
	})
	snap := events.NewEvent(events.KindSnapshotSaved, "front").WithArtifact(events.Artifact{
		Kind: events.ArtifactSnapshot, Camera: "front", Path: "/rec/front/snapshots/a.jpg",
		Source: events.SourceCameraAPI,
	})

	require.NoError(t, c.ProcessEvent(clip))
	require.NoError(t, c.ProcessEvent(snap))
	require.NoError(t, c.ProcessEvent(events.NewEvent(events.KindDetectionStarted, "front")))
	require.NoError(t, c.ProcessEvent(events.NewEvent(events.KindClipSaved, "front")), "event without artifact is skipped")

	rows, err := s.List(t.Context(), "front", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byKind := map[string]Artifact{}
	for _, r := range rows {
		byKind[r.Kind] = r
	}
	assert.Equal(t, clip.ID, byKind["clip"].ID)
	assert.Equal(t, int64(3000), byKind["clip"].DurationMs)
	assert.Equal(t, events.SourceCameraAPI, byKind["snapshot"].Source)
	assert.False(t, byKind["snapshot"].CreatedAt.IsZero(), "falls back to event time")
}
