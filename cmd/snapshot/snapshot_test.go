package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reowatch/reowatch/internal/camera"
	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/errors"
)

func TestTake(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Recording.OutputDir = t.TempDir()
	settings.Cameras = []conf.CameraSettings{{Name: "front", Host: "10.0.0.2"}}

	var fake *camera.Fake
	path, err := Take(t.Context(), settings, "front", func(c conf.CameraSettings) *camera.Fake {
		fake = camera.NewFake(c)
		fake.SetSnapshot([]byte{0xFF, 0xD8, 0xFF, 0xD9})
		return fake
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(settings.Recording.OutputDir, "front", "snapshots"), filepath.Dir(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xD9}, data)
	assert.Equal(t, []string{"Connect", "FetchSnapshot", "Disconnect"}, fake.Calls())
}

func TestTakeUnknownCamera(t *testing.T) {
	t.Parallel()

	_, err := Take(t.Context(), &conf.Settings{}, "nope", camera.NewFake)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, errors.IsCategory(err, errors.CategoryValidation))
}
