package filecheck

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastOptions = Options{PollInterval: 10 * time.Millisecond, RequiredStable: 3, MaxAttempts: 10}

func TestWaitUntilStable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		content      []byte
		create       bool
		wantStatus   Status
		wantSize     int64
		wantAttempts int
	}{
		{"stable file", []byte("clip-data"), true, StatusStable, 9, 3},
		{"missing file", nil, false, StatusAbsent, 0, 10},
		{"empty file", []byte{}, true, StatusAbsent, 0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "clip.mp4")
			if tt.create {
				require.NoError(t, os.WriteFile(path, tt.content, 0o600))
			}

			res, err := WaitUntilStable(context.Background(), path, fastOptions)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantSize, res.Size)
			assert.Equal(t, tt.wantAttempts, res.Attempts)
		})
	}
}

func TestWaitUntilStableGrowingFileTimesOut(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.mp4")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_, _ = f.WriteString("frame")
			}
		}
	}()

	res, err := WaitUntilStable(context.Background(), path, Options{
		PollInterval:   20 * time.Millisecond,
		RequiredStable: 3,
		MaxAttempts:    5,
	})
	close(done)
	<-stopped

	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, res.Status)
	assert.Positive(t, res.Size)
	assert.Equal(t, 5, res.Attempts)
	assert.True(t, res.Usable())
}

func TestWaitUntilStableFileAppearsLate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.mp4")
	time.AfterFunc(30*time.Millisecond, func() {
		_ = os.WriteFile(path, []byte("late"), 0o600)
	})

	res, err := WaitUntilStable(context.Background(), path, Options{
		PollInterval:   10 * time.Millisecond,
		RequiredStable: 2,
		MaxAttempts:    100,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusStable, res.Status)
	assert.Equal(t, int64(4), res.Size)
	assert.Greater(t, res.Attempts, 2)
}

func TestWaitUntilStableCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := WaitUntilStable(ctx, filepath.Join(t.TempDir(), "none"), fastOptions)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusAbsent, res.Status)
	assert.Equal(t, 1, res.Attempts)
}

func TestOptionsDefaults(t *testing.T) {
	t.Parallel()

	got := Options{}.withDefaults()
	assert.Equal(t, Options{PollInterval: 500 * time.Millisecond, RequiredStable: 3, MaxAttempts: 30}, got)
	assert.Equal(t, "timed-out", StatusTimedOut.String())
}
