package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reowatch/reowatch/internal/datastore"
	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/orchestrator"
)

type staticCameras []orchestrator.CameraStatus

func (s staticCameras) Cameras() []orchestrator.CameraStatus { return s }

type fakeArtifacts struct {
	rows       []datastore.Artifact
	err        error
	lastCamera string
	lastLimit  int
}

func (f *fakeArtifacts) List(_ context.Context, camera string, limit int) ([]datastore.Artifact, error) {
	f.lastCamera, f.lastLimit = camera, limit
	return f.rows, f.err
}

func do(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := New(":0", staticCameras{{Name: "front"}, {Name: "back"}}, WithVersion("1.0.0"))
	rec := do(t, s, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.0.0", body.Version)
	assert.Equal(t, 2, body.Cameras)
}

func TestCameras(t *testing.T) {
	t.Parallel()

	changed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(":0", staticCameras{{Name: "front", State: "recording", Detected: true, LastChange: changed}})

	rec := do(t, s, "/api/v1/cameras")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []orchestrator.CameraStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "recording", body[0].State)
	assert.True(t, body[0].Detected)
	assert.True(t, changed.Equal(body[0].LastChange))
}

func TestArtifacts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		target     string
		store      *fakeArtifacts
		wantCode   int
		wantCamera string
		wantLimit  int
	}{
		{"defaults", "/api/v1/artifacts", &fakeArtifacts{}, http.StatusOK, "", datastore.DefaultLimit},
		{"filtered", "/api/v1/artifacts?camera=front&limit=5", &fakeArtifacts{
			rows: []datastore.Artifact{{ID: "a", Camera: "front"}},
		}, http.StatusOK, "front", 5},
		{"bad limit", "/api/v1/artifacts?limit=-1", &fakeArtifacts{}, http.StatusBadRequest, "", 0},
		{"store error", "/api/v1/artifacts", &fakeArtifacts{err: errors.NewStd("locked")}, http.StatusInternalServerError, "", datastore.DefaultLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := New(":0", staticCameras{}, WithArtifacts(tt.store))
			rec := do(t, s, tt.target)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCamera, tt.store.lastCamera)
			assert.Equal(t, tt.wantLimit, tt.store.lastLimit)

			if tt.wantCode == http.StatusOK {
				var body []datastore.Artifact
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Len(t, body, len(tt.store.rows))
				assert.Equal(t, "[", rec.Body.String()[:1], "always a JSON array")
			} else {
				var body ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.NotEmpty(t, body.Error)
			}
		})
	}
}

func TestArtifactsDisabled(t *testing.T) {
	t.Parallel()

	rec := do(t, New(":0", staticCameras{}), "/api/v1/artifacts")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("reowatch_up 1\n"))
	})

	rec := do(t, New(":0", staticCameras{}, WithMetrics(metrics)), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reowatch_up 1\n", rec.Body.String())

	rec = do(t, New(":0", staticCameras{}), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", staticCameras{})
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
