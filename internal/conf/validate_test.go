package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Recording = RecordingSettings{
		PostDetection:   15 * time.Second,
		OutputDir:       "./recordings",
		FfmpegPath:      "ffmpeg",
		GraceTimeout:    10 * time.Second,
		TermTimeout:     2 * time.Second,
		SnapshotTimeout: 10 * time.Second,
		Stability:       StabilitySettings{Interval: 500 * time.Millisecond, Required: 3, Attempts: 30},
	}
	s.Cameras = []CameraSettings{{
		Name: "front", Host: "10.0.0.2", Port: 80, Username: "u", Password: "p",
		Codec: CodecH264, Enabled: true,
	}}
	return s
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"valid", func(s *Settings) {}, ""},
		{"duplicate camera", func(s *Settings) { s.Cameras = append(s.Cameras, s.Cameras[0]) }, "duplicate name"},
		{"bad codec", func(s *Settings) { s.Cameras[0].Codec = "mjpeg" }, "codec must be h264 or h265"},
		{"disabled camera skips host check", func(s *Settings) { s.Cameras[0].Enabled = false; s.Cameras[0].Host = "" }, ""},
		{"negative delay", func(s *Settings) { s.Recording.PostDetection = -time.Second }, "postdetection"},
		{"stability attempts", func(s *Settings) { s.Recording.Stability.Attempts = 1 }, "stability"},
		{"mqtt scheme", func(s *Settings) { s.MQTT.Enabled = true; s.MQTT.Topic = "x"; s.MQTT.Broker = "http://b" }, "not supported"},
		{"notification kind", func(s *Settings) {
			s.Notification.Enabled = true
			s.Notification.URLs = []string{"logger://"}
			s.Notification.Events = []string{"clip_exploded"}
		}, "unknown notification event kind"},
		{"retention usage", func(s *Settings) {
			s.Retention.Enabled = true
			s.Retention.Interval = time.Minute
			s.Retention.MaxUsage = 150
		}, "maxusage"},
		{"sentry dsn", func(s *Settings) { s.Sentry.Enabled = true }, "dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
