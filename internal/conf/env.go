// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/reowatch/reowatch/internal/logger"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// Single-camera variables understood for compatibility with .env based deployments.
// When CAMERA_HOST is set they are promoted into a camera named LegacyCameraName.
const (
	EnvCameraHost            = "CAMERA_HOST"
	EnvCameraUsername        = "CAMERA_USERNAME"
	EnvCameraPassword        = "CAMERA_PASSWORD"
	EnvCameraPort            = "CAMERA_PORT"
	EnvCameraChannel         = "CAMERA_CHANNEL"
	EnvSnapshotDir           = "SNAPSHOT_DIR"
	EnvClipDir               = "CLIP_DIR"
	EnvPostDetectionDuration = "POST_DETECTION_DURATION"

	LegacyCameraName = "camera"
)

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "REOWATCH_DEBUG", validateEnvBool},
		{"main.log.level", "REOWATCH_LOG_LEVEL", validateEnvLogLevel},

		{"recording.postdetection", "REOWATCH_POST_DETECTION", validateEnvDuration},
		{"recording.outputdir", "REOWATCH_OUTPUT_DIR", validateEnvPath},
		{"recording.ffmpegpath", "REOWATCH_FFMPEG_PATH", validateEnvPath},

		{"mqtt.enabled", "REOWATCH_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "REOWATCH_MQTT_BROKER", validateEnvBrokerURL},
		{"mqtt.username", "REOWATCH_MQTT_USERNAME", nil},
		{"mqtt.password", "REOWATCH_MQTT_PASSWORD", nil},

		{"datastore.path", "REOWATCH_DB_PATH", validateEnvPath},
		{"webserver.listen", "REOWATCH_LISTEN", nil},

		{"sentry.enabled", "REOWATCH_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "REOWATCH_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("invalid %s: %v", binding.EnvVar, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// applyLegacyCamera promotes the single-camera environment variables into settings.
// A configured camera with the legacy name is replaced, otherwise the camera is prepended.
func applyLegacyCamera(settings *Settings) {
	if raw := os.Getenv(EnvPostDetectionDuration); raw != "" {
		if d, err := parseSecondsOrDuration(raw); err == nil {
			settings.Recording.PostDetection = d
		} else {
			GetLogger().Warn("ignoring invalid post detection duration",
				logger.String("env", EnvPostDetectionDuration),
				logger.Error(err))
		}
	}

	host := os.Getenv(EnvCameraHost)
	if host == "" {
		return
	}

	cam := CameraSettings{
		Name:        LegacyCameraName,
		Host:        host,
		Username:    os.Getenv(EnvCameraUsername),
		Password:    os.Getenv(EnvCameraPassword),
		Port:        envInt(EnvCameraPort, DefaultCameraPort),
		Channel:     envInt(EnvCameraChannel, 0),
		Codec:       CodecH264,
		Enabled:     true,
		SnapshotDir: os.Getenv(EnvSnapshotDir),
		ClipDir:     os.Getenv(EnvClipDir),
	}

	for i := range settings.Cameras {
		if settings.Cameras[i].Name == LegacyCameraName {
			settings.Cameras[i] = cam
			return
		}
	}
	settings.Cameras = append([]CameraSettings{cam}, settings.Cameras...)
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		GetLogger().Warn("ignoring invalid integer environment variable",
			logger.String("env", name),
			logger.Error(err))
		return fallback
	}
	return n
}

// parseSecondsOrDuration accepts plain seconds ("15") or a Go duration ("15s")
func parseSecondsOrDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("duration must not be negative, got %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative, got %s", raw)
	}
	return d, nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0", value)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("log level must be one of trace, debug, info, warn, error, got '%s'", value)
}

func validateEnvDuration(value string) error {
	_, err := time.ParseDuration(value)
	return err
}

func validateEnvPath(value string) error {
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("path contains a NUL byte")
	}
	return nil
}

func validateEnvBrokerURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("broker must look like tcp://host:1883, got '%s'", value)
	}
	return nil
}
