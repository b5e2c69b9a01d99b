// validate.go contains settings validation
package conf

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// camera names end up in paths, MQTT topics and metric labels
var cameraNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Event kinds accepted in notification.events
var knownEventKinds = []string{
	"detection_started", "detection_ended",
	"snapshot_saved", "snapshot_failed",
	"recording_started", "clip_saved", "recording_failed",
	"capture_crashed",
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateRecordingSettings(&settings.Recording)...)
	ve.Errors = append(ve.Errors, validateCameras(settings.Cameras)...)

	if settings.MQTT.Enabled {
		if err := validateBrokerURL(settings.MQTT.Broker); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
		if settings.MQTT.Topic == "" {
			ve.Errors = append(ve.Errors, "mqtt topic must not be empty")
		}
	}

	if settings.Notification.Enabled {
		if len(settings.Notification.URLs) == 0 {
			ve.Errors = append(ve.Errors, "notification enabled but no urls configured")
		}
		for _, kind := range settings.Notification.Events {
			if !slices.Contains(knownEventKinds, kind) {
				ve.Errors = append(ve.Errors, fmt.Sprintf("unknown notification event kind %q", kind))
			}
		}
	}

	if settings.Datastore.Enabled && settings.Datastore.Path == "" {
		ve.Errors = append(ve.Errors, "datastore path must not be empty")
	}

	if settings.WebServer.Enabled && settings.WebServer.Listen == "" {
		ve.Errors = append(ve.Errors, "webserver listen address must not be empty")
	}

	if settings.Retention.Enabled {
		if settings.Retention.MaxUsage <= 0 || settings.Retention.MaxUsage > 100 {
			ve.Errors = append(ve.Errors, fmt.Sprintf("retention maxusage must be in (0, 100], got %g", settings.Retention.MaxUsage))
		}
		if settings.Retention.Interval <= 0 {
			ve.Errors = append(ve.Errors, "retention interval must be positive")
		}
		if settings.Retention.MinClips < 0 {
			ve.Errors = append(ve.Errors, "retention minclips must not be negative")
		}
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry enabled but dsn is empty")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateRecordingSettings(r *RecordingSettings) []string {
	var errs []string

	if r.PostDetection < 0 {
		errs = append(errs, "recording postdetection must not be negative")
	}
	if r.OutputDir == "" {
		errs = append(errs, "recording outputdir must not be empty")
	}
	if r.FfmpegPath == "" {
		errs = append(errs, "recording ffmpegpath must not be empty")
	}
	if r.GraceTimeout <= 0 || r.TermTimeout <= 0 || r.SnapshotTimeout <= 0 {
		errs = append(errs, "recording timeouts must be positive")
	}
	if r.Stability.Interval <= 0 || r.Stability.Required < 1 || r.Stability.Attempts < r.Stability.Required {
		errs = append(errs, "recording stability requires interval > 0, required >= 1 and attempts >= required")
	}

	return errs
}

func validateCameras(cameras []CameraSettings) []string {
	var errs []string
	seen := make(map[string]bool, len(cameras))

	for i := range cameras {
		cam := &cameras[i]
		label := cam.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		if !cameraNamePattern.MatchString(cam.Name) {
			errs = append(errs, fmt.Sprintf("camera %s: name must be 1-64 letters, digits, '-' or '_'", label))
		}
		if seen[cam.Name] {
			errs = append(errs, fmt.Sprintf("camera %s: duplicate name", label))
		}
		seen[cam.Name] = true

		if !cam.Enabled {
			continue
		}
		if cam.Host == "" {
			errs = append(errs, fmt.Sprintf("camera %s: host is required", label))
		}
		if cam.Username == "" || cam.Password == "" {
			errs = append(errs, fmt.Sprintf("camera %s: username and password are required", label))
		}
		if cam.Port < 1 || cam.Port > 65535 {
			errs = append(errs, fmt.Sprintf("camera %s: port %d out of range", label, cam.Port))
		}
		if cam.RTSPPort < 0 || cam.RTSPPort > 65535 {
			errs = append(errs, fmt.Sprintf("camera %s: rtspport %d out of range", label, cam.RTSPPort))
		}
		if cam.Channel < 0 {
			errs = append(errs, fmt.Sprintf("camera %s: channel must not be negative", label))
		}
		if cam.Codec != CodecH264 && cam.Codec != CodecH265 {
			errs = append(errs, fmt.Sprintf("camera %s: codec must be h264 or h265, got %q", label, cam.Codec))
		}
	}

	return errs
}

func validateBrokerURL(broker string) error {
	u, err := url.Parse(broker)
	if err != nil {
		return fmt.Errorf("mqtt broker: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("mqtt broker scheme %q not supported", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("mqtt broker host is missing")
	}
	return nil
}
