// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Camera defaults applied per list entry, viper cannot default slice elements
const (
	DefaultCameraPort     = 80
	DefaultRTSPPort       = 554
	DefaultPollInterval   = time.Second
	DefaultSnapshotSubdir = "snapshots"
	DefaultClipSubdir     = "clips"
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "reowatch")
	v.SetDefault("main.log.level", "info")
	v.SetDefault("main.log.timezone", "Local")
	v.SetDefault("main.log.file.enabled", false)
	v.SetDefault("main.log.file.path", "logs/reowatch.log")
	v.SetDefault("main.log.file.maxsize", 100)
	v.SetDefault("main.log.file.maxage", 30)
	v.SetDefault("main.log.file.maxrotated", 10)
	v.SetDefault("main.log.file.compress", false)

	v.SetDefault("recording.postdetection", 15*time.Second)
	v.SetDefault("recording.outputdir", "./recordings")
	v.SetDefault("recording.ffmpegpath", GetFfmpegBinaryName())
	v.SetDefault("recording.gracetimeout", 10*time.Second)
	v.SetDefault("recording.termtimeout", 2*time.Second)
	v.SetDefault("recording.snapshottimeout", 10*time.Second)
	v.SetDefault("recording.settle", time.Second)
	v.SetDefault("recording.statusinterval", 60*time.Second)
	v.SetDefault("recording.stability.interval", 500*time.Millisecond)
	v.SetDefault("recording.stability.required", 3)
	v.SetDefault("recording.stability.attempts", 30)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "reowatch")
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.events", []string{"clip_saved", "capture_crashed"})
	v.SetDefault("notification.timeout", 10*time.Second)

	v.SetDefault("datastore.enabled", true)
	v.SetDefault("datastore.path", "reowatch.db")

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.listen", ":8080")

	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.interval", 10*time.Minute)
	v.SetDefault("retention.maxusage", 90.0)
	v.SetDefault("retention.maxage", 720*time.Hour)
	v.SetDefault("retention.minclips", 10)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
}

// applyCameraDefaults fills unset per-camera fields. Cameras without an
// explicit enabled key are enabled.
func applyCameraDefaults(v *viper.Viper, settings *Settings) {
	raw, _ := v.Get("cameras").([]any)

	for i := range settings.Cameras {
		cam := &settings.Cameras[i]
		if cam.Port == 0 {
			cam.Port = DefaultCameraPort
		}
		if cam.Codec == "" {
			cam.Codec = CodecH264
		}
		if cam.PollInterval <= 0 {
			cam.PollInterval = DefaultPollInterval
		}
		if i < len(raw) {
			if m, ok := raw[i].(map[string]any); ok {
				if _, set := m["enabled"]; !set {
					cam.Enabled = true
				}
			}
		}
	}
}
