// config.go: settings struct for reowatch and the functions to load and save it.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/reowatch/reowatch/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Codec names accepted for camera streams
const (
	CodecH264 = "h264"
	CodecH265 = "h265"
)

// LogSettings configures console and file logging
type LogSettings struct {
	Level    string // trace, debug, info, warn, error
	Timezone string // Local, UTC or an IANA zone for file timestamps
	File     struct {
		Enabled    bool   // true to write JSON logs to a file
		Path       string // log file path
		MaxSize    int    // MB before rotation
		MaxAge     int    // days to keep rotated files
		MaxRotated int    // number of rotated files to keep
		Compress   bool   // gzip rotated files
	}
	ModuleLevels map[string]string // per-module level overrides
}

// StabilitySettings tunes the file completeness check after a recording stops
type StabilitySettings struct {
	Interval time.Duration // delay between size samples
	Required int           // consecutive equal non-zero samples
	Attempts int           // samples before giving up
}

// RecordingSettings holds global capture settings shared by all cameras
type RecordingSettings struct {
	PostDetection   time.Duration // keep recording this long after the person leaves
	OutputDir       string        // base directory for <camera>/clips and <camera>/snapshots
	FfmpegPath      string        // ffmpeg binary, looked up in PATH if not absolute
	GraceTimeout    time.Duration // wait after sending q
	TermTimeout     time.Duration // wait after SIGTERM before SIGKILL
	SnapshotTimeout time.Duration // single-frame fallback timeout
	Settle          time.Duration // extra wait after the file is stable
	StatusInterval  time.Duration // how often the monitor loop logs time since last detection
	Stability       StabilitySettings
}

// CameraSettings describes one Reolink camera. Immutable after load.
type CameraSettings struct {
	Name         string        // unique name, used in paths, topics and metrics
	Host         string        // IP address or hostname
	Port         int           // HTTP API port
	Username     string        // API and RTSP user
	Password     string        // API and RTSP password
	RTSPPort     int           // 0 = ask the device, falling back to 554
	Channel      int           // zero-based channel index
	Codec        string        // h264 or h265
	Enabled      bool          // false to skip this camera
	HTTPS        bool          // use https for the API
	PollInterval time.Duration // AI state polling interval
	SnapshotDir  string        // overrides <outputdir>/<name>/snapshots
	ClipDir      string        // overrides <outputdir>/<name>/clips
}

// MQTTSettings configures event publishing to an MQTT broker
type MQTTSettings struct {
	Enabled  bool
	Broker   string // tcp://host:1883
	Topic    string // topic prefix
	Username string
	Password string
	Retain   bool
}

// NotificationSettings configures shoutrrr push notifications
type NotificationSettings struct {
	Enabled bool
	URLs    []string      // shoutrrr service URLs
	Events  []string      // event kinds that trigger a notification
	Timeout time.Duration // per-send timeout
}

// DatastoreSettings configures the sqlite artifact index
type DatastoreSettings struct {
	Enabled bool
	Path    string
}

// WebServerSettings configures the status API
type WebServerSettings struct {
	Enabled bool
	Listen  string // host:port
}

// RetentionSettings configures automatic clip cleanup
type RetentionSettings struct {
	Enabled  bool
	Interval time.Duration // how often to check disk usage
	MaxUsage float64       // percent of the output filesystem
	MaxAge   time.Duration // 0 disables age based cleanup
	MinClips int           // newest clips per camera that are never removed
}

// SentrySettings configures optional error telemetry
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// Settings contains all configuration options for reowatch
type Settings struct {
	Debug bool // true to enable debug logging everywhere

	// Runtime values, not stored in config file
	Version   string `yaml:"-" mapstructure:"-"`
	BuildDate string `yaml:"-" mapstructure:"-"`

	Main struct {
		Name string      // node name, used as MQTT client id prefix
		Log  LogSettings // logging configuration
	}

	Recording    RecordingSettings
	Cameras      []CameraSettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Datastore    DatastoreSettings
	WebServer    WebServerSettings
	Retention    RetentionSettings
	Sentry       SentrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
// An empty configFile searches the default config paths.
func Load(configFile string) (*Settings, error) {
	settings, err := load(viper.GetViper(), configFile)
	if err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

func load(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := bindEnvVars(v); err != nil {
		GetLogger().Warn("environment variable issues", logger.Error(err))
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	applyLegacyCamera(settings)
	applyCameraDefaults(v, settings)

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper sets defaults and reads the configuration file
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(v, configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it back
func createDefaultConfig(v *viper.Viper, dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// GetSettings returns the settings loaded by Load, or nil
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// EnabledCameras returns the cameras with Enabled set, in configuration order
func (s *Settings) EnabledCameras() []CameraSettings {
	var out []CameraSettings
	for i := range s.Cameras {
		if s.Cameras[i].Enabled {
			out = append(out, s.Cameras[i])
		}
	}
	return out
}

// Camera looks up a camera by name
func (s *Settings) Camera(name string) (CameraSettings, bool) {
	for i := range s.Cameras {
		if s.Cameras[i].Name == name {
			return s.Cameras[i], true
		}
	}
	return CameraSettings{}, false
}

// SaveYAMLConfig writes settings to configPath through a temporary file and rename.
// Comments and ordering in the existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}
