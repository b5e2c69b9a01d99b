// Package conf provides configuration management for reowatch.
package conf

import "github.com/reowatch/reowatch/internal/logger"

// GetLogger returns the config package logger. It is fetched on every call
// because the central logger is installed after configuration is loaded.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}

// LoggingConfig converts the log settings into a logger configuration.
// Debug mode forces debug level on the console.
func (s *Settings) LoggingConfig() *logger.LoggingConfig {
	level := s.Main.Log.Level
	if s.Debug && level != "trace" {
		level = "debug"
	}

	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     s.Main.Log.Timezone,
		Console:      &logger.ConsoleOutput{Enabled: true, Level: level},
		ModuleLevels: s.Main.Log.ModuleLevels,
	}

	if f := s.Main.Log.File; f.Enabled {
		cfg.FileOutput = &logger.FileOutput{
			Enabled:         true,
			Path:            f.Path,
			MaxSize:         f.MaxSize,
			MaxAge:          f.MaxAge,
			MaxRotatedFiles: f.MaxRotated,
			Compress:        f.Compress,
			Level:           level,
		}
	}

	return cfg
}
