package diskmanager

import "github.com/reowatch/reowatch/internal/logger"

// GetLogger returns the diskmanager module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("diskmanager")
}
