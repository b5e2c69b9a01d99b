package observability

import "github.com/reowatch/reowatch/internal/logger"

// Package-level cached logger instance for efficiency.
var log = logger.Global().Module("observability")
