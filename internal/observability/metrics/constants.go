// Package metrics provides constants used across metric definitions.
package metrics

// Namespace prefixes every metric exported by reowatch.
const Namespace = "reowatch"

// Label value constants used for metric labels.
const (
	// LabelSuccess marks a completed operation.
	LabelSuccess = "success"
	// LabelError marks a failed operation.
	LabelError = "error"
	// LabelCrashed marks a clip whose capture process exited on its own.
	LabelCrashed = "crashed"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart1s is the starting bucket for 1s histograms (1s to ~9 hours range).
	BucketStart1s = 1.0
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)
