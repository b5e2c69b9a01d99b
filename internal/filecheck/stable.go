// Package filecheck waits for files written by external processes to settle.
package filecheck

import (
	"context"
	"os"
	"time"

	"github.com/reowatch/reowatch/internal/errors"
)

// Status is the outcome of a stability check.
type Status int

const (
	// StatusStable means the size stayed the same for the required number of polls.
	StatusStable Status = iota
	// StatusAbsent means the file never appeared or stayed empty.
	StatusAbsent
	// StatusTimedOut means the file has content but kept changing.
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusStable:
		return "stable"
	case StatusAbsent:
		return "absent"
	case StatusTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Default polling parameters.
const (
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultRequiredStable = 3
	DefaultMaxAttempts    = 30
)

// Options controls how a file is polled. Zero fields take the defaults.
type Options struct {
	PollInterval   time.Duration
	RequiredStable int
	MaxAttempts    int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.RequiredStable <= 0 {
		o.RequiredStable = DefaultRequiredStable
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// Result reports the last observed size and how many polls it took.
type Result struct {
	Status   Status
	Size     int64
	Attempts int
}

// Usable reports whether the file has content, regardless of whether it
// settled in time.
func (r Result) Usable() bool {
	return r.Status != StatusAbsent && r.Size > 0
}

// WaitUntilStable polls path until its size is unchanged and non-zero for
// RequiredStable consecutive polls, or MaxAttempts polls have been made. A
// cancelled ctx ends polling early with the best result so far and the
// context error.
func WaitUntilStable(ctx context.Context, path string, opts Options) (Result, error) {
	opts = opts.withDefaults()

	var (
		lastSize    int64 = -1
		stableCount int
		result      = Result{Status: StatusAbsent}
	)

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result.Attempts = attempt

		size, err := fileSize(path)
		if err != nil {
			return result, err
		}

		switch {
		case size <= 0:
			stableCount = 0
		case size == lastSize:
			stableCount++
		default:
			stableCount = 1
		}
		lastSize = size
		result.Size = max(size, 0)

		if size > 0 {
			result.Status = StatusTimedOut
		}
		if stableCount >= opts.RequiredStable {
			result.Status = StatusStable
			return result, nil
		}

		if attempt == opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return result, errors.New(ctx.Err()).
				Component("filecheck").
				Category(errors.CategoryCancellation).
				Context("operation", "wait_until_stable").
				Context("attempts", attempt).
				Build()
		case <-ticker.C:
		}
	}

	return result, nil
}

// fileSize returns -1 for a missing file
func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, nil
		}
		return 0, errors.New(err).
			Component("filecheck").
			Category(errors.CategoryFileIO).
			Context("operation", "stat").
			Build()
	}
	return info.Size(), nil
}
