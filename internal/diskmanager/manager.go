// Package diskmanager keeps the recording output within disk usage and age
// limits and warns when a recording starts on a nearly full filesystem.
package diskmanager

import (
	"context"
	"time"

	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/logger"
	"github.com/reowatch/reowatch/internal/observability/metrics"
)

// Policy names used in logs and metrics.
const (
	PolicyUsage = "usage"
	PolicyAge   = "age"
)

// CleanupResult summarises one policy run.
type CleanupResult struct {
	Policy     string
	Deleted    int
	FreedBytes int64
	Errors     int
}

// DeleteHook is called after a file has been removed.
type DeleteHook func(ctx context.Context, path string)

// Manager applies retention to the camera output directories.
type Manager struct {
	cfg     conf.RetentionSettings
	baseDir string
	targets []Target
	usage   UsageFunc
	now     func() time.Time
	onDel   DeleteHook
	metrics *metrics.DiskManagerMetrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithUsageFunc replaces the gopsutil usage source.
func WithUsageFunc(fn UsageFunc) Option {
	return func(m *Manager) { m.usage = fn }
}

// WithDeleteHook registers fn to run after each deletion.
func WithDeleteHook(fn DeleteHook) Option {
	return func(m *Manager) { m.onDel = fn }
}

// WithMetrics records retention metrics.
func WithMetrics(dm *metrics.DiskManagerMetrics) Option {
	return func(m *Manager) { m.metrics = dm }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New returns a manager for every configured camera's clip and snapshot
// directories.
func New(settings *conf.Settings, opts ...Option) *Manager {
	base := settings.Recording.OutputDir
	var targets []Target
	for _, cam := range settings.Cameras {
		targets = append(targets,
			Target{Camera: cam.Name, Dir: cam.ClipPath(base)},
			Target{Camera: cam.Name, Dir: cam.SnapshotPath(base)},
		)
	}
	return NewForTargets(settings.Retention, base, targets, opts...)
}

// NewForTargets returns a manager for explicit targets. baseDir selects the
// filesystem whose usage is checked.
func NewForTargets(cfg conf.RetentionSettings, baseDir string, targets []Target, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		baseDir: baseDir,
		targets: targets,
		usage:   GetDetailedDiskUsage,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run applies retention every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	GetLogger().Info("retention enabled",
		logger.Float64("max_usage", m.cfg.MaxUsage),
		logger.Duration("max_age", m.cfg.MaxAge),
		logger.Int("min_clips", m.cfg.MinClips),
		logger.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.RunOnce(ctx); err != nil {
			GetLogger().Warn("retention run failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce applies the age policy and then the usage policy.
func (m *Manager) RunOnce(ctx context.Context) ([]CleanupResult, error) {
	m.recordUsage()

	files, err := ScanTargets(m.targets)
	if err != nil {
		return nil, err
	}

	var results []CleanupResult

	start := time.Now()
	age := m.ageCleanup(ctx, files)
	m.record(age, time.Since(start), nil)
	results = append(results, age)

	if age.Deleted > 0 {
		if files, err = ScanTargets(m.targets); err != nil {
			return results, err
		}
	}

	if m.cfg.MaxUsage > 0 {
		start = time.Now()
		usage, err := m.usageCleanup(ctx, files)
		m.record(usage, time.Since(start), err)
		results = append(results, usage)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// CheckSpace warns when the filesystem holding dir is above the usage
// threshold. It never blocks a recording.
func (m *Manager) CheckSpace(dir string) {
	if m.cfg.MaxUsage <= 0 {
		return
	}
	usage, err := m.usage(dir)
	if err != nil {
		GetLogger().Debug("could not read disk usage", logger.String("dir", dir), logger.Error(err))
		return
	}
	if usage.UsedPercent > m.cfg.MaxUsage {
		GetLogger().Warn("low disk space at recording start",
			logger.String("dir", dir),
			logger.Float64("usage", usage.UsedPercent),
			logger.Float64("threshold", m.cfg.MaxUsage),
			logger.Uint64("free_bytes", usage.FreeBytes))
	}
}

func (m *Manager) delete(ctx context.Context, f FileInfo) error {
	if err := removeFile(f.Path); err != nil {
		GetLogger().Warn("failed to delete file", logger.String("path", f.Path), logger.Error(err))
		return err
	}
	GetLogger().Debug("deleted file",
		logger.String("path", f.Path),
		logger.String("camera", f.Camera),
		logger.Int64("size", f.Size))
	if m.onDel != nil {
		m.onDel(ctx, f.Path)
	}
	return nil
}

func (m *Manager) recordUsage() {
	if m.metrics == nil {
		return
	}
	if usage, err := m.usage(m.baseDir); err == nil {
		m.metrics.UpdateDiskUsage(usage.UsedBytes, usage.TotalBytes, usage.UsedPercent)
	}
}

func (m *Manager) record(res CleanupResult, took time.Duration, err error) {
	if res.Deleted > 0 {
		GetLogger().Info("retention removed files",
			logger.String("policy", res.Policy),
			logger.Int("deleted", res.Deleted),
			logger.Float64("freed_mb", float64(res.FreedBytes)/(1024*1024)))
	}
	if m.metrics != nil {
		m.metrics.RecordCleanup(res.Policy, res.Deleted, res.FreedBytes, took.Seconds(), err)
	}
}
