// policy_usage.go - usage based retention
package diskmanager

import (
	"context"

	"github.com/reowatch/reowatch/internal/logger"
)

// maxDeletionsPerRun bounds a single usage cleanup.
const maxDeletionsPerRun = 1000

// usageCleanup deletes the oldest clips while usage of baseDir's
// filesystem is above threshold percent.
func (m *Manager) usageCleanup(ctx context.Context, files []FileInfo) (CleanupResult, error) {
	res := CleanupResult{Policy: PolicyUsage}

	usage, err := m.usage(m.baseDir)
	if err != nil {
		return res, err
	}
	if usage.UsedPercent <= m.cfg.MaxUsage {
		GetLogger().Debug("disk usage below threshold",
			logger.Float64("usage", usage.UsedPercent),
			logger.Float64("threshold", m.cfg.MaxUsage))
		return res, nil
	}

	GetLogger().Info("disk usage above threshold, removing oldest clips",
		logger.Float64("usage", usage.UsedPercent),
		logger.Float64("threshold", m.cfg.MaxUsage))

	protected := protectedClips(files, m.cfg.MinClips)

	for _, f := range files {
		if ctx.Err() != nil {
			return res, nil
		}
		if !f.Clip || protected[f.Path] {
			continue
		}
		if res.Deleted >= maxDeletionsPerRun {
			break
		}

		if err := m.delete(ctx, f); err != nil {
			res.Errors++
			continue
		}
		res.Deleted++
		res.FreedBytes += f.Size

		usage, err = m.usage(m.baseDir)
		if err != nil {
			return res, err
		}
		if usage.UsedPercent <= m.cfg.MaxUsage {
			break
		}
	}
	return res, nil
}
