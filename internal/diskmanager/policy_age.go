// policy_age.go - age based retention
package diskmanager

import "context"

// ageCleanup deletes clips and snapshots older than MaxAge, keeping the
// newest MinClips clips of each camera.
func (m *Manager) ageCleanup(ctx context.Context, files []FileInfo) CleanupResult {
	res := CleanupResult{Policy: PolicyAge}
	if m.cfg.MaxAge <= 0 {
		return res
	}

	cutoff := m.now().Add(-m.cfg.MaxAge)
	protected := protectedClips(files, m.cfg.MinClips)

	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		// sorted oldest first, nothing newer can be expired
		if !f.Timestamp.Before(cutoff) {
			break
		}
		if protected[f.Path] {
			continue
		}
		if err := m.delete(ctx, f); err != nil {
			res.Errors++
			continue
		}
		res.Deleted++
		res.FreedBytes += f.Size
	}
	return res
}
