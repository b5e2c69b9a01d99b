package conf

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
)

// APIBaseURL returns the scheme://host:port root of the camera HTTP API
func (c *CameraSettings) APIBaseURL() string {
	scheme := "http"
	if c.HTTPS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
}

// SnapshotPath returns the snapshot directory for this camera under base
func (c *CameraSettings) SnapshotPath(base string) string {
	if c.SnapshotDir != "" {
		return c.SnapshotDir
	}
	return filepath.Join(base, c.Name, DefaultSnapshotSubdir)
}

// ClipPath returns the clip directory for this camera under base
func (c *CameraSettings) ClipPath(base string) string {
	if c.ClipDir != "" {
		return c.ClipDir
	}
	return filepath.Join(base, c.Name, DefaultClipSubdir)
}
