// disk_usage.go - filesystem usage through gopsutil

package diskmanager

import (
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/reowatch/reowatch/internal/errors"
)

// DiskSpaceInfo holds detailed disk space information.
type DiskSpaceInfo struct {
	TotalBytes  uint64
	UsedBytes   uint64
	FreeBytes   uint64
	UsedPercent float64
}

// UsageFunc reports usage of the filesystem holding path.
type UsageFunc func(path string) (DiskSpaceInfo, error)

// GetDetailedDiskUsage returns usage of the filesystem containing path.
func GetDetailedDiskUsage(path string) (DiskSpaceInfo, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return DiskSpaceInfo{}, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryDiskUsage).
			Context("path", path).
			Build()
	}
	return DiskSpaceInfo{
		TotalBytes:  stat.Total,
		UsedBytes:   stat.Used,
		FreeBytes:   stat.Free,
		UsedPercent: stat.UsedPercent,
	}, nil
}
