// file_utils.go - finding the files retention may delete
package diskmanager

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/reowatch/reowatch/internal/artifacts"
	"github.com/reowatch/reowatch/internal/errors"
)

// Target is a directory owned by one camera.
type Target struct {
	Camera string
	Dir    string
}

// FileInfo holds information about a file
type FileInfo struct {
	Path      string
	Camera    string
	Clip      bool
	Timestamp time.Time
	Size      int64
}

// ScanTargets lists the clips and snapshots under targets, oldest first.
// Files that were not written by the recorder are ignored. Missing
// directories are skipped.
func ScanTargets(targets []Target) ([]FileInfo, error) {
	var files []FileInfo
	seen := make(map[string]bool)

	for _, t := range targets {
		if seen[t.Dir] {
			continue
		}
		seen[t.Dir] = true

		err := filepath.WalkDir(t.Dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			name := d.Name()
			clip := artifacts.IsClip(name)
			if !clip && !artifacts.IsSnapshot(name) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			files = append(files, FileInfo{
				Path:      path,
				Camera:    t.Camera,
				Clip:      clip,
				Timestamp: info.ModTime(),
				Size:      info.Size(),
			})
			return nil
		})
		if err != nil {
			return nil, errors.New(err).
				Component("diskmanager").
				Category(errors.CategoryFileIO).
				Context("dir", t.Dir).
				Build()
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Timestamp.Before(files[j].Timestamp)
	})
	return files, nil
}

// protectedClips returns the newest keep clips of every camera.
func protectedClips(files []FileInfo, keep int) map[string]bool {
	protected := make(map[string]bool)
	if keep <= 0 {
		return protected
	}
	count := make(map[string]int)
	// files are sorted oldest first
	for i := len(files) - 1; i >= 0; i-- {
		f := files[i]
		if !f.Clip || count[f.Camera] >= keep {
			continue
		}
		count[f.Camera]++
		protected[f.Path] = true
	}
	return protected
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryDiskCleanup).
			Context("path", path).
			Build()
	}
	return nil
}
