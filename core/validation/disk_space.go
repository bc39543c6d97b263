package validation

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMinFreeBytes is the free space below which the disk check warns.
const DefaultMinFreeBytes int64 = 100 * bytesPerMB

const (
	bytesPerKB int64 = 1024
	bytesPerMB       = 1024 * bytesPerKB
	bytesPerGB       = 1024 * bytesPerMB
)

// DiskSpaceInfo describes the filesystem holding a path.
type DiskSpaceInfo struct {
	Path        string
	Total       int64
	Free        int64
	UsedPercent float64
}

// DiskSpaceError reports a filesystem below the required free space.
type DiskSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
		e.Path, formatBytes(e.Required), formatBytes(e.Available))
}

// GetDiskSpace returns disk usage for the filesystem containing path. A path
// that does not exist yet is resolved through its nearest existing parent.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	path = filepath.Clean(path)
	for {
		info, err := os.Stat(path)
		if err == nil {
			if !info.IsDir() {
				path = filepath.Dir(path)
			}
			break
		}
		parent := filepath.Dir(path)
		if !os.IsNotExist(err) || parent == path {
			return nil, fmt.Errorf("cannot access path %s: %w", path, err)
		}
		path = parent
	}

	total, free, err := getDiskSpace(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", path, err)
	}

	var used float64
	if total > 0 {
		used = float64(total-free) / float64(total) * 100
	}
	return &DiskSpaceInfo{Path: path, Total: total, Free: free, UsedPercent: used}, nil
}

// CheckDiskSpace returns a *DiskSpaceError when the filesystem holding path
// has less than required bytes free.
func CheckDiskSpace(path string, required int64) (*DiskSpaceInfo, error) {
	info, err := GetDiskSpace(path)
	if err != nil {
		return nil, err
	}
	if info.Free < required {
		return info, &DiskSpaceError{Path: info.Path, Required: required, Available: info.Free}
	}
	return info, nil
}

func formatBytes(n int64) string {
	switch {
	case n >= bytesPerGB:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(bytesPerGB))
	case n >= bytesPerMB:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(bytesPerMB))
	case n >= bytesPerKB:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(bytesPerKB))
	case n < 0:
		return "0 B"
	default:
		return fmt.Sprintf("%d B", n)
	}
}
