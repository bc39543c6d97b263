//go:build !windows

package validation

import "syscall"

// getDiskSpace reports total bytes and bytes available to unprivileged users.
func getDiskSpace(path string) (total, free int64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	return int64(st.Blocks) * int64(st.Bsize), int64(st.Bavail) * int64(st.Bsize), nil
}
