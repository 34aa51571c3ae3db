//go:build unix

package scanner

import (
	"os"
	"strconv"
	"syscall"
)

// inodeOf returns the inode number of a stat'd file as a decimal
// string, matching the reference scanner's std::to_string(st_ino).
func inodeOf(info os.FileInfo) string {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return ""
	}

	return strconv.FormatUint(uint64(stat.Ino), 10)
}
