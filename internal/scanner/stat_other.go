//go:build !unix

package scanner

import "os"

// inodeOf has no equivalent on non-Unix platforms via os.FileInfo
// alone; rename detection degrades to hash-only matching there,
// matching the reference scanner's empty-string fallback.
func inodeOf(info os.FileInfo) string {
	return ""
}
