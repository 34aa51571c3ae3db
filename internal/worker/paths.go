package worker

import (
	"path/filepath"
	"strings"
)

// toRelativePath converts an absolute path under syncPath into the
// store's slash-rooted relative form, matching internal/scanner's
// toRelativePath so a file added by the watcher lands under the same
// key a full rescan would assign it.
func toRelativePath(syncPath, absPath string) string {
	rel, err := filepath.Rel(syncPath, absPath)
	if err != nil || rel == "." {
		return "/"
	}

	return "/" + filepath.ToSlash(rel)
}

// toRelativeDirPath is toRelativePath applied to absPath's parent
// directory, the value a File row's Path field carries.
func toRelativeDirPath(syncPath, absPath string) string {
	return toRelativePath(syncPath, filepath.Dir(absPath))
}

func leafName(absPath string) string {
	return filepath.Base(absPath)
}

func trimTrailingSlash(path string) string {
	if path == "/" {
		return path
	}

	return strings.TrimSuffix(path, "/")
}
