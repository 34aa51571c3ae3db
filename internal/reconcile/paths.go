package reconcile

import "strings"

// uniqueKey is the composite identity of a File row: its containing
// directory path (normalized to a trailing slash) plus its filename.
// Grounded on original_source's getUniqueKey.
func uniqueKey(dirPath, filename string) string {
	if !strings.HasSuffix(dirPath, "/") {
		dirPath += "/"
	}

	return dirPath + filename
}

// directoryTripleKey is the composite identity of a DirectoryQueue
// dedup check: a directory is "already queued" only when its (path,
// device, folder) triple matches, per ReconciliationService.cpp's
// create-dedup and spec §4.4.2.
func directoryTripleKey(path, device, folder string) string {
	return path + "\x00" + device + "\x00" + folder
}

// normalizeDirPath strips a trailing slash from a directory path,
// except for the root itself.
func normalizeDirPath(path string) string {
	if path == "/" {
		return path
	}

	return strings.TrimSuffix(path, "/")
}
