package model

import "strings"

// PathParts is the (device, folder) pair a relative path decomposes
// into. The device is the first path segment (a top-level sync root
// grouping, e.g. a drive letter or the string "/"); the folder is the
// path's own basename.
type PathParts struct {
	Device string
	Folder string
}

// GetFolderDevice splits a relative path ("/foo/bar") into its device
// and folder parts. The root path and the empty path both decompose
// to device "/", folder "/".
func GetFolderDevice(path string) PathParts {
	if path == "" || path == "/" {
		return PathParts{Device: "/", Folder: "/"}
	}

	segments := splitSegments(path)
	if len(segments) == 0 {
		return PathParts{Device: "/", Folder: "/"}
	}

	folder := segments[len(segments)-1]

	device := segments[0]
	if device == "" {
		device = "/"
	}

	return PathParts{Device: device, Folder: folder}
}

// ParsePath splits a relative path into its device and directory
// components, mirroring the wire format the API uses to address a
// folder: device is the first segment, directory is everything after
// it re-joined with a leading slash and no trailing slash.
func ParsePath(path string) PathParts {
	if path == "" || path == "/" {
		return PathParts{Device: "/", Folder: "/"}
	}

	segments := splitSegments(path)
	if len(segments) == 0 {
		return PathParts{Device: "/", Folder: "/"}
	}

	device := segments[0]

	if len(segments) == 1 {
		return PathParts{Device: device, Folder: "/"}
	}

	return PathParts{Device: device, Folder: "/" + strings.Join(segments[1:], "/")}
}

// splitSegments splits a path on "/" and drops empty segments
// produced by leading, trailing or repeated slashes.
func splitSegments(path string) []string {
	raw := strings.Split(path, "/")

	segments := make([]string, 0, len(raw))

	for _, s := range raw {
		if s != "" {
			segments = append(segments, s)
		}
	}

	return segments
}
