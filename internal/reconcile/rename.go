package reconcile

import (
	"sort"
	"strings"

	"github.com/mira-labs/syncd/internal/model"
)

// PathDiff is the first path segment at which two paths diverge.
// A false ok from FindRenameDepth (with a zero PathDiff) means the
// paths are identical.
type PathDiff struct {
	Depth      int
	OldSegment string
	NewSegment string
}

// splitPathSegments splits a "/"-delimited path into its non-empty
// segments, matching the reference's splitDbPath.
func splitPathSegments(p string) []string {
	parts := strings.Split(p, "/")
	segments := make([]string, 0, len(parts))

	for _, s := range parts {
		if s != "" {
			segments = append(segments, s)
		}
	}

	return segments
}

// FindRenameDepth walks oldPath and newPath segment by segment and
// reports the first point they diverge. Grounded on
// findRenameDepthFromPath.
func FindRenameDepth(oldPath, newPath string) (PathDiff, bool) {
	oldSegs := splitPathSegments(oldPath)
	newSegs := splitPathSegments(newPath)

	length := len(oldSegs)
	if len(newSegs) < length {
		length = len(newSegs)
	}

	idx := 0
	for idx < length && oldSegs[idx] == newSegs[idx] {
		idx++
	}

	if idx == length && len(oldSegs) == len(newSegs) {
		return PathDiff{}, false
	}

	diff := PathDiff{Depth: idx}
	if idx < len(oldSegs) {
		diff.OldSegment = oldSegs[idx]
	}

	if idx < len(newSegs) {
		diff.NewSegment = newSegs[idx]
	}

	return diff, true
}

// RenameInfo describes a directory rename detected by grouping
// DirectoryQueueEntry rows by inode.
type RenameInfo struct {
	Inode      string
	UUID       string
	Device     string
	Folder     string
	CreatedAt  int64
	Depth      int
	OldSegment string
	NewSegment string
	OldPath    string
	NewPath    string

	// OldQueueUUIDs and NewQueueUUIDs are the uuids of every
	// delete-side and new-side queue row this rename was derived from,
	// so the caller can remove them once the collapsed entry replaces
	// them.
	OldQueueUUIDs []string
	NewQueueUUIDs []string
}

// DetectDirectoryRenames groups queued directory entries by inode and
// treats each inode group with at least one "delete" and one "new"
// member as a rename candidate, comparing the shortest path on each
// side. Grounded on detectDirRenames.
func DetectDirectoryRenames(entries []model.DirectoryQueueEntry) []RenameInfo {
	byInode := make(map[string][]model.DirectoryQueueEntry)

	for _, e := range entries {
		byInode[e.Directory.Inode] = append(byInode[e.Directory.Inode], e)
	}

	var renames []RenameInfo

	for inode, group := range byInode {
		var deletes, news []model.DirectoryQueueEntry

		for _, e := range group {
			switch e.SyncStatus {
			case "delete":
				deletes = append(deletes, e)
			case "new":
				news = append(news, e)
			}
		}

		if len(deletes) == 0 || len(news) == 0 {
			continue
		}

		oldEntry := shortestPath(deletes)
		newEntry := shortestPath(news)

		diff, ok := FindRenameDepth(oldEntry.Directory.Path, newEntry.Directory.Path)
		if !ok {
			continue
		}

		info := RenameInfo{
			Inode:      inode,
			UUID:       newEntry.Directory.UUID,
			Device:     newEntry.Directory.Device,
			Folder:     newEntry.Directory.Folder,
			CreatedAt:  newEntry.Directory.CreatedAt,
			Depth:      diff.Depth,
			OldSegment: diff.OldSegment,
			NewSegment: diff.NewSegment,
			OldPath:    oldEntry.Directory.Path,
			NewPath:    newEntry.Directory.Path,
		}

		for _, d := range deletes {
			info.OldQueueUUIDs = append(info.OldQueueUUIDs, d.Directory.UUID)
		}

		for _, n := range news {
			info.NewQueueUUIDs = append(info.NewQueueUUIDs, n.Directory.UUID)
		}

		renames = append(renames, info)
	}

	return renames
}

func shortestPath(entries []model.DirectoryQueueEntry) model.DirectoryQueueEntry {
	best := entries[0]
	for _, e := range entries[1:] {
		if len(e.Directory.Path) < len(best.Directory.Path) {
			best = e
		}
	}

	return best
}

// CollapseDirectoryRenames folds cascaded child-directory renames
// sharing the same old-segment/new-segment pair (a subtree moved
// wholesale produces one rename per descendant directory) down to the
// shallowest survivor per pair. Grounded on collapseDirRenames.
func CollapseDirectoryRenames(renames []RenameInfo) []RenameInfo {
	bySegmentChange := make(map[string]RenameInfo)

	for _, r := range renames {
		key := r.OldSegment + "=>" + r.NewSegment

		existing, ok := bySegmentChange[key]
		if !ok || len(r.OldPath) < len(existing.OldPath) {
			bySegmentChange[key] = r
		}
	}

	result := make([]RenameInfo, 0, len(bySegmentChange))
	for _, r := range bySegmentChange {
		result = append(result, r)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].OldPath < result[j].OldPath })

	return result
}
