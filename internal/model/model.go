// Package model defines the data types shared by the store, scanner,
// watcher, reconciler and worker: the on-disk view of a file or
// directory, its queued pending change, and the plan a reconciliation
// pass produces.
package model

import "time"

// ScannedFile is a file as observed on disk by a filesystem scan.
type ScannedFile struct {
	Path    string // containing directory relative to the sync root, e.g. "/foo" for "/foo/bar.txt"
	Name    string
	AbsPath string
	Inode   string
	Hash    string
	Size    int64
	MTime   int64 // unix seconds
}

// ScannedDirectory is a directory as observed on disk by a filesystem scan.
type ScannedDirectory struct {
	Path    string
	Name    string
	AbsPath string
	Inode   string
	MTime   int64
}

// ScanResult is the full output of a filesystem scan.
type ScanResult struct {
	Files       []ScannedFile
	Directories []ScannedDirectory
}

// File is the canonical record of a synced file: the last state the
// store believes is in sync between the local disk and the cloud.
type File struct {
	UUID                string
	Path                string
	Filename            string
	LastModified        int64
	HashValue           string
	Size                int64
	DirID               string
	Inode               string
	AbsPath             string
	Versions            int
	Origin              string
	LastSyncedHashValue string
	ConflictID          string
}

// Directory is the canonical record of a synced directory.
type Directory struct {
	UUID      string
	Device    string
	Folder    string
	Path      string
	CreatedAt int64
	AbsPath   string
	Inode     string
}

// FileQueueEntry is a pending local change to a File awaiting upload,
// or a pending cloud change awaiting application locally. It holds a
// File by composition rather than by embedding: a queue entry is not
// a kind of File, it carries one alongside sync-specific bookkeeping.
type FileQueueEntry struct {
	File         File
	SyncStatus   string // "new", "modified", "delete", "rename", "FILE_LINKED"
	OldPath      *string
	OldFilename  *string
}

// DirectoryQueueEntry is a pending local or cloud change to a Directory.
type DirectoryQueueEntry struct {
	Directory  Directory
	SyncStatus string
	OldPath    *string
}

// CloudFile is a file's metadata as reported by the remote API.
type CloudFile struct {
	UUID                string
	Path                string
	Filename            string
	LastModified        int64
	HashValue           string
	Size                int64
	Origin              string
	LastSyncedHashValue string
	Versions            int
	ConflictID          string
}

// CloudDirectory is a directory's metadata as reported by the remote API.
type CloudDirectory struct {
	UUID      string
	Device    string
	Folder    string
	Path      string
	CreatedAt int64
}

// CloudMetadata is the full response of a GetMetadata call.
type CloudMetadata struct {
	Files       []CloudFile
	Directories []CloudDirectory
}

// FolderCreatePlan describes a directory that exists in the cloud but
// not locally, and needs to be created on disk.
type FolderCreatePlan struct {
	AbsPath   string
	Path      string
	Folder    string
	Device    string
	UUID      string
	CreatedAt int64
}

// FolderDeletePlan describes a directory that exists locally but not
// in the cloud, and needs to be removed from disk.
type FolderDeletePlan struct {
	AbsPath string
	Path    string
	Folder  string
}

// FileRenamePlan pairs the file's old canonical state with its new
// cloud-reported metadata, for applying a rename locally.
type FileRenamePlan struct {
	OldFile File
	NewFile CloudFile
}

// ReconciliationResult is the plan produced by a three-way reconcile
// pass: what the caller must do to bring local state in line with the
// cloud (and vice versa, via the queue entries already persisted).
type ReconciliationResult struct {
	FilesToDownload       []CloudFile
	FilesToDeleteLocal    []File
	FoldersToCreateLocal  []FolderCreatePlan
	FoldersToDeleteLocal  []FolderDeletePlan
	FilesInConflict       []CloudFile
	FilesToUpdate         []CloudFile
	FilesToRename         []FileRenamePlan
}

// UnixNow returns the current time as unix seconds. Exists so callers
// needing "now" as a timestamp field don't sprinkle time.Now().Unix()
// across every package.
func UnixNow() int64 {
	return time.Now().Unix()
}
