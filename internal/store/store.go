// Package store provides the embedded relational store: the
// SQLite-backed record of File and Directory rows, plus the
// FileQueue/DirectoryQueue entries awaiting sync in either direction.
package store

import "github.com/mira-labs/syncd/internal/model"

// Store is the persistence interface the reconciler and worker
// consume. Single-row CRUD mirrors the original DatabaseManager's
// method set; the composite methods bundle the multi-statement
// sequences those callers need atomic.
type Store interface {
	// Files
	GetAllFiles() ([]model.File, error)
	GetFileByPath(path, filename string) (*model.File, error)
	GetFileByOrigin(origin string) (*model.File, error)

	// GetAllInDirectory returns every File whose path equals dirPath or
	// starts with dirPath+"/" — the same prefix-range predicate
	// DeleteFolderWithTransaction, MoveDirectory, and MoveDirectoryQueue
	// apply in their own queries.
	GetAllInDirectory(dirPath string) ([]model.File, error)

	InsertFile(f model.File) error
	UpdateFile(f model.File) error
	DeleteFile(origin string) error
	UpsertFile(f model.File) error

	// Directories
	GetAllDirectories() ([]model.Directory, error)
	GetDirectoryByPath(device, folder, path string) (*model.Directory, error)
	InsertDirectory(d model.Directory) error
	UpdateDirectory(d model.Directory) error
	DeleteDirectory(uuid string) error
	UpsertDirectory(d model.Directory) error

	// File queue
	GetFileQueue() ([]model.FileQueueEntry, error)
	InsertFileQueue(q model.FileQueueEntry) error
	UpdateFileQueue(q model.FileQueueEntry) error
	UpsertFileQueue(q model.FileQueueEntry) error
	DeleteFileQueue(origin string) error

	// Directory queue
	GetDirectoryQueue() ([]model.DirectoryQueueEntry, error)
	InsertDirectoryQueue(q model.DirectoryQueueEntry) error
	UpdateDirectoryQueue(q model.DirectoryQueueEntry) error
	UpsertDirectoryQueue(q model.DirectoryQueueEntry) error
	DeleteDirectoryQueue(uuid string) error

	// Composite transactions

	// InsertDirectoryWithQueue inserts a Directory row and its
	// matching DirectoryQueueEntry atomically, used when the offline
	// reconciler or worker synthesizes a parent directory for a file
	// that has none yet.
	InsertDirectoryWithQueue(d model.Directory, q model.DirectoryQueueEntry) error

	// UpsertDirectoryWithQueue writes a Directory row and its matching
	// DirectoryQueueEntry atomically, overwriting the Directory row with
	// the same uuid and the queue row with the same (device, folder,
	// path) if they already exist. Used when a scanned directory
	// resolves to an existing uuid via a path lookup rather than a
	// freshly generated one.
	UpsertDirectoryWithQueue(d model.Directory, q model.DirectoryQueueEntry) error

	// InsertFileWithQueue upserts a File row and its matching
	// FileQueueEntry atomically, overwriting rows already stored under
	// the same keys.
	InsertFileWithQueue(f model.File, q model.FileQueueEntry) error

	// DeleteFileWithTombstone removes the File row identified by
	// origin and upserts a "delete" FileQueueEntry in its place,
	// atomically.
	DeleteFileWithTombstone(origin string, tombstone model.FileQueueEntry) error

	// DeleteFolderWithTransaction removes every File and Directory
	// whose path equals dirPath or starts with dirPath+"/", removes the
	// FileQueue/DirectoryQueue rows that reference them, and upserts
	// dq (sync_status = delete) in their place, atomically. A directory
	// delete cascades to its whole subtree, not just the one row the
	// caller named.
	DeleteFolderWithTransaction(dirPath string, dq model.DirectoryQueueEntry) error

	// MoveDirectory rewrites path/absPath/device/folder for every
	// Directory whose path equals oldPath or starts with oldPath+"/",
	// substituting the oldPath prefix with newPath, and rewrites
	// path/absPath for every File under those directories. It then
	// drops the FileQueue/DirectoryQueue rows still queued under
	// oldPath and upserts dq (sync_status = rename, old_path =
	// oldPath) in their place, atomically. syncRoot is prefixed onto
	// every rewritten path to produce the new absPath.
	MoveDirectory(syncRoot, newPath, oldPath string, dq model.DirectoryQueueEntry) error

	// MoveDirectoryQueue applies the same path/absPath/device/folder
	// rewrite as MoveDirectory to every Directory and File under
	// oldPath, but leaves FileQueue/DirectoryQueue rows untouched,
	// using non-destructive row updates rather than delete-then-insert.
	MoveDirectoryQueue(syncRoot, newPath, oldPath string) error

	// CollapseRenamedDirectoryQueue replaces the delete-side and
	// new-side DirectoryQueueEntry rows a detected directory rename
	// collapsed from with a single "rename" entry, atomically.
	// oldUUIDs and newUUIDs are the uuids of the queue rows the rename
	// pass consumed; survivor is the entry to persist in their place.
	CollapseRenamedDirectoryQueue(oldUUIDs, newUUIDs []string, survivor model.DirectoryQueueEntry) error

	// Close releases the underlying database handle.
	Close() error
}
