package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	syncerrors "github.com/mira-labs/syncd/internal/errors"
	"github.com/mira-labs/syncd/internal/model"
)

// InsertDirectoryWithQueue inserts a Directory and its
// DirectoryQueueEntry atomically. Grounded on reconcileLocalState's
// directory-queue-then-directory insert order when synthesizing a
// parent directory for a newly discovered file.
func (s *SQLiteStore) InsertDirectoryWithQueue(d model.Directory, q model.DirectoryQueueEntry) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(insertDirectoryQueueSQL, directoryQueueArgs(q)...); err != nil {
			return wrapStoreErr("inserting directory queue entry", err)
		}

		if _, err := tx.Exec(insertDirectorySQL, directoryArgs(d)...); err != nil {
			return wrapStoreErr("inserting directory", err)
		}

		return nil
	})
}

// UpsertDirectoryWithQueue writes a Directory and its
// DirectoryQueueEntry atomically, overwriting an existing row with
// the same uuid. Used by the offline reconciler when a scanned
// directory resolves to an already-known uuid via a path lookup.
func (s *SQLiteStore) UpsertDirectoryWithQueue(d model.Directory, q model.DirectoryQueueEntry) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(upsertDirectorySQL, directoryArgs(d)...); err != nil {
			return wrapStoreErr("upserting directory", err)
		}

		return upsertDirectoryQueueTx(tx, q)
	})
}

// InsertFileWithQueue upserts a File and its FileQueueEntry
// atomically, matching reconcileLocalState's file-queue-then-file
// insert order.
func (s *SQLiteStore) InsertFileWithQueue(f model.File, q model.FileQueueEntry) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(upsertFileQueueSQL, fileQueueArgs(q)...); err != nil {
			return wrapStoreErr("inserting file queue entry", err)
		}

		if _, err := tx.Exec(upsertFileSQL, fileArgs(f)...); err != nil {
			return wrapStoreErr("inserting file", err)
		}

		return nil
	})
}

// DeleteFileWithTombstone removes the File row and upserts a
// "delete" FileQueueEntry in its place atomically, matching
// reconcileLocalState's delete-then-queue-insert ordering for files
// that vanished from disk between scans.
func (s *SQLiteStore) DeleteFileWithTombstone(origin string, tombstone model.FileQueueEntry) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM files WHERE origin = ?`, origin); err != nil {
			return fmt.Errorf("deleting file origin %s: %w", origin, err)
		}

		if _, err := tx.Exec(upsertFileQueueSQL, fileQueueArgs(tombstone)...); err != nil {
			return wrapStoreErr("upserting file tombstone", err)
		}

		return nil
	})
}

// DeleteFolderWithTransaction removes every File and Directory whose
// path equals dirPath or starts with dirPath+"/" — children before
// parents — along with any FileQueue/DirectoryQueue rows still queued
// under that prefix, and upserts dq (sync_status = delete) in their
// place, atomically. A directory delete cascades to its whole
// subtree: deleting one row and leaving its descendants behind would
// orphan them.
func (s *SQLiteStore) DeleteFolderWithTransaction(dirPath string, dq model.DirectoryQueueEntry) error {
	pattern := dirPrefixPattern(dirPath)

	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM file_queue WHERE path = ? OR path LIKE ? ESCAPE '\'`, dirPath, pattern); err != nil {
			return fmt.Errorf("clearing queued files under %s: %w", dirPath, err)
		}

		if _, err := tx.Exec(`DELETE FROM files WHERE path = ? OR path LIKE ? ESCAPE '\'`, dirPath, pattern); err != nil {
			return fmt.Errorf("deleting files under %s: %w", dirPath, err)
		}

		if _, err := tx.Exec(`DELETE FROM directory_queue WHERE path = ? OR path LIKE ? ESCAPE '\'`, dirPath, pattern); err != nil {
			return fmt.Errorf("clearing queued directories under %s: %w", dirPath, err)
		}

		if _, err := tx.Exec(`DELETE FROM directories WHERE path = ? OR path LIKE ? ESCAPE '\'`, dirPath, pattern); err != nil {
			return fmt.Errorf("deleting directories under %s: %w", dirPath, err)
		}

		return upsertDirectoryQueueTx(tx, dq)
	})
}

// MoveDirectory rewrites path/absPath/device/folder for every
// Directory under oldPath and path/absPath for every File under it,
// substituting the oldPath prefix with newPath, then drops whatever
// FileQueue/DirectoryQueue rows are still queued under oldPath and
// upserts dq (sync_status = rename, old_path = oldPath) in their
// place, atomically.
func (s *SQLiteStore) MoveDirectory(syncRoot, newPath, oldPath string, dq model.DirectoryQueueEntry) error {
	pattern := dirPrefixPattern(oldPath)

	return s.withTx(func(tx *sql.Tx) error {
		if err := rewriteSubtreeTx(tx, syncRoot, newPath, oldPath, pattern); err != nil {
			return err
		}

		if _, err := tx.Exec(`DELETE FROM file_queue WHERE path = ? OR path LIKE ? ESCAPE '\'`, oldPath, pattern); err != nil {
			return fmt.Errorf("clearing stale file queue entries under %s: %w", oldPath, err)
		}

		if _, err := tx.Exec(`DELETE FROM directory_queue WHERE path = ? OR path LIKE ? ESCAPE '\'`, oldPath, pattern); err != nil {
			return fmt.Errorf("clearing stale directory queue entries under %s: %w", oldPath, err)
		}

		return upsertDirectoryQueueTx(tx, dq)
	})
}

// MoveDirectoryQueue applies the same path/absPath/device/folder
// rewrite as MoveDirectory to every Directory and File under oldPath,
// but leaves FileQueue/DirectoryQueue rows untouched: it exists for
// the three-way Reconcile, which collapses its own queue rows
// separately via CollapseRenamedDirectoryQueue and only needs the
// canonical tables brought in line with a rename it already detected.
func (s *SQLiteStore) MoveDirectoryQueue(syncRoot, newPath, oldPath string) error {
	pattern := dirPrefixPattern(oldPath)

	return s.withTx(func(tx *sql.Tx) error {
		return rewriteSubtreeTx(tx, syncRoot, newPath, oldPath, pattern)
	})
}

// rewriteSubtreeTx rewrites every Directory and File row under
// oldPath in place, substituting the oldPath prefix with newPath in
// their path and recomputed absPath (and device/folder for
// directories). Shared by MoveDirectory and MoveDirectoryQueue, which
// differ only in what they do to the queues afterward.
func rewriteSubtreeTx(tx *sql.Tx, syncRoot, newPath, oldPath, pattern string) error {
	dirs, err := queryDirectoriesUnderTx(tx, oldPath, pattern)
	if err != nil {
		return fmt.Errorf("loading directories under %s: %w", oldPath, err)
	}

	for _, d := range dirs {
		rewritten := rewriteDirectoryPath(d, syncRoot, oldPath, newPath)
		if _, err := tx.Exec(`UPDATE directories SET device=?, folder=?, path=?, abs_path=? WHERE uuid=?`,
			rewritten.Device, rewritten.Folder, rewritten.Path, rewritten.AbsPath, rewritten.UUID); err != nil {
			return fmt.Errorf("rewriting directory %s: %w", d.UUID, err)
		}
	}

	files, err := queryFilesUnderTx(tx, oldPath, pattern)
	if err != nil {
		return fmt.Errorf("loading files under %s: %w", oldPath, err)
	}

	for _, f := range files {
		rewritten := rewriteFilePath(f, syncRoot, oldPath, newPath)
		if _, err := tx.Exec(`UPDATE files SET path=?, abs_path=? WHERE origin=?`, rewritten.Path, rewritten.AbsPath, rewritten.Origin); err != nil {
			return fmt.Errorf("rewriting file %s: %w", f.Origin, err)
		}
	}

	return nil
}

// rewritePathString substitutes the oldPath prefix of p with newPath,
// preserving whatever suffix follows the prefix exactly.
func rewritePathString(p, oldPath, newPath string) string {
	if p == oldPath {
		return newPath
	}

	return newPath + strings.TrimPrefix(p, oldPath)
}

func rewriteDirectoryPath(d model.Directory, syncRoot, oldPath, newPath string) model.Directory {
	d.Path = rewritePathString(d.Path, oldPath, newPath)
	parts := model.GetFolderDevice(d.Path)
	d.Device = parts.Device
	d.Folder = parts.Folder
	d.AbsPath = filepath.Join(syncRoot, d.Path)

	return d
}

func rewriteFilePath(f model.File, syncRoot, oldPath, newPath string) model.File {
	f.Path = rewritePathString(f.Path, oldPath, newPath)
	f.AbsPath = filepath.Join(syncRoot, f.Path, f.Filename)

	return f
}

func queryDirectoriesUnderTx(tx *sql.Tx, path, pattern string) ([]model.Directory, error) {
	rows, err := tx.Query(`SELECT `+directoryColumns+` FROM directories WHERE path = ? OR path LIKE ? ESCAPE '\'`, path, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDirectories(rows)
}

func queryFilesUnderTx(tx *sql.Tx, path, pattern string) ([]model.File, error) {
	rows, err := tx.Query(`SELECT `+fileColumns+` FROM files WHERE path = ? OR path LIKE ? ESCAPE '\'`, path, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFiles(rows)
}

// upsertDirectoryQueueTx inserts q into directory_queue, or updates
// the existing row sharing its (device, folder, path) key in place if
// one already exists — the dedup-by-natural-key pattern every
// tombstone/rename upsert into directory_queue shares.
func upsertDirectoryQueueTx(tx *sql.Tx, q model.DirectoryQueueEntry) error {
	row := tx.QueryRow(`SELECT uuid FROM directory_queue WHERE device = ? AND folder = ? AND path = ?`, q.Directory.Device, q.Directory.Folder, q.Directory.Path)

	var existingUUID string

	switch err := row.Scan(&existingUUID); {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(insertDirectoryQueueSQL, directoryQueueArgs(q)...); err != nil {
			return wrapStoreErr("inserting directory queue entry", err)
		}
	case err != nil:
		return fmt.Errorf("looking up directory queue entry: %w", err)
	default:
		q.Directory.UUID = existingUUID
		if _, err := tx.Exec(`UPDATE directory_queue SET device=?, folder=?, path=?, created_at=?, sync_status=?, abs_path=?, old_path=?, inode=? WHERE uuid=?`,
			q.Directory.Device, q.Directory.Folder, q.Directory.Path, q.Directory.CreatedAt, q.SyncStatus, q.Directory.AbsPath, nullableStringPtr(q.OldPath), q.Directory.Inode, q.Directory.UUID); err != nil {
			return wrapStoreErr("updating directory queue entry", err)
		}
	}

	return nil
}

// CollapseRenamedDirectoryQueue replaces the queue rows a
// directory-rename detection pass consumed with the single collapsed
// survivor, atomically. This closes the gap left by the original
// reconciler, whose rename collapse never cleaned up the stale
// delete/new entries it read from (see DESIGN.md's Open Question
// resolution).
func (s *SQLiteStore) CollapseRenamedDirectoryQueue(oldUUIDs, newUUIDs []string, survivor model.DirectoryQueueEntry) error {
	return s.withTx(func(tx *sql.Tx) error {
		for _, uuid := range append(append([]string{}, oldUUIDs...), newUUIDs...) {
			if _, err := tx.Exec(`DELETE FROM directory_queue WHERE uuid = ?`, uuid); err != nil {
				return fmt.Errorf("deleting stale directory queue entry %s: %w", uuid, err)
			}
		}

		if _, err := tx.Exec(insertDirectoryQueueSQL, directoryQueueArgs(survivor)...); err != nil {
			return wrapStoreErr("inserting collapsed rename entry", err)
		}

		return nil
	})
}

func (s *SQLiteStore) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return syncerrors.Wrap(syncerrors.KindStoreIntegrity, "committing transaction", err)
	}

	return nil
}
