package reconcile

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mira-labs/syncd/internal/model"
	"github.com/mira-labs/syncd/internal/store"
)

// ReconcileLocalState compares a fresh filesystem scan against the
// store's canonical records and queues every difference: new files
// and directories, modified file content, and files or directories
// that vanished from disk since the last scan. It also runs the
// file-level rename detection pass over the resulting queue.
//
// Grounded on original_source/src/ReconciliationService.cpp's
// reconcileLocalState (see DESIGN.md).
func ReconcileLocalState(s store.Store, scan model.ScanResult, logger *slog.Logger) error {
	dbFiles, err := s.GetAllFiles()
	if err != nil {
		return fmt.Errorf("loading files: %w", err)
	}

	dbDirs, err := s.GetAllDirectories()
	if err != nil {
		return fmt.Errorf("loading directories: %w", err)
	}

	dbFilesByKey := make(map[string]model.File, len(dbFiles))
	for _, f := range dbFiles {
		dbFilesByKey[uniqueKey(f.Path, f.Filename)] = f
	}

	dbDirsByPath := make(map[string]model.Directory, len(dbDirs))
	for _, d := range dbDirs {
		if d.Path == "/" {
			continue
		}

		dbDirsByPath[normalizeDirPath(d.Path)] = d
	}

	scanFilesByKey := make(map[string]model.ScannedFile, len(scan.Files))
	for _, f := range scan.Files {
		scanFilesByKey[uniqueKey(f.Path, f.Name)] = f
	}

	scanDirsByPath := make(map[string]model.ScannedDirectory, len(scan.Directories))
	for _, d := range scan.Directories {
		if d.Path == "/" {
			continue
		}

		scanDirsByPath[normalizeDirPath(d.Path)] = d
	}

	for key, sf := range scanFilesByKey {
		existing, known := dbFilesByKey[key]

		switch {
		case !known:
			if err := addNewFile(s, sf); err != nil {
				return fmt.Errorf("adding new file %s: %w", key, err)
			}
		case existing.HashValue != sf.Hash:
			if err := updateModifiedFile(s, existing, sf); err != nil {
				return fmt.Errorf("updating modified file %s: %w", key, err)
			}
		}
	}

	for key, dbFile := range dbFilesByKey {
		if _, stillPresent := scanFilesByKey[key]; stillPresent {
			continue
		}

		tombstone := model.FileQueueEntry{File: dbFile, SyncStatus: "delete"}
		if err := s.DeleteFileWithTombstone(dbFile.Origin, tombstone); err != nil {
			return fmt.Errorf("tombstoning deleted file %s: %w", key, err)
		}
	}

	for path, sd := range scanDirsByPath {
		if _, known := dbDirsByPath[path]; known {
			continue
		}

		if err := addOrRelinkDirectory(s, sd); err != nil {
			return fmt.Errorf("adding new directory %s: %w", path, err)
		}
	}

	for path, dbDir := range dbDirsByPath {
		if _, stillPresent := scanDirsByPath[path]; stillPresent {
			continue
		}

		tombstone := model.DirectoryQueueEntry{Directory: dbDir, SyncStatus: "delete"}
		if err := s.DeleteFolderWithTransaction(dbDir.Path, tombstone); err != nil {
			return fmt.Errorf("tombstoning deleted directory %s: %w", path, err)
		}
	}

	if err := detectFileRenamesFromQueue(s); err != nil {
		return fmt.Errorf("detecting file renames: %w", err)
	}

	logger.Info("local reconciliation complete",
		slog.Int("scanned_files", len(scan.Files)),
		slog.Int("scanned_dirs", len(scan.Directories)))

	return nil
}

// addNewFile inserts a File+FileQueueEntry for a file the store has
// never seen, synthesizing its parent Directory when one doesn't
// exist yet (a directory the watcher never reported, or one skipped
// because it predates this scanner's history).
func addNewFile(s store.Store, sf model.ScannedFile) error {
	origin := uuid.NewString()
	parts := model.GetFolderDevice(sf.Path)

	dir, err := s.GetDirectoryByPath(parts.Device, parts.Folder, sf.Path)
	if err != nil {
		return err
	}

	dirID := ""

	if dir != nil {
		dirID = dir.UUID
	} else {
		newDir := model.Directory{
			UUID:      uuid.NewString(),
			Device:    parts.Device,
			Folder:    parts.Folder,
			Path:      sf.Path,
			CreatedAt: sf.MTime,
			AbsPath:   filepath.Dir(sf.AbsPath),
			Inode:     sf.Inode,
		}
		oldPath := newDir.Path
		dq := model.DirectoryQueueEntry{Directory: newDir, SyncStatus: "FILE_LINKED", OldPath: &oldPath}

		if err := s.InsertDirectoryWithQueue(newDir, dq); err != nil {
			return err
		}

		dirID = newDir.UUID
	}

	f := model.File{
		UUID:                origin,
		Path:                sf.Path,
		Filename:            sf.Name,
		LastModified:        sf.MTime,
		HashValue:           sf.Hash,
		Size:                sf.Size,
		DirID:               dirID,
		Inode:               sf.Inode,
		AbsPath:             sf.AbsPath,
		Versions:            1,
		Origin:              origin,
		LastSyncedHashValue: sf.Hash,
	}

	oldFilename := f.Filename
	oldPath := f.Path
	fq := model.FileQueueEntry{File: f, SyncStatus: "new", OldFilename: &oldFilename, OldPath: &oldPath}

	return s.InsertFileWithQueue(f, fq)
}

// updateModifiedFile builds the next File row for a file whose
// content hash changed since the last scan: a fresh uuid, an
// incremented version count, origin and lastSyncedHashValue carried
// over from the prior canonical row (the synced hash only moves once
// the change is confirmed uploaded, not at detection time). The fresh
// uuid diverges from preserving the file's identity across a modify;
// harmless since the files table has no uuid column to observe it on.
func updateModifiedFile(s store.Store, existing model.File, sf model.ScannedFile) error {
	f := model.File{
		UUID:                uuid.NewString(),
		Path:                sf.Path,
		Filename:            sf.Name,
		LastModified:        sf.MTime,
		HashValue:           sf.Hash,
		Size:                sf.Size,
		DirID:               existing.DirID,
		Inode:               sf.Inode,
		AbsPath:             sf.AbsPath,
		Versions:            existing.Versions + 1,
		Origin:              existing.Origin,
		LastSyncedHashValue: existing.LastSyncedHashValue,
		ConflictID:          existing.ConflictID,
	}

	fq := model.FileQueueEntry{File: f, SyncStatus: "modified"}

	return s.InsertFileWithQueue(f, fq)
}

// addOrRelinkDirectory queues a newly scanned directory. If a
// directory row with the same (device, folder, path) already exists
// its uuid is reused, matching the reference's getDirectoryByPath
// lookup before generating a fresh id.
func addOrRelinkDirectory(s store.Store, sd model.ScannedDirectory) error {
	parts := model.GetFolderDevice(sd.Path)

	existing, err := s.GetDirectoryByPath(parts.Device, parts.Folder, sd.Path)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	if existing != nil {
		id = existing.UUID
	}

	d := model.Directory{
		UUID:      id,
		Device:    parts.Device,
		Folder:    parts.Folder,
		Path:      sd.Path,
		CreatedAt: sd.MTime,
		AbsPath:   sd.AbsPath,
		Inode:     sd.Inode,
	}

	oldPath := d.Path
	dq := model.DirectoryQueueEntry{Directory: d, SyncStatus: "new", OldPath: &oldPath}

	return s.UpsertDirectoryWithQueue(d, dq)
}

// detectFileRenamesFromQueue groups every queued file by inode and
// treats an inode group of exactly two entries as a rename candidate:
// if one member is queued "new" and the other "delete" with an
// identical content hash, the pair is collapsed into a single
// "rename" entry. Any other shape of same-inode group (size != 2, or
// a matching pair whose hashes differ) is left untouched.
func detectFileRenamesFromQueue(s store.Store) error {
	entries, err := s.GetFileQueue()
	if err != nil {
		return err
	}

	byInode := make(map[string][]model.FileQueueEntry)

	for _, e := range entries {
		if e.File.Inode == "" {
			continue
		}

		byInode[e.File.Inode] = append(byInode[e.File.Inode], e)
	}

	for _, group := range byInode {
		if len(group) != 2 {
			continue
		}

		var added, deleted *model.FileQueueEntry

		for i := range group {
			switch group[i].SyncStatus {
			case "new":
				added = &group[i]
			case "delete":
				deleted = &group[i]
			}
		}

		if added == nil || deleted == nil || added.File.HashValue != deleted.File.HashValue {
			continue
		}

		renamed := *added
		renamed.SyncStatus = "rename"
		oldFilename := deleted.File.Filename
		renamed.OldFilename = &oldFilename

		if err := s.DeleteFileQueue(deleted.File.Origin); err != nil {
			return err
		}

		if err := s.UpdateFileQueue(renamed); err != nil {
			return err
		}
	}

	return nil
}
