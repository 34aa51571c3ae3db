package reconcile

import (
	"fmt"
	"path/filepath"

	"github.com/mira-labs/syncd/internal/model"
	"github.com/mira-labs/syncd/internal/store"
)

// Reconcile compares the cloud's authoritative metadata against the
// local store and queue, producing the set of local actions needed
// to converge: downloads, uploads-in-progress left alone, renames,
// conflicts, and directory create/delete. It also runs the
// directory-rename detection/collapse pass and persists any renames
// it finds via Store.CollapseRenamedDirectoryQueue and
// Store.MoveDirectoryQueue.
//
// Grounded on original_source/src/ReconciliationService.cpp's
// reconcile (see DESIGN.md, including the Open Question resolution on
// the resurrection-protection guard's actual, non-vetoing behavior).
func Reconcile(s store.Store, syncPath string, cloud model.CloudMetadata) (model.ReconciliationResult, error) {
	var result model.ReconciliationResult

	dbFiles, err := s.GetAllFiles()
	if err != nil {
		return result, fmt.Errorf("loading files: %w", err)
	}

	dbDirs, err := s.GetAllDirectories()
	if err != nil {
		return result, fmt.Errorf("loading directories: %w", err)
	}

	localFileQueue, err := s.GetFileQueue()
	if err != nil {
		return result, fmt.Errorf("loading file queue: %w", err)
	}

	localDirQueue, err := s.GetDirectoryQueue()
	if err != nil {
		return result, fmt.Errorf("loading directory queue: %w", err)
	}

	cloudPathMap := make(map[string]model.CloudFile, len(cloud.Files))
	for _, f := range cloud.Files {
		cloudPathMap[uniqueKey(f.Path, f.Filename)] = f
	}

	dbByOrigin := make(map[string]model.File, len(dbFiles))
	dbPathMap := make(map[string]model.File, len(dbFiles))

	for _, f := range dbFiles {
		dbByOrigin[f.Origin] = f
		dbPathMap[uniqueKey(f.Path, f.Filename)] = f
	}

	queueByOrigin := make(map[string]model.FileQueueEntry, len(localFileQueue))
	queueByUUID := make(map[string]model.FileQueueEntry, len(localFileQueue))
	queueByPath := make(map[string]model.FileQueueEntry, len(localFileQueue))

	for _, q := range localFileQueue {
		if q.File.Origin != "" {
			queueByOrigin[q.File.Origin] = q
		}

		if q.File.UUID != "" {
			queueByUUID[q.File.UUID] = q
		}

		queueByPath[uniqueKey(q.File.Path, q.File.Filename)] = q
	}

	for _, cloudFile := range cloud.Files {
		pathKey := uniqueKey(cloudFile.Path, cloudFile.Filename)

		localByOrigin, hasByOrigin := dbByOrigin[cloudFile.Origin]
		localByPath, hasByPath := dbPathMap[pathKey]

		_, inQueueByOrigin := queueByOrigin[cloudFile.Origin]
		_, inQueueByUUID := queueByUUID[cloudFile.UUID]
		_, inQueueByPath := queueByPath[pathKey]
		localInQueue := inQueueByOrigin || inQueueByUUID || inQueueByPath

		isLocalModified := false
		if q, ok := queueByPath[pathKey]; ok {
			isLocalModified = q.SyncStatus == "modified"
		}

		isLocalRenamed := false
		if q, ok := queueByOrigin[cloudFile.Origin]; ok {
			isLocalRenamed = q.SyncStatus == "rename"
		}

		isCloudModified := hasByPath && cloudFile.HashValue != localByPath.LastSyncedHashValue

		var isCloudRenamed bool

		if isLocalRenamed {
			q := queueByOrigin[cloudFile.Origin]
			isCloudRenamed = q.OldFilename != nil && *q.OldFilename != cloudFile.Filename
		} else {
			isCloudRenamed = hasByOrigin && localByOrigin.Filename != cloudFile.Filename
		}

		if !hasByPath && !hasByOrigin {
			if !localInQueue {
				result.FilesToDownload = append(result.FilesToDownload, cloudFile)
				continue
			}
		}

		if hasByOrigin {
			switch {
			case isCloudModified && !isCloudRenamed && !isLocalModified && !isLocalRenamed:
				result.FilesToUpdate = append(result.FilesToUpdate, cloudFile)
			case !isCloudModified && isCloudRenamed && !isLocalModified && !isLocalRenamed:
				result.FilesToRename = append(result.FilesToRename, model.FileRenamePlan{OldFile: localByOrigin, NewFile: cloudFile})
			case isCloudModified && !isCloudRenamed && isLocalModified && !isLocalRenamed:
				result.FilesInConflict = append(result.FilesInConflict, cloudFile)
			}
		}

		// Resurrection protection: an in-flight local change wins a race
		// against a cloud row that only looks stale. This never vetoes the
		// update/rename/conflict branches above; it just stops such a file
		// from also being classified new-from-cloud (see DESIGN.md).
		if localInQueue && !isCloudModified {
			continue
		}
	}

	deleteCandidates := make(map[string]model.File)

	for _, dbFile := range dbFiles {
		key := uniqueKey(dbFile.Path, dbFile.Filename)
		if _, stillInCloud := cloudPathMap[key]; stillInCloud {
			continue
		}

		if q, ok := queueByOrigin[dbFile.Origin]; ok {
			switch q.SyncStatus {
			case "modified", "rename", "new":
				continue
			}
		}

		deleteCandidates[key] = dbFile
	}

	for _, rename := range result.FilesToRename {
		delete(deleteCandidates, uniqueKey(rename.OldFile.Path, rename.OldFile.Filename))
	}

	for _, f := range deleteCandidates {
		result.FilesToDeleteLocal = append(result.FilesToDeleteLocal, f)
	}

	cloudDirMap := make(map[string]model.CloudDirectory)
	for _, d := range cloud.Directories {
		if d.Path != "/" {
			cloudDirMap[d.Path] = d
		}
	}

	dbDirMap := make(map[string]model.Directory)
	for _, d := range dbDirs {
		if d.Path != "/" {
			dbDirMap[d.Path] = d
		}
	}

	dirQueueTriples := make(map[string]bool, len(localDirQueue))
	for _, q := range localDirQueue {
		dirQueueTriples[directoryTripleKey(q.Directory.Path, q.Directory.Device, q.Directory.Folder)] = true
	}

	for path, cloudDir := range cloudDirMap {
		if _, known := dbDirMap[path]; known {
			continue
		}

		if dirQueueTriples[directoryTripleKey(path, cloudDir.Device, cloudDir.Folder)] {
			continue
		}

		result.FoldersToCreateLocal = append(result.FoldersToCreateLocal, model.FolderCreatePlan{
			AbsPath:   filepath.Join(syncPath, cloudDir.Path),
			Path:      cloudDir.Path,
			Folder:    cloudDir.Folder,
			Device:    cloudDir.Device,
			UUID:      cloudDir.UUID,
			CreatedAt: cloudDir.CreatedAt,
		})
	}

	for path, dbDir := range dbDirMap {
		if _, stillInCloud := cloudDirMap[path]; stillInCloud {
			continue
		}

		if dirQueueTriples[directoryTripleKey(path, dbDir.Device, dbDir.Folder)] {
			continue
		}

		result.FoldersToDeleteLocal = append(result.FoldersToDeleteLocal, model.FolderDeletePlan{
			AbsPath: dbDir.AbsPath,
			Path:    dbDir.Path,
			Folder:  dbDir.Folder,
		})
	}

	renames := DetectDirectoryRenames(localDirQueue)
	collapsed := CollapseDirectoryRenames(renames)

	if err := persistDirectoryRenames(s, syncPath, collapsed); err != nil {
		return result, fmt.Errorf("persisting directory renames: %w", err)
	}

	return result, nil
}

// persistDirectoryRenames collapses each detected rename's stale
// delete/new queue rows into a single "rename" entry, closing the gap
// left by the reference implementation's placeholder cleanup (see
// DESIGN.md's Open Question resolution), and rewrites the canonical
// Directory/File rows under the old path so they carry the new
// location too.
func persistDirectoryRenames(s store.Store, syncPath string, renames []RenameInfo) error {
	for _, r := range renames {
		folder := r.Folder
		if r.NewSegment != "" {
			folder = r.NewSegment
		}

		survivor := model.DirectoryQueueEntry{
			Directory: model.Directory{
				UUID:      r.UUID,
				Device:    r.Device,
				Folder:    folder,
				Path:      r.NewPath,
				CreatedAt: r.CreatedAt,
				AbsPath:   filepath.Join(syncPath, r.NewPath),
				Inode:     r.Inode,
			},
			SyncStatus: "rename",
			OldPath:    &r.OldPath,
		}

		if err := s.CollapseRenamedDirectoryQueue(r.OldQueueUUIDs, r.NewQueueUUIDs, survivor); err != nil {
			return err
		}

		if err := s.MoveDirectoryQueue(syncPath, r.NewPath, r.OldPath); err != nil {
			return err
		}
	}

	return nil
}
