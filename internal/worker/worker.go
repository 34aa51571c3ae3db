// Package worker translates a single settled watcher event into the
// store mutations that queue it for upload, the online counterpart to
// internal/reconcile's offline batch pass.
package worker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mira-labs/syncd/internal/model"
	"github.com/mira-labs/syncd/internal/store"
)

// Worker applies watcher.Event notifications to the store.
type Worker struct {
	store    store.Store
	syncPath string
	logger   *slog.Logger
}

// New builds a Worker rooted at syncPath.
func New(s store.Store, syncPath string, logger *slog.Logger) *Worker {
	return &Worker{store: s, syncPath: syncPath, logger: logger}
}

// HandleAdded processes a newly created file or directory. Grounded
// on original_source/src/SyncWorker.cpp's handleAdded.
func (w *Worker) HandleAdded(absPath string, isDir bool) error {
	if isDir {
		return w.handleAddedDirectory(absPath)
	}

	return w.handleAddedFile(absPath)
}

func (w *Worker) handleAddedFile(absPath string) error {
	relDir := toRelativeDirPath(w.syncPath, absPath)
	filename := leafName(absPath)

	existing, err := w.store.GetFileByPath(relDir, filename)
	if err != nil {
		return fmt.Errorf("looking up file %s/%s: %w", relDir, filename, err)
	}

	if existing != nil {
		w.logger.Debug("file already known, skipping add", slog.String("path", absPath))
		return nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", absPath, err)
	}

	hash, err := hashFile(absPath)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", absPath, err)
	}

	dirID, err := w.ensureDirectory(relDir, absPath, info.ModTime().Unix())
	if err != nil {
		return err
	}

	origin := uuid.NewString()
	f := model.File{
		UUID:                origin,
		Path:                relDir,
		Filename:            filename,
		LastModified:        info.ModTime().Unix(),
		HashValue:           hash,
		Size:                info.Size(),
		DirID:               dirID,
		Inode:               inodeOf(info),
		AbsPath:             absPath,
		Versions:            1,
		Origin:              origin,
		LastSyncedHashValue: hash,
	}

	oldFilename := f.Filename
	oldPath := f.Path
	fq := model.FileQueueEntry{File: f, SyncStatus: "new", OldFilename: &oldFilename, OldPath: &oldPath}

	if err := w.store.InsertFileWithQueue(f, fq); err != nil {
		return fmt.Errorf("inserting new file %s: %w", absPath, err)
	}

	return nil
}

func (w *Worker) handleAddedDirectory(absPath string) error {
	relPath := toRelativePath(w.syncPath, absPath)
	parts := model.GetFolderDevice(relPath)

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", absPath, err)
	}

	existing, err := w.store.GetDirectoryByPath(parts.Device, parts.Folder, relPath)
	if err != nil {
		return fmt.Errorf("looking up directory %s: %w", relPath, err)
	}

	id := uuid.NewString()
	if existing != nil {
		id = existing.UUID
	}

	d := model.Directory{
		UUID:      id,
		Device:    parts.Device,
		Folder:    parts.Folder,
		Path:      relPath,
		CreatedAt: info.ModTime().Unix(),
		AbsPath:   absPath,
		Inode:     inodeOf(info),
	}

	oldPath := d.Path
	dq := model.DirectoryQueueEntry{Directory: d, SyncStatus: "new", OldPath: &oldPath}

	if err := w.store.UpsertDirectoryWithQueue(d, dq); err != nil {
		return fmt.Errorf("inserting new directory %s: %w", relPath, err)
	}

	return nil
}

// ensureDirectory returns the uuid of the Directory row for relDir,
// synthesizing one with sync_status FILE_LINKED if none exists yet.
func (w *Worker) ensureDirectory(relDir, fileAbsPath string, fallbackMTime int64) (string, error) {
	parts := model.GetFolderDevice(relDir)

	existing, err := w.store.GetDirectoryByPath(parts.Device, parts.Folder, relDir)
	if err != nil {
		return "", fmt.Errorf("looking up directory %s: %w", relDir, err)
	}

	if existing != nil {
		return existing.UUID, nil
	}

	parentAbs := filepath.Dir(fileAbsPath)

	mtime := fallbackMTime
	if info, err := os.Stat(parentAbs); err == nil {
		mtime = info.ModTime().Unix()
	}

	d := model.Directory{
		UUID:      uuid.NewString(),
		Device:    parts.Device,
		Folder:    parts.Folder,
		Path:      relDir,
		CreatedAt: mtime,
		AbsPath:   parentAbs,
		Inode:     inodeOfPath(parentAbs),
	}

	oldPath := d.Path
	dq := model.DirectoryQueueEntry{Directory: d, SyncStatus: "FILE_LINKED", OldPath: &oldPath}

	if err := w.store.InsertDirectoryWithQueue(d, dq); err != nil {
		return "", fmt.Errorf("synthesizing parent directory %s: %w", relDir, err)
	}

	return d.UUID, nil
}

// HandleModified rehashes a file whose content changed, bumping its
// version while preserving origin and lastSyncedHashValue.
func (w *Worker) HandleModified(absPath string) error {
	relDir := toRelativeDirPath(w.syncPath, absPath)
	filename := leafName(absPath)

	existing, err := w.store.GetFileByPath(relDir, filename)
	if err != nil {
		return fmt.Errorf("looking up file %s/%s: %w", relDir, filename, err)
	}

	if existing == nil {
		w.logger.Debug("modified event for unknown file, treating as add", slog.String("path", absPath))
		return w.handleAddedFile(absPath)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", absPath, err)
	}

	hash, err := hashFile(absPath)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", absPath, err)
	}

	f := model.File{
		// UUID is regenerated rather than carried over from existing;
		// the files table has no uuid column to observe the drift, so
		// it's harmless, but it diverges from preserving the file's
		// identity across a modify.
		UUID:                uuid.NewString(),
		Path:                relDir,
		Filename:            filename,
		LastModified:        info.ModTime().Unix(),
		HashValue:           hash,
		Size:                info.Size(),
		DirID:               existing.DirID,
		Inode:               inodeOf(info),
		AbsPath:             absPath,
		Versions:            existing.Versions + 1,
		Origin:              existing.Origin,
		LastSyncedHashValue: existing.LastSyncedHashValue,
		ConflictID:          existing.ConflictID,
	}

	fq := model.FileQueueEntry{File: f, SyncStatus: "modified"}

	if err := w.store.InsertFileWithQueue(f, fq); err != nil {
		return fmt.Errorf("inserting modified file %s: %w", absPath, err)
	}

	return nil
}

// HandleDeleted removes the local record for a path that no longer
// exists on disk, trying a Directory match first and falling back to
// a File match under the parent path.
func (w *Worker) HandleDeleted(absPath string, isDir bool) error {
	relPath := toRelativePath(w.syncPath, absPath)
	parts := model.GetFolderDevice(relPath)

	dir, err := w.store.GetDirectoryByPath(parts.Device, parts.Folder, relPath)
	if err != nil {
		return fmt.Errorf("looking up directory %s: %w", relPath, err)
	}

	if isDir || dir != nil {
		return w.handleDeletedDirectory(absPath)
	}

	return w.handleDeletedFile(absPath)
}

func (w *Worker) handleDeletedDirectory(absPath string) error {
	relPath := toRelativePath(w.syncPath, absPath)
	parts := model.GetFolderDevice(relPath)

	existing, err := w.store.GetDirectoryByPath(parts.Device, parts.Folder, relPath)
	if err != nil {
		return fmt.Errorf("looking up directory %s: %w", relPath, err)
	}

	if existing == nil {
		w.logger.Debug("delete event for unknown directory", slog.String("path", absPath))
		return nil
	}

	oldPath := absPath
	tombstone := model.DirectoryQueueEntry{Directory: *existing, SyncStatus: "delete", OldPath: &oldPath}

	if err := w.store.DeleteFolderWithTransaction(relPath, tombstone); err != nil {
		return fmt.Errorf("tombstoning directory %s: %w", relPath, err)
	}

	return nil
}

func (w *Worker) handleDeletedFile(absPath string) error {
	relDir := toRelativeDirPath(w.syncPath, absPath)
	filename := leafName(absPath)

	existing, err := w.store.GetFileByPath(relDir, filename)
	if err != nil {
		return fmt.Errorf("looking up file %s/%s: %w", relDir, filename, err)
	}

	if existing == nil {
		w.logger.Debug("delete event for unknown file", slog.String("path", absPath))
		return nil
	}

	oldPath := absPath
	oldFilename := filename
	tombstone := model.FileQueueEntry{File: *existing, SyncStatus: "delete", OldPath: &oldPath, OldFilename: &oldFilename}

	if err := w.store.DeleteFileWithTombstone(existing.Origin, tombstone); err != nil {
		return fmt.Errorf("tombstoning file %s/%s: %w", relDir, filename, err)
	}

	return nil
}

// HandleRenamed processes a rename/move, dispatching to
// handleAdded when the old location has no matching record.
func (w *Worker) HandleRenamed(newAbsPath, oldAbsPath string, isDir bool) error {
	if isDir {
		return w.handleRenamedDirectory(newAbsPath, oldAbsPath)
	}

	return w.handleRenamedFile(newAbsPath, oldAbsPath)
}

func (w *Worker) handleRenamedDirectory(newAbsPath, oldAbsPath string) error {
	oldRelPath := toRelativePath(w.syncPath, oldAbsPath)
	newRelPath := toRelativePath(w.syncPath, newAbsPath)

	oldParts := model.GetFolderDevice(oldRelPath)

	existing, err := w.store.GetDirectoryByPath(oldParts.Device, oldParts.Folder, oldRelPath)
	if err != nil {
		return fmt.Errorf("looking up directory %s: %w", oldRelPath, err)
	}

	if existing == nil {
		return w.handleAddedDirectory(newAbsPath)
	}

	newParts := model.GetFolderDevice(newRelPath)

	renamed := *existing
	renamed.Device = newParts.Device
	renamed.Folder = newParts.Folder
	renamed.Path = newRelPath
	renamed.AbsPath = newAbsPath

	dq := model.DirectoryQueueEntry{Directory: renamed, SyncStatus: "rename", OldPath: &oldRelPath}

	if err := w.store.MoveDirectory(w.syncPath, newRelPath, oldRelPath, dq); err != nil {
		return fmt.Errorf("moving directory %s -> %s: %w", oldRelPath, newRelPath, err)
	}

	return nil
}

func (w *Worker) handleRenamedFile(newAbsPath, oldAbsPath string) error {
	oldRelDir := toRelativeDirPath(w.syncPath, oldAbsPath)
	oldFilename := leafName(oldAbsPath)

	existing, err := w.store.GetFileByPath(oldRelDir, oldFilename)
	if err != nil {
		return fmt.Errorf("looking up file %s/%s: %w", oldRelDir, oldFilename, err)
	}

	if existing == nil {
		return w.handleAddedFile(newAbsPath)
	}

	newRelDir := toRelativeDirPath(w.syncPath, newAbsPath)
	newFilename := leafName(newAbsPath)

	info, err := os.Stat(newAbsPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", newAbsPath, err)
	}

	hash, err := hashFile(newAbsPath)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", newAbsPath, err)
	}

	dirID, err := w.ensureDirectory(newRelDir, newAbsPath, info.ModTime().Unix())
	if err != nil {
		return err
	}

	f := model.File{
		// UUID regenerated rather than carried over from existing, same
		// harmless divergence noted in HandleModified.
		UUID:                uuid.NewString(),
		Path:                newRelDir,
		Filename:            newFilename,
		LastModified:        info.ModTime().Unix(),
		HashValue:           hash,
		Size:                info.Size(),
		DirID:               dirID,
		Inode:               inodeOf(info),
		AbsPath:             newAbsPath,
		Versions:            existing.Versions + 1,
		Origin:              existing.Origin,
		LastSyncedHashValue: existing.LastSyncedHashValue,
		ConflictID:          existing.ConflictID,
	}

	oldRelPath := trimTrailingSlash(oldRelDir)
	fq := model.FileQueueEntry{File: f, SyncStatus: "rename", OldFilename: &oldFilename, OldPath: &oldRelPath}

	if err := w.store.InsertFileWithQueue(f, fq); err != nil {
		return fmt.Errorf("inserting renamed file %s: %w", newAbsPath, err)
	}

	return nil
}

func inodeOfPath(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}

	return inodeOf(info)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
