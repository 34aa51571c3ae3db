// Package app wires the reconciler and API client into the periodic
// cloud-sync loop original_source/src/main.cpp never actually runs: a
// single call to reconciliationService.reconcile() would need to fire
// on a timer for reconciliation to mean anything in a long-running
// daemon (see SPEC_FULL.md's Periodic reconcile loop section).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mira-labs/syncd/internal/api"
	"github.com/mira-labs/syncd/internal/model"
	"github.com/mira-labs/syncd/internal/reconcile"
	"github.com/mira-labs/syncd/internal/store"
)

// RunPeriodicReconcile fetches cloud metadata, three-way reconciles it
// against local state, applies the resulting plan, and pushes locally
// queued changes to the cloud, once per interval, until ctx is
// canceled.
func RunPeriodicReconcile(ctx context.Context, s store.Store, a api.API, syncPath string, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := reconcileOnce(ctx, s, a, syncPath, logger); err != nil {
				logger.Error("periodic reconcile failed", slog.String("error", err.Error()))
			}
		}
	}
}

func reconcileOnce(ctx context.Context, s store.Store, a api.API, syncPath string, logger *slog.Logger) error {
	meta, err := a.GetMetadata(ctx)
	if err != nil {
		return fmt.Errorf("fetching cloud metadata: %w", err)
	}

	plan, err := reconcile.Reconcile(s, syncPath, meta)
	if err != nil {
		return fmt.Errorf("reconciling cloud state: %w", err)
	}

	applyPlan(ctx, s, a, syncPath, plan, logger)
	pushLocalChanges(ctx, s, a, logger)

	return nil
}

func applyPlan(ctx context.Context, s store.Store, a api.API, syncPath string, plan model.ReconciliationResult, logger *slog.Logger) {
	for _, cf := range plan.FilesToDownload {
		if err := downloadFile(ctx, s, a, syncPath, cf); err != nil {
			logger.Error("downloading new cloud file", slog.String("filename", cf.Filename), slog.String("error", err.Error()))
		}
	}

	for _, cf := range plan.FilesToUpdate {
		if err := downloadFile(ctx, s, a, syncPath, cf); err != nil {
			logger.Error("downloading updated cloud file", slog.String("filename", cf.Filename), slog.String("error", err.Error()))
		}
	}

	for _, f := range plan.FilesToDeleteLocal {
		if err := deleteLocalFile(s, syncPath, f); err != nil {
			logger.Error("deleting local file gone from cloud", slog.String("filename", f.Filename), slog.String("error", err.Error()))
		}
	}

	for _, fc := range plan.FoldersToCreateLocal {
		if err := createLocalFolder(s, fc); err != nil {
			logger.Error("creating local folder from cloud", slog.String("path", fc.Path), slog.String("error", err.Error()))
		}
	}

	for _, fd := range plan.FoldersToDeleteLocal {
		if err := deleteLocalFolder(s, fd); err != nil {
			logger.Error("deleting local folder gone from cloud", slog.String("path", fd.Path), slog.String("error", err.Error()))
		}
	}

	for _, rp := range plan.FilesToRename {
		if err := renameLocalFile(s, syncPath, rp); err != nil {
			logger.Error("applying cloud rename locally", slog.String("filename", rp.NewFile.Filename), slog.String("error", err.Error()))
		}
	}

	for _, cf := range plan.FilesInConflict {
		logger.Warn("file in conflict, leaving both versions for manual resolution",
			slog.String("filename", cf.Filename), slog.String("path", cf.Path))
	}
}

func downloadFile(ctx context.Context, s store.Store, a api.API, syncPath string, cf model.CloudFile) error {
	absPath := filepath.Join(syncPath, cf.Path, cf.Filename)

	if err := a.Download(ctx, cf, absPath); err != nil {
		return fmt.Errorf("downloading %s: %w", cf.Filename, err)
	}

	return s.UpsertFile(model.File{
		UUID:                cf.UUID,
		Path:                cf.Path,
		Filename:            cf.Filename,
		LastModified:        cf.LastModified,
		HashValue:           cf.HashValue,
		Size:                cf.Size,
		AbsPath:             absPath,
		Versions:            cf.Versions,
		Origin:              cf.Origin,
		LastSyncedHashValue: cf.HashValue,
		ConflictID:          cf.ConflictID,
	})
}

func deleteLocalFile(s store.Store, syncPath string, f model.File) error {
	absPath := f.AbsPath
	if absPath == "" {
		absPath = filepath.Join(syncPath, f.Path, f.Filename)
	}

	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", absPath, err)
	}

	return s.DeleteFile(f.Origin)
}

func createLocalFolder(s store.Store, fc model.FolderCreatePlan) error {
	if err := os.MkdirAll(fc.AbsPath, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", fc.AbsPath, err)
	}

	return s.UpsertDirectory(model.Directory{
		UUID:      fc.UUID,
		Device:    fc.Device,
		Folder:    fc.Folder,
		Path:      fc.Path,
		CreatedAt: fc.CreatedAt,
		AbsPath:   fc.AbsPath,
	})
}

func deleteLocalFolder(s store.Store, fd model.FolderDeletePlan) error {
	if err := os.RemoveAll(fd.AbsPath); err != nil {
		return fmt.Errorf("removing %s: %w", fd.AbsPath, err)
	}

	existing, err := s.GetDirectoryByPath(model.GetFolderDevice(fd.Path).Device, fd.Folder, fd.Path)
	if err != nil {
		return fmt.Errorf("looking up folder %s: %w", fd.Path, err)
	}

	if existing == nil {
		return nil
	}

	return s.DeleteDirectory(existing.UUID)
}

func renameLocalFile(s store.Store, syncPath string, rp model.FileRenamePlan) error {
	oldAbsPath := rp.OldFile.AbsPath
	if oldAbsPath == "" {
		oldAbsPath = filepath.Join(syncPath, rp.OldFile.Path, rp.OldFile.Filename)
	}

	newAbsPath := filepath.Join(syncPath, rp.NewFile.Path, rp.NewFile.Filename)

	if err := os.MkdirAll(filepath.Dir(newAbsPath), 0o755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", newAbsPath, err)
	}

	if err := os.Rename(oldAbsPath, newAbsPath); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", oldAbsPath, newAbsPath, err)
	}

	return s.UpsertFile(model.File{
		UUID:                rp.OldFile.UUID,
		Path:                rp.NewFile.Path,
		Filename:            rp.NewFile.Filename,
		LastModified:        rp.NewFile.LastModified,
		HashValue:           rp.NewFile.HashValue,
		Size:                rp.NewFile.Size,
		DirID:               rp.OldFile.DirID,
		AbsPath:             newAbsPath,
		Versions:            rp.NewFile.Versions,
		Origin:              rp.OldFile.Origin,
		LastSyncedHashValue: rp.NewFile.HashValue,
		ConflictID:          rp.NewFile.ConflictID,
	})
}

// pushLocalChanges drives locally queued FileQueue/DirectoryQueue
// entries through the API, clearing each queue row once the cloud has
// acknowledged it.
func pushLocalChanges(ctx context.Context, s store.Store, a api.API, logger *slog.Logger) {
	fileQueue, err := s.GetFileQueue()
	if err != nil {
		logger.Error("listing file queue", slog.String("error", err.Error()))
		return
	}

	for _, q := range fileQueue {
		if err := pushFileQueueEntry(ctx, s, a, q); err != nil {
			logger.Error("pushing local file change", slog.String("filename", q.File.Filename), slog.String("status", q.SyncStatus), slog.String("error", err.Error()))
		}
	}

	dirQueue, err := s.GetDirectoryQueue()
	if err != nil {
		logger.Error("listing directory queue", slog.String("error", err.Error()))
		return
	}

	for _, q := range dirQueue {
		if err := pushDirectoryQueueEntry(ctx, s, a, q); err != nil {
			logger.Error("pushing local folder change", slog.String("path", q.Directory.Path), slog.String("status", q.SyncStatus), slog.String("error", err.Error()))
		}
	}
}

func pushFileQueueEntry(ctx context.Context, s store.Store, a api.API, q model.FileQueueEntry) error {
	switch q.SyncStatus {
	case "new", "modified":
		pathIDs, err := directoryChainUUIDs(s, q.File.Path)
		if err != nil {
			return fmt.Errorf("resolving directory chain for %s: %w", q.File.Path, err)
		}

		if _, err := a.Upload(ctx, q, pathIDs); err != nil {
			return err
		}
	case "rename":
		if err := a.Rename(ctx, q); err != nil {
			return err
		}
	case "delete":
		if err := a.Delete(ctx, q); err != nil {
			return err
		}
	default:
		return nil
	}

	return s.DeleteFileQueue(q.File.Origin)
}

// directoryChainUUIDs resolves the uuid of every ancestor directory of
// path, from the device root down to path's own containing directory:
// the pathids the wire format sends alongside an upload so the server
// can place the file without a separate folder lookup.
func directoryChainUUIDs(s store.Store, path string) ([]string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")

	var ids []string

	cumulative := ""

	for _, seg := range segments {
		if seg == "" {
			continue
		}

		cumulative += "/" + seg

		parts := model.GetFolderDevice(cumulative)

		dir, err := s.GetDirectoryByPath(parts.Device, parts.Folder, cumulative)
		if err != nil {
			return nil, err
		}

		if dir == nil {
			continue
		}

		ids = append(ids, dir.UUID)
	}

	return ids, nil
}

func pushDirectoryQueueEntry(ctx context.Context, s store.Store, a api.API, q model.DirectoryQueueEntry) error {
	switch q.SyncStatus {
	case "new":
		if err := a.CreateFolder(ctx, q.Directory); err != nil {
			return err
		}
	case "rename":
		if err := a.RenameFolder(ctx, q); err != nil {
			return err
		}
	case "delete":
		if err := a.DeleteFolder(ctx, q.Directory); err != nil {
			return err
		}
	default:
		return nil
	}

	return s.DeleteDirectoryQueue(q.Directory.UUID)
}
