// Package scanner walks the local sync directory, producing the
// snapshot of files and directories the offline reconciler compares
// against the store.
package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/mira-labs/syncd/internal/model"
)

// hiddenSkip lists directory names never descended into during a scan.
var hiddenSkip = map[string]bool{
	".git": true,
}

// ScanSyncPath walks syncPath recursively and returns every regular
// file and directory found, with content hash, inode and mtime
// populated. Per-entry stat/hash failures are logged and skipped
// rather than aborting the whole scan, matching the best-effort
// try/catch-and-continue behavior of the reference scanner.
func ScanSyncPath(syncPath string, logger *slog.Logger) (model.ScanResult, error) {
	var result model.ScanResult

	if _, err := os.Stat(syncPath); os.IsNotExist(err) {
		return result, nil
	}

	var totalBytes uint64

	walkErr := filepath.WalkDir(syncPath, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("scan: error visiting entry", slog.String("path", absPath), slog.Any("error", err))
			return nil
		}

		if absPath == syncPath {
			return nil
		}

		if d.IsDir() {
			if hiddenSkip[d.Name()] {
				return filepath.SkipDir
			}

			dir, ok := scanDirectory(syncPath, absPath, d, logger)
			if ok {
				result.Directories = append(result.Directories, dir)
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		file, ok := scanFile(syncPath, absPath, d, logger)
		if ok {
			result.Files = append(result.Files, file)
			totalBytes += uint64(file.Size)
		}

		return nil
	})
	if walkErr != nil {
		return result, walkErr
	}

	logger.Info("scan complete",
		slog.Int("files", len(result.Files)),
		slog.Int("directories", len(result.Directories)),
		slog.String("total_size", humanize.Bytes(totalBytes)))

	return result, nil
}

func scanDirectory(syncPath, absPath string, d fs.DirEntry, logger *slog.Logger) (model.ScannedDirectory, bool) {
	info, err := d.Info()
	if err != nil {
		logger.Warn("scan: stat failed", slog.String("path", absPath), slog.Any("error", err))
		return model.ScannedDirectory{}, false
	}

	return model.ScannedDirectory{
		Path:    toRelativePath(syncPath, absPath),
		Name:    d.Name(),
		AbsPath: absPath,
		Inode:   inodeOf(info),
		MTime:   info.ModTime().Unix(),
	}, true
}

func scanFile(syncPath, absPath string, d fs.DirEntry, logger *slog.Logger) (model.ScannedFile, bool) {
	info, err := d.Info()
	if err != nil {
		logger.Warn("scan: stat failed", slog.String("path", absPath), slog.Any("error", err))
		return model.ScannedFile{}, false
	}

	hash, err := hashFile(absPath)
	if err != nil {
		logger.Warn("scan: hash failed", slog.String("path", absPath), slog.Any("error", err))
		return model.ScannedFile{}, false
	}

	return model.ScannedFile{
		Path:    toRelativeDirPath(syncPath, absPath),
		Name:    d.Name(),
		AbsPath: absPath,
		Inode:   inodeOf(info),
		Hash:    hash,
		Size:    info.Size(),
		MTime:   info.ModTime().Unix(),
	}, true
}

func hashFile(absPath string) (string, error) {
	f, err := os.Open(absPath)
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

// toRelativePath returns a directory's path relative to the sync
// root, with a leading slash, e.g. "/notes/archive".
func toRelativePath(syncPath, absPath string) string {
	rel, err := filepath.Rel(syncPath, absPath)
	if err != nil || rel == "." {
		return "/"
	}

	return "/" + filepath.ToSlash(rel)
}

// toRelativeDirPath returns the containing directory of a file, as a
// path relative to the sync root, e.g. a file at
// "<sync>/notes/a.md" has path "/notes".
func toRelativeDirPath(syncPath, absPath string) string {
	return toRelativePath(syncPath, filepath.Dir(absPath))
}
