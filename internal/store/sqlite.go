package store

import (
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	syncerrors "github.com/mira-labs/syncd/internal/errors"
	"github.com/mira-labs/syncd/internal/model"
)

// wrapStoreErr classifies err against sqlite3's own error codes: a
// constraint violation (a unique-key clash, a foreign key check)
// means the write would have broken one of the store's own
// invariants, not that the caller misused the API — classified so
// callers can branch on it with errors.As instead of matching
// driver-specific error strings.
func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return syncerrors.Wrap(syncerrors.KindStoreIntegrity, op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// SQLiteStore is the Store implementation backed by a local SQLite
// database file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// synchronizes its schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("synchronizing schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// OpenFromDB wraps an already-open *sql.DB, used by tests that want
// an in-memory database (":memory:") without going through Open's
// file-path plumbing.
func OpenFromDB(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("synchronizing schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// -- Files --

func (s *SQLiteStore) GetAllFiles() ([]model.File, error) {
	rows, err := s.db.Query(`SELECT path, filename, last_modified, hashvalue, size, dir_id, inode, abs_path, versions, origin, last_synced_hash_value, conflict_id FROM files`)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

func (s *SQLiteStore) GetFileByPath(path, filename string) (*model.File, error) {
	row := s.db.QueryRow(`SELECT path, filename, last_modified, hashvalue, size, dir_id, inode, abs_path, versions, origin, last_synced_hash_value, conflict_id FROM files WHERE path = ? AND filename = ?`, path, filename)
	return scanFile(row)
}

func (s *SQLiteStore) GetFileByOrigin(origin string) (*model.File, error) {
	row := s.db.QueryRow(`SELECT path, filename, last_modified, hashvalue, size, dir_id, inode, abs_path, versions, origin, last_synced_hash_value, conflict_id FROM files WHERE origin = ?`, origin)
	return scanFile(row)
}

// GetAllInDirectory returns every File whose path equals dirPath or
// starts with dirPath+"/", using the same dirPrefixPattern predicate
// DeleteFolderWithTransaction and the Move* transactions apply.
func (s *SQLiteStore) GetAllInDirectory(dirPath string) ([]model.File, error) {
	pattern := dirPrefixPattern(dirPath)

	rows, err := s.db.Query(`SELECT `+fileColumns+` FROM files WHERE path = ? OR path LIKE ? ESCAPE '\'`, dirPath, pattern)
	if err != nil {
		return nil, fmt.Errorf("querying files under %s: %w", dirPath, err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

func (s *SQLiteStore) InsertFile(f model.File) error {
	_, err := s.db.Exec(insertFileSQL, fileArgs(f)...)
	if err != nil {
		return wrapStoreErr(fmt.Sprintf("inserting file %s/%s", f.Path, f.Filename), err)
	}

	return nil
}

func (s *SQLiteStore) UpdateFile(f model.File) error {
	_, err := s.db.Exec(`UPDATE files SET last_modified=?, hashvalue=?, size=?, dir_id=?, inode=?, abs_path=?, versions=?, origin=?, last_synced_hash_value=?, conflict_id=? WHERE path=? AND filename=?`,
		f.LastModified, f.HashValue, f.Size, f.DirID, f.Inode, f.AbsPath, f.Versions, f.Origin, f.LastSyncedHashValue, nullableString(f.ConflictID), f.Path, f.Filename)
	if err != nil {
		return wrapStoreErr(fmt.Sprintf("updating file %s/%s", f.Path, f.Filename), err)
	}

	return nil
}

func (s *SQLiteStore) DeleteFile(origin string) error {
	_, err := s.db.Exec(`DELETE FROM files WHERE origin = ?`, origin)
	if err != nil {
		return fmt.Errorf("deleting file origin %s: %w", origin, err)
	}

	return nil
}

func (s *SQLiteStore) UpsertFile(f model.File) error {
	_, err := s.db.Exec(upsertFileSQL, fileArgs(f)...)
	if err != nil {
		return wrapStoreErr(fmt.Sprintf("upserting file %s/%s", f.Path, f.Filename), err)
	}

	return nil
}

// -- Directories --

func (s *SQLiteStore) GetAllDirectories() ([]model.Directory, error) {
	rows, err := s.db.Query(`SELECT uuid, device, folder, path, created_at, abs_path, inode FROM directories`)
	if err != nil {
		return nil, fmt.Errorf("querying directories: %w", err)
	}
	defer rows.Close()

	return scanDirectories(rows)
}

func (s *SQLiteStore) GetDirectoryByPath(device, folder, path string) (*model.Directory, error) {
	row := s.db.QueryRow(`SELECT uuid, device, folder, path, created_at, abs_path, inode FROM directories WHERE device = ? AND folder = ? AND path = ?`, device, folder, path)
	return scanDirectory(row)
}

func (s *SQLiteStore) InsertDirectory(d model.Directory) error {
	_, err := s.db.Exec(insertDirectorySQL, directoryArgs(d)...)
	if err != nil {
		return wrapStoreErr(fmt.Sprintf("inserting directory %s", d.Path), err)
	}

	return nil
}

func (s *SQLiteStore) UpdateDirectory(d model.Directory) error {
	_, err := s.db.Exec(`UPDATE directories SET device=?, folder=?, path=?, created_at=?, abs_path=?, inode=? WHERE uuid=?`,
		d.Device, d.Folder, d.Path, d.CreatedAt, d.AbsPath, d.Inode, d.UUID)
	if err != nil {
		return wrapStoreErr(fmt.Sprintf("updating directory %s", d.UUID), err)
	}

	return nil
}

func (s *SQLiteStore) DeleteDirectory(uuid string) error {
	_, err := s.db.Exec(`DELETE FROM directories WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("deleting directory %s: %w", uuid, err)
	}

	return nil
}

// UpsertDirectory looks the row up by its (device, folder, path)
// uniqueness key rather than by uuid, preserving the existing uuid on
// update: the uuid is a surrogate key, (device, folder, path) is the
// caller's natural identity for a directory.
func (s *SQLiteStore) UpsertDirectory(d model.Directory) error {
	existing, err := s.GetDirectoryByPath(d.Device, d.Folder, d.Path)
	if err != nil {
		return err
	}

	if existing != nil {
		d.UUID = existing.UUID
		return s.UpdateDirectory(d)
	}

	return s.InsertDirectory(d)
}

// -- File queue --

func (s *SQLiteStore) GetFileQueue() ([]model.FileQueueEntry, error) {
	rows, err := s.db.Query(fileQueueSelectSQL)
	if err != nil {
		return nil, fmt.Errorf("querying file queue: %w", err)
	}
	defer rows.Close()

	return scanFileQueue(rows)
}

func (s *SQLiteStore) InsertFileQueue(q model.FileQueueEntry) error {
	_, err := s.db.Exec(insertFileQueueSQL, fileQueueArgs(q)...)
	if err != nil {
		return wrapStoreErr(fmt.Sprintf("inserting file queue entry %s/%s", q.File.Path, q.File.Filename), err)
	}

	return nil
}

func (s *SQLiteStore) UpdateFileQueue(q model.FileQueueEntry) error {
	_, err := s.db.Exec(`UPDATE file_queue SET last_modified=?, hashvalue=?, size=?, dir_id=?, sync_status=?, inode=?, versions=?, origin=?, abs_path=?, old_path=?, old_filename=?, last_synced_hash_value=? WHERE path=? AND filename=?`,
		q.File.LastModified, q.File.HashValue, q.File.Size, q.File.DirID, q.SyncStatus, q.File.Inode, q.File.Versions, q.File.Origin, q.File.AbsPath,
		nullableStringPtr(q.OldPath), nullableStringPtr(q.OldFilename), q.File.LastSyncedHashValue, q.File.Path, q.File.Filename)
	if err != nil {
		return wrapStoreErr(fmt.Sprintf("updating file queue entry %s/%s", q.File.Path, q.File.Filename), err)
	}

	return nil
}

func (s *SQLiteStore) UpsertFileQueue(q model.FileQueueEntry) error {
	_, err := s.db.Exec(upsertFileQueueSQL, fileQueueArgs(q)...)
	if err != nil {
		return wrapStoreErr(fmt.Sprintf("upserting file queue entry %s/%s", q.File.Path, q.File.Filename), err)
	}

	return nil
}

func (s *SQLiteStore) DeleteFileQueue(origin string) error {
	_, err := s.db.Exec(`DELETE FROM file_queue WHERE origin = ?`, origin)
	if err != nil {
		return fmt.Errorf("deleting file queue entry origin %s: %w", origin, err)
	}

	return nil
}

// -- Directory queue --

func (s *SQLiteStore) GetDirectoryQueue() ([]model.DirectoryQueueEntry, error) {
	rows, err := s.db.Query(`SELECT uuid, device, folder, path, created_at, sync_status, abs_path, old_path, inode FROM directory_queue`)
	if err != nil {
		return nil, fmt.Errorf("querying directory queue: %w", err)
	}
	defer rows.Close()

	return scanDirectoryQueue(rows)
}

func (s *SQLiteStore) InsertDirectoryQueue(q model.DirectoryQueueEntry) error {
	_, err := s.db.Exec(insertDirectoryQueueSQL, directoryQueueArgs(q)...)
	if err != nil {
		return wrapStoreErr(fmt.Sprintf("inserting directory queue entry %s", q.Directory.UUID), err)
	}

	return nil
}

func (s *SQLiteStore) UpdateDirectoryQueue(q model.DirectoryQueueEntry) error {
	_, err := s.db.Exec(`UPDATE directory_queue SET device=?, folder=?, path=?, created_at=?, sync_status=?, abs_path=?, old_path=?, inode=? WHERE uuid=?`,
		q.Directory.Device, q.Directory.Folder, q.Directory.Path, q.Directory.CreatedAt, q.SyncStatus, q.Directory.AbsPath, nullableStringPtr(q.OldPath), q.Directory.Inode, q.Directory.UUID)
	if err != nil {
		return wrapStoreErr(fmt.Sprintf("updating directory queue entry %s", q.Directory.UUID), err)
	}

	return nil
}

// UpsertDirectoryQueue looks the row up by (device, folder, path),
// preserving the existing uuid on update, matching UpsertDirectory.
func (s *SQLiteStore) UpsertDirectoryQueue(q model.DirectoryQueueEntry) error {
	row := s.db.QueryRow(`SELECT uuid FROM directory_queue WHERE device = ? AND folder = ? AND path = ?`, q.Directory.Device, q.Directory.Folder, q.Directory.Path)

	var existingUUID string

	switch err := row.Scan(&existingUUID); {
	case err == sql.ErrNoRows:
		return s.InsertDirectoryQueue(q)
	case err != nil:
		return fmt.Errorf("looking up directory queue entry: %w", err)
	default:
		q.Directory.UUID = existingUUID
		return s.UpdateDirectoryQueue(q)
	}
}

func (s *SQLiteStore) DeleteDirectoryQueue(uuid string) error {
	_, err := s.db.Exec(`DELETE FROM directory_queue WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("deleting directory queue entry %s: %w", uuid, err)
	}

	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func nullableStringPtr(s *string) any {
	if s == nil {
		return nil
	}

	return *s
}
