package store

import (
	"database/sql"
	"strings"

	"github.com/mira-labs/syncd/internal/model"
)

// escapeLikePattern escapes the characters meaningful to SQL LIKE (%,
// _, and the escape character itself) so a literal path can be safely
// embedded in a LIKE pattern.
func escapeLikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// dirPrefixPattern builds the LIKE pattern matching everything nested
// under dir; the row at dir itself is matched separately with an
// equality check, per spec's "path = P or path starts with P+/" rule.
func dirPrefixPattern(dir string) string {
	return escapeLikePattern(dir) + "/%"
}

const fileColumns = "path, filename, last_modified, hashvalue, size, dir_id, inode, abs_path, versions, origin, last_synced_hash_value, conflict_id"

const insertFileSQL = `INSERT INTO files (` + fileColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`

const upsertFileSQL = `INSERT INTO files (` + fileColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(path, filename) DO UPDATE SET
	last_modified=excluded.last_modified,
	hashvalue=excluded.hashvalue,
	size=excluded.size,
	dir_id=excluded.dir_id,
	inode=excluded.inode,
	abs_path=excluded.abs_path,
	versions=excluded.versions,
	origin=excluded.origin,
	last_synced_hash_value=excluded.last_synced_hash_value,
	conflict_id=excluded.conflict_id`

func fileArgs(f model.File) []any {
	return []any{f.Path, f.Filename, f.LastModified, f.HashValue, f.Size, f.DirID, f.Inode, f.AbsPath, f.Versions, f.Origin, f.LastSyncedHashValue, nullableString(f.ConflictID)}
}

func scanFile(row *sql.Row) (*model.File, error) {
	var f model.File

	var conflictID sql.NullString

	err := row.Scan(&f.Path, &f.Filename, &f.LastModified, &f.HashValue, &f.Size, &f.DirID, &f.Inode, &f.AbsPath, &f.Versions, &f.Origin, &f.LastSyncedHashValue, &conflictID)

	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, err
	}

	f.ConflictID = conflictID.String

	return &f, nil
}

func scanFiles(rows *sql.Rows) ([]model.File, error) {
	var files []model.File

	for rows.Next() {
		var f model.File

		var conflictID sql.NullString

		if err := rows.Scan(&f.Path, &f.Filename, &f.LastModified, &f.HashValue, &f.Size, &f.DirID, &f.Inode, &f.AbsPath, &f.Versions, &f.Origin, &f.LastSyncedHashValue, &conflictID); err != nil {
			return nil, err
		}

		f.ConflictID = conflictID.String
		files = append(files, f)
	}

	return files, rows.Err()
}

const directoryColumns = "uuid, device, folder, path, created_at, abs_path, inode"

const insertDirectorySQL = `INSERT INTO directories (` + directoryColumns + `) VALUES (?,?,?,?,?,?,?)`

const upsertDirectorySQL = `INSERT INTO directories (` + directoryColumns + `) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(uuid) DO UPDATE SET
	device=excluded.device,
	folder=excluded.folder,
	path=excluded.path,
	created_at=excluded.created_at,
	abs_path=excluded.abs_path,
	inode=excluded.inode`

func directoryArgs(d model.Directory) []any {
	return []any{d.UUID, d.Device, d.Folder, d.Path, d.CreatedAt, d.AbsPath, d.Inode}
}

func scanDirectory(row *sql.Row) (*model.Directory, error) {
	var d model.Directory

	err := row.Scan(&d.UUID, &d.Device, &d.Folder, &d.Path, &d.CreatedAt, &d.AbsPath, &d.Inode)

	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, err
	}

	return &d, nil
}

func scanDirectories(rows *sql.Rows) ([]model.Directory, error) {
	var dirs []model.Directory

	for rows.Next() {
		var d model.Directory
		if err := rows.Scan(&d.UUID, &d.Device, &d.Folder, &d.Path, &d.CreatedAt, &d.AbsPath, &d.Inode); err != nil {
			return nil, err
		}

		dirs = append(dirs, d)
	}

	return dirs, rows.Err()
}

const fileQueueColumns = "path, filename, last_modified, hashvalue, size, dir_id, sync_status, inode, versions, origin, abs_path, old_path, old_filename, last_synced_hash_value"

const fileQueueSelectSQL = `SELECT ` + fileQueueColumns + ` FROM file_queue`

const insertFileQueueSQL = `INSERT INTO file_queue (` + fileQueueColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

const upsertFileQueueSQL = `INSERT INTO file_queue (` + fileQueueColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(path, filename) DO UPDATE SET
	last_modified=excluded.last_modified,
	hashvalue=excluded.hashvalue,
	size=excluded.size,
	dir_id=excluded.dir_id,
	sync_status=excluded.sync_status,
	inode=excluded.inode,
	versions=excluded.versions,
	origin=excluded.origin,
	abs_path=excluded.abs_path,
	old_path=excluded.old_path,
	old_filename=excluded.old_filename,
	last_synced_hash_value=excluded.last_synced_hash_value`

func fileQueueArgs(q model.FileQueueEntry) []any {
	f := q.File
	return []any{f.Path, f.Filename, f.LastModified, f.HashValue, f.Size, f.DirID, q.SyncStatus, f.Inode, f.Versions, f.Origin, f.AbsPath, nullableStringPtr(q.OldPath), nullableStringPtr(q.OldFilename), f.LastSyncedHashValue}
}

func scanFileQueueRow(scan func(dest ...any) error) (model.FileQueueEntry, error) {
	var q model.FileQueueEntry

	var oldPath, oldFilename sql.NullString

	err := scan(&q.File.Path, &q.File.Filename, &q.File.LastModified, &q.File.HashValue, &q.File.Size, &q.File.DirID, &q.SyncStatus, &q.File.Inode, &q.File.Versions, &q.File.Origin, &q.File.AbsPath, &oldPath, &oldFilename, &q.File.LastSyncedHashValue)
	if err != nil {
		return q, err
	}

	if oldPath.Valid {
		q.OldPath = &oldPath.String
	}

	if oldFilename.Valid {
		q.OldFilename = &oldFilename.String
	}

	return q, nil
}

func scanFileQueue(rows *sql.Rows) ([]model.FileQueueEntry, error) {
	var entries []model.FileQueueEntry

	for rows.Next() {
		q, err := scanFileQueueRow(rows.Scan)
		if err != nil {
			return nil, err
		}

		entries = append(entries, q)
	}

	return entries, rows.Err()
}

const directoryQueueColumns = "uuid, device, folder, path, created_at, sync_status, abs_path, old_path, inode"

const insertDirectoryQueueSQL = `INSERT INTO directory_queue (` + directoryQueueColumns + `) VALUES (?,?,?,?,?,?,?,?,?)`

func directoryQueueArgs(q model.DirectoryQueueEntry) []any {
	d := q.Directory
	return []any{d.UUID, d.Device, d.Folder, d.Path, d.CreatedAt, q.SyncStatus, d.AbsPath, nullableStringPtr(q.OldPath), d.Inode}
}

func scanDirectoryQueueRow(scan func(dest ...any) error) (model.DirectoryQueueEntry, error) {
	var q model.DirectoryQueueEntry

	var oldPath sql.NullString

	err := scan(&q.Directory.UUID, &q.Directory.Device, &q.Directory.Folder, &q.Directory.Path, &q.Directory.CreatedAt, &q.SyncStatus, &q.Directory.AbsPath, &oldPath, &q.Directory.Inode)
	if err != nil {
		return q, err
	}

	if oldPath.Valid {
		q.OldPath = &oldPath.String
	}

	return q, nil
}

func scanDirectoryQueue(rows *sql.Rows) ([]model.DirectoryQueueEntry, error) {
	var entries []model.DirectoryQueueEntry

	for rows.Next() {
		q, err := scanDirectoryQueueRow(rows.Scan)
		if err != nil {
			return nil, err
		}

		entries = append(entries, q)
	}

	return entries, rows.Err()
}
