package store

// schema is applied with CREATE TABLE IF NOT EXISTS on every Open:
// no migration framework, since the schema never changes shape after
// this first version (see DESIGN.md).
const schema = `
CREATE TABLE IF NOT EXISTS directories (
	uuid       TEXT PRIMARY KEY,
	device     TEXT NOT NULL,
	folder     TEXT NOT NULL,
	path       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	abs_path   TEXT NOT NULL,
	inode      TEXT NOT NULL,
	UNIQUE(device, folder, path)
);

CREATE TABLE IF NOT EXISTS files (
	path                    TEXT NOT NULL,
	filename                TEXT NOT NULL,
	last_modified           INTEGER NOT NULL,
	hashvalue               TEXT NOT NULL,
	size                    INTEGER NOT NULL,
	dir_id                  TEXT NOT NULL,
	inode                   TEXT NOT NULL,
	abs_path                TEXT NOT NULL,
	versions                INTEGER NOT NULL,
	origin                  TEXT NOT NULL UNIQUE,
	last_synced_hash_value  TEXT NOT NULL,
	conflict_id             TEXT,
	PRIMARY KEY (path, filename),
	FOREIGN KEY (dir_id) REFERENCES directories(uuid)
);

CREATE TABLE IF NOT EXISTS directory_queue (
	uuid       TEXT PRIMARY KEY,
	device     TEXT NOT NULL,
	folder     TEXT NOT NULL,
	path       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL,
	abs_path   TEXT NOT NULL,
	old_path   TEXT,
	inode      TEXT NOT NULL,
	UNIQUE(device, folder, path)
);

CREATE TABLE IF NOT EXISTS file_queue (
	path                    TEXT NOT NULL,
	filename                TEXT NOT NULL,
	last_modified           INTEGER NOT NULL,
	hashvalue               TEXT NOT NULL,
	size                    INTEGER NOT NULL,
	dir_id                  TEXT NOT NULL,
	sync_status             TEXT NOT NULL,
	inode                   TEXT NOT NULL,
	versions                INTEGER NOT NULL,
	origin                  TEXT NOT NULL UNIQUE,
	abs_path                TEXT NOT NULL,
	old_path                TEXT,
	old_filename            TEXT,
	last_synced_hash_value  TEXT NOT NULL,
	PRIMARY KEY (path, filename)
);
`
