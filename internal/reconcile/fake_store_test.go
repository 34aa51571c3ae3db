package reconcile

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/mira-labs/syncd/internal/model"
)

// fakeStore is a hand-written in-memory store.Store used to exercise
// the reconciliation algorithms without a real database, matching
// DESIGN.md's note on testing the reconciler independent of SQLite.
type fakeStore struct {
	files       map[string]model.File
	dirs        map[string]model.Directory
	fileQueue   map[string]model.FileQueueEntry
	dirQueue    map[string]model.DirectoryQueueEntry
	movedOldIDs [][]string
	movedNewIDs [][]string
	movedInto   []model.DirectoryQueueEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:     make(map[string]model.File),
		dirs:      make(map[string]model.Directory),
		fileQueue: make(map[string]model.FileQueueEntry),
		dirQueue:  make(map[string]model.DirectoryQueueEntry),
	}
}

func (s *fakeStore) GetAllFiles() ([]model.File, error) {
	var out []model.File
	for _, f := range s.files {
		out = append(out, f)
	}

	return out, nil
}

func (s *fakeStore) GetFileByPath(path, filename string) (*model.File, error) {
	for _, f := range s.files {
		if f.Path == path && f.Filename == filename {
			return &f, nil
		}
	}

	return nil, nil
}

func (s *fakeStore) GetFileByOrigin(origin string) (*model.File, error) {
	f, ok := s.files[origin]
	if !ok {
		return nil, nil
	}

	return &f, nil
}

func (s *fakeStore) GetAllInDirectory(dirPath string) ([]model.File, error) {
	var out []model.File
	for _, f := range s.files {
		if underPath(f.Path, dirPath) {
			out = append(out, f)
		}
	}

	return out, nil
}

// underPath reports whether p is dir itself or nested under it,
// mirroring the SQL "path = P or path starts with P+/" predicate.
func underPath(p, dir string) bool {
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// rewritePrefix substitutes the oldPath prefix of p with newPath,
// preserving whatever suffix follows the prefix exactly.
func rewritePrefix(p, oldPath, newPath string) string {
	if p == oldPath {
		return newPath
	}

	return newPath + strings.TrimPrefix(p, oldPath)
}

func (s *fakeStore) InsertFile(f model.File) error {
	s.files[f.Origin] = f
	return nil
}

func (s *fakeStore) UpdateFile(f model.File) error {
	s.files[f.Origin] = f
	return nil
}

func (s *fakeStore) DeleteFile(origin string) error {
	delete(s.files, origin)
	return nil
}

func (s *fakeStore) UpsertFile(f model.File) error {
	s.files[f.Origin] = f
	return nil
}

func (s *fakeStore) GetAllDirectories() ([]model.Directory, error) {
	var out []model.Directory
	for _, d := range s.dirs {
		out = append(out, d)
	}

	return out, nil
}

func (s *fakeStore) GetDirectoryByPath(device, folder, path string) (*model.Directory, error) {
	for _, d := range s.dirs {
		if d.Device == device && d.Folder == folder && d.Path == path {
			return &d, nil
		}
	}

	return nil, nil
}

func (s *fakeStore) InsertDirectory(d model.Directory) error {
	s.dirs[d.UUID] = d
	return nil
}

func (s *fakeStore) UpdateDirectory(d model.Directory) error {
	s.dirs[d.UUID] = d
	return nil
}

func (s *fakeStore) DeleteDirectory(uuid string) error {
	delete(s.dirs, uuid)
	return nil
}

func (s *fakeStore) UpsertDirectory(d model.Directory) error {
	s.dirs[d.UUID] = d
	return nil
}

func (s *fakeStore) GetFileQueue() ([]model.FileQueueEntry, error) {
	var out []model.FileQueueEntry
	for _, q := range s.fileQueue {
		out = append(out, q)
	}

	return out, nil
}

func fileQueueKey(q model.FileQueueEntry) string {
	return q.File.Path + "|" + q.File.Filename
}

func (s *fakeStore) InsertFileQueue(q model.FileQueueEntry) error {
	s.fileQueue[fileQueueKey(q)] = q
	return nil
}

func (s *fakeStore) UpdateFileQueue(q model.FileQueueEntry) error {
	s.fileQueue[fileQueueKey(q)] = q
	return nil
}

func (s *fakeStore) UpsertFileQueue(q model.FileQueueEntry) error {
	s.fileQueue[fileQueueKey(q)] = q
	return nil
}

func (s *fakeStore) DeleteFileQueue(origin string) error {
	for k, q := range s.fileQueue {
		if q.File.Origin == origin {
			delete(s.fileQueue, k)
		}
	}

	return nil
}

func (s *fakeStore) GetDirectoryQueue() ([]model.DirectoryQueueEntry, error) {
	var out []model.DirectoryQueueEntry
	for _, q := range s.dirQueue {
		out = append(out, q)
	}

	return out, nil
}

func (s *fakeStore) InsertDirectoryQueue(q model.DirectoryQueueEntry) error {
	s.dirQueue[q.Directory.UUID] = q
	return nil
}

func (s *fakeStore) UpdateDirectoryQueue(q model.DirectoryQueueEntry) error {
	s.dirQueue[q.Directory.UUID] = q
	return nil
}

func (s *fakeStore) UpsertDirectoryQueue(q model.DirectoryQueueEntry) error {
	s.dirQueue[q.Directory.UUID] = q
	return nil
}

func (s *fakeStore) DeleteDirectoryQueue(uuid string) error {
	delete(s.dirQueue, uuid)
	return nil
}

func (s *fakeStore) InsertDirectoryWithQueue(d model.Directory, q model.DirectoryQueueEntry) error {
	if _, exists := s.dirs[d.UUID]; exists {
		return errors.New("directory already exists")
	}

	s.dirs[d.UUID] = d
	s.dirQueue[q.Directory.UUID] = q

	return nil
}

func (s *fakeStore) UpsertDirectoryWithQueue(d model.Directory, q model.DirectoryQueueEntry) error {
	s.dirs[d.UUID] = d
	s.dirQueue[q.Directory.UUID] = q

	return nil
}

func (s *fakeStore) InsertFileWithQueue(f model.File, q model.FileQueueEntry) error {
	s.files[f.Origin] = f
	s.fileQueue[fileQueueKey(q)] = q

	return nil
}

func (s *fakeStore) DeleteFileWithTombstone(origin string, tombstone model.FileQueueEntry) error {
	delete(s.files, origin)
	s.fileQueue[fileQueueKey(tombstone)] = tombstone

	return nil
}

func (s *fakeStore) DeleteFolderWithTransaction(path string, dq model.DirectoryQueueEntry) error {
	for origin, f := range s.files {
		if underPath(f.Path, path) {
			delete(s.files, origin)
		}
	}

	for k, q := range s.fileQueue {
		if underPath(q.File.Path, path) {
			delete(s.fileQueue, k)
		}
	}

	for uuid, d := range s.dirs {
		if underPath(d.Path, path) {
			delete(s.dirs, uuid)
		}
	}

	for uuid, q := range s.dirQueue {
		if underPath(q.Directory.Path, path) {
			delete(s.dirQueue, uuid)
		}
	}

	s.dirQueue[dq.Directory.UUID] = dq

	return nil
}

func (s *fakeStore) MoveDirectory(syncRoot, newPath, oldPath string, dq model.DirectoryQueueEntry) error {
	s.rewriteSubtree(syncRoot, newPath, oldPath)

	for uuid, q := range s.fileQueue {
		if underPath(q.File.Path, oldPath) {
			delete(s.fileQueue, uuid)
		}
	}

	for uuid, q := range s.dirQueue {
		if underPath(q.Directory.Path, oldPath) {
			delete(s.dirQueue, uuid)
		}
	}

	s.dirQueue[dq.Directory.UUID] = dq

	return nil
}

func (s *fakeStore) MoveDirectoryQueue(syncRoot, newPath, oldPath string) error {
	s.rewriteSubtree(syncRoot, newPath, oldPath)
	return nil
}

// rewriteSubtree rewrites every Directory and File under oldPath in
// place, matching SQLiteStore.rewriteSubtreeTx.
func (s *fakeStore) rewriteSubtree(syncRoot, newPath, oldPath string) {
	for uuid, d := range s.dirs {
		if !underPath(d.Path, oldPath) {
			continue
		}

		d.Path = rewritePrefix(d.Path, oldPath, newPath)
		parts := model.GetFolderDevice(d.Path)
		d.Device = parts.Device
		d.Folder = parts.Folder
		d.AbsPath = filepath.Join(syncRoot, d.Path)
		s.dirs[uuid] = d
	}

	for origin, f := range s.files {
		if !underPath(f.Path, oldPath) {
			continue
		}

		f.Path = rewritePrefix(f.Path, oldPath, newPath)
		f.AbsPath = filepath.Join(syncRoot, f.Path, f.Filename)
		s.files[origin] = f
	}
}

func (s *fakeStore) CollapseRenamedDirectoryQueue(oldUUIDs, newUUIDs []string, survivor model.DirectoryQueueEntry) error {
	for _, id := range append(append([]string{}, oldUUIDs...), newUUIDs...) {
		delete(s.dirQueue, id)
	}

	s.dirQueue[survivor.Directory.UUID] = survivor
	s.movedOldIDs = append(s.movedOldIDs, oldUUIDs)
	s.movedNewIDs = append(s.movedNewIDs, newUUIDs)
	s.movedInto = append(s.movedInto, survivor)

	return nil
}

func (s *fakeStore) Close() error { return nil }
