package app

import (
	"context"

	"github.com/mira-labs/syncd/internal/model"
)

// fakeAPI is a hand-written stand-in for api.API, recording calls so
// tests can assert on what RunPeriodicReconcile drove through it.
type fakeAPI struct {
	metadata model.CloudMetadata

	downloaded []model.CloudFile
	uploaded   []model.FileQueueEntry
	deleted    []model.FileQueueEntry
	renamed    []model.FileQueueEntry
	foldersNew []model.Directory
	foldersDel []model.Directory
	foldersRen []model.DirectoryQueueEntry

	downloadContent string
	uploadErr       error
}

func (f *fakeAPI) GetMetadata(ctx context.Context) (model.CloudMetadata, error) {
	return f.metadata, nil
}

func (f *fakeAPI) Download(ctx context.Context, file model.CloudFile, localAbsPath string) error {
	f.downloaded = append(f.downloaded, file)
	return writeTestFile(localAbsPath, f.downloadContent)
}

func (f *fakeAPI) Upload(ctx context.Context, entry model.FileQueueEntry, pathIDs []string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}

	f.uploaded = append(f.uploaded, entry)

	return "new-id", nil
}

func (f *fakeAPI) Delete(ctx context.Context, entry model.FileQueueEntry) error {
	f.deleted = append(f.deleted, entry)
	return nil
}

func (f *fakeAPI) Rename(ctx context.Context, entry model.FileQueueEntry) error {
	f.renamed = append(f.renamed, entry)
	return nil
}

func (f *fakeAPI) CreateFolder(ctx context.Context, dir model.Directory) error {
	f.foldersNew = append(f.foldersNew, dir)
	return nil
}

func (f *fakeAPI) DeleteFolder(ctx context.Context, dir model.Directory) error {
	f.foldersDel = append(f.foldersDel, dir)
	return nil
}

func (f *fakeAPI) RenameFolder(ctx context.Context, entry model.DirectoryQueueEntry) error {
	f.foldersRen = append(f.foldersRen, entry)
	return nil
}
