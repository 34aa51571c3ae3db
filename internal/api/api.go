// Package api is the external boundary the reconciler and periodic
// sync loop use to reach the cloud: metadata, downloads, uploads, and
// the delete/rename/create-folder operations queued locally.
package api

import (
	"context"

	"github.com/mira-labs/syncd/internal/model"
)

// API is the capability the reconciler and main loop consume; no core
// behaviour depends on which implementation backs it.
type API interface {
	GetMetadata(ctx context.Context) (model.CloudMetadata, error)
	Download(ctx context.Context, file model.CloudFile, localAbsPath string) error
	Upload(ctx context.Context, entry model.FileQueueEntry, pathIDs []string) (string, error)
	Delete(ctx context.Context, entry model.FileQueueEntry) error
	Rename(ctx context.Context, entry model.FileQueueEntry) error
	CreateFolder(ctx context.Context, dir model.Directory) error
	DeleteFolder(ctx context.Context, dir model.Directory) error
	RenameFolder(ctx context.Context, entry model.DirectoryQueueEntry) error
}
