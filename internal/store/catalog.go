// Package store defines the catalog persistence contract for one library.
package store

import (
	"context"

	"github.com/lumenlib/lumen-server/internal/domain"
)

// Files persists cataloged files.
type Files interface {
	CreateFile(ctx context.Context, in *domain.FileInput) (*domain.File, error)
	UpdateFile(ctx context.Context, id int64, patch domain.FilePatch) (bool, error)
	DeleteFile(ctx context.Context, id int64, opts domain.DeleteOptions) (bool, error)
	RecoverFile(ctx context.Context, id int64) (bool, error)
	SetFileTags(ctx context.Context, id int64, tags []domain.EntityID) (bool, error)
	GetFile(ctx context.Context, id int64) (*domain.File, error)
	GetFiles(ctx context.Context, filter domain.FileFilter) (*domain.FileList, error)
	CountFilesByHash(ctx context.Context, hash string) (int, error)
}

// Folders persists the folder tree.
type Folders interface {
	CreateFolder(ctx context.Context, f *domain.Folder) (*domain.Folder, error)
	UpdateFolder(ctx context.Context, id domain.EntityID, patch domain.FolderPatch) (bool, error)
	GetFolder(ctx context.Context, id domain.EntityID) (*domain.Folder, error)
	GetFolders(ctx context.Context, parentID *domain.EntityID) ([]*domain.Folder, error)
	FindFolderByName(ctx context.Context, name string, parentID *domain.EntityID) (*domain.Folder, error)
	ListAllFolders(ctx context.Context) ([]*domain.Folder, error)
	// DeleteFolder removes the folder subtree and returns the deleted ids.
	DeleteFolder(ctx context.Context, id domain.EntityID) ([]domain.EntityID, error)
}

// Tags persists the tag tree.
type Tags interface {
	CreateTag(ctx context.Context, t *domain.Tag) (*domain.Tag, error)
	UpdateTag(ctx context.Context, id domain.EntityID, patch domain.TagPatch) (bool, error)
	GetTag(ctx context.Context, id domain.EntityID) (*domain.Tag, error)
	GetTags(ctx context.Context, parentID *domain.EntityID) ([]*domain.Tag, error)
	FindTagByName(ctx context.Context, name string, parentID *domain.EntityID) (*domain.Tag, error)
	ListAllTags(ctx context.Context) ([]*domain.Tag, error)
	// DeleteTag removes the tag subtree, strips it from files and returns the deleted ids.
	DeleteTag(ctx context.Context, id domain.EntityID) ([]domain.EntityID, error)
}

// Catalog is the full persistence surface a library session works against.
type Catalog interface {
	Files
	Folders
	Tags

	// InTx runs fn in one transaction. Calls nested through the ctx passed to fn
	// run inside a savepoint of the outer transaction.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	Close() error
}
