package sqlite

import (
	"context"

	"github.com/lumenlib/lumen-server/internal/domain"
)

// CreateFolder inserts a folder with its caller-supplied id.
func (s *Store) CreateFolder(ctx context.Context, f *domain.Folder) (*domain.Folder, error) {
	n, err := s.createNode(ctx, folderTable, (*domain.Node)(f))
	if err != nil {
		return nil, err
	}
	return (*domain.Folder)(n), nil
}

// UpdateFolder applies patch. Re-parenting that would form a cycle is rejected.
func (s *Store) UpdateFolder(ctx context.Context, id domain.EntityID, patch domain.FolderPatch) (bool, error) {
	return s.updateNode(ctx, folderTable, id, patch)
}

// GetFolder returns one folder or a NotFound error.
func (s *Store) GetFolder(ctx context.Context, id domain.EntityID) (*domain.Folder, error) {
	n, err := s.getNode(ctx, folderTable, id)
	if err != nil {
		return nil, err
	}
	return (*domain.Folder)(n), nil
}

// GetFolders lists the children of parentID, or only root folders when it is nil.
func (s *Store) GetFolders(ctx context.Context, parentID *domain.EntityID) ([]*domain.Folder, error) {
	nodes, err := s.listNodes(ctx, folderTable, parentID)
	if err != nil {
		return nil, err
	}
	return asFolders(nodes), nil
}

// FindFolderByName finds a folder by exact title under parentID.
func (s *Store) FindFolderByName(ctx context.Context, name string, parentID *domain.EntityID) (*domain.Folder, error) {
	n, err := s.findNodeByName(ctx, folderTable, name, parentID)
	if err != nil {
		return nil, err
	}
	return (*domain.Folder)(n), nil
}

// ListAllFolders returns every folder regardless of parent.
func (s *Store) ListAllFolders(ctx context.Context) ([]*domain.Folder, error) {
	nodes, err := s.listAllNodes(ctx, folderTable)
	if err != nil {
		return nil, err
	}
	return asFolders(nodes), nil
}

// DeleteFolder removes the folder and its descendants and clears folder_id on their files.
// Either the whole subtree goes or nothing changes.
func (s *Store) DeleteFolder(ctx context.Context, id domain.EntityID) ([]domain.EntityID, error) {
	return s.deleteNode(ctx, folderTable, id)
}

func asFolders(nodes []*domain.Node) []*domain.Folder {
	out := make([]*domain.Folder, len(nodes))
	for i, n := range nodes {
		out[i] = (*domain.Folder)(n)
	}
	return out
}
