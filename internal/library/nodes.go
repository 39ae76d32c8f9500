package library

import (
	"context"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/eventbus"
)

// CreateFolder inserts a folder and publishes folder::created.
func (s *Session) CreateFolder(ctx context.Context, f *domain.Folder) (*domain.Folder, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	created, err := s.store.CreateFolder(ctx, f)
	if err != nil {
		return nil, err
	}
	s.bus.Broadcast(ctx, eventbus.FolderCreated, created)
	return created, nil
}

// UpdateFolder patches a folder and publishes folder::updated.
func (s *Session) UpdateFolder(ctx context.Context, id domain.EntityID, patch domain.FolderPatch) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	ok, err := s.store.UpdateFolder(ctx, id, patch)
	if err != nil || !ok {
		return ok, err
	}
	f, err := s.store.GetFolder(ctx, id)
	if err != nil {
		return true, err
	}
	s.bus.Broadcast(ctx, eventbus.FolderUpdated, f)
	return true, nil
}

// DeleteFolder removes a folder subtree and publishes folder::deleted with every removed id.
func (s *Session) DeleteFolder(ctx context.Context, id domain.EntityID) ([]domain.EntityID, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	deleted, err := s.store.DeleteFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(deleted) > 0 {
		s.bus.Broadcast(ctx, eventbus.FolderDeleted, nodesDeleted(id, deleted))
	}
	return deleted, nil
}

// GetFolder returns one folder or NotFound.
func (s *Session) GetFolder(ctx context.Context, id domain.EntityID) (*domain.Folder, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.GetFolder(ctx, id)
}

// GetFolders lists the children of parentID, or the roots when nil.
func (s *Session) GetFolders(ctx context.Context, parentID *domain.EntityID) ([]*domain.Folder, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.GetFolders(ctx, parentID)
}

// FindFolderByName finds a folder by title under parentID.
func (s *Session) FindFolderByName(ctx context.Context, name string, parentID *domain.EntityID) (*domain.Folder, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.FindFolderByName(ctx, name, parentID)
}

// CreateTag inserts a tag and publishes tag::created.
func (s *Session) CreateTag(ctx context.Context, t *domain.Tag) (*domain.Tag, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	created, err := s.store.CreateTag(ctx, t)
	if err != nil {
		return nil, err
	}
	s.bus.Broadcast(ctx, eventbus.TagCreated, created)
	return created, nil
}

// UpdateTag patches a tag and publishes tag::updated.
func (s *Session) UpdateTag(ctx context.Context, id domain.EntityID, patch domain.TagPatch) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	ok, err := s.store.UpdateTag(ctx, id, patch)
	if err != nil || !ok {
		return ok, err
	}
	t, err := s.store.GetTag(ctx, id)
	if err != nil {
		return true, err
	}
	s.bus.Broadcast(ctx, eventbus.TagUpdated, t)
	return true, nil
}

// DeleteTag removes a tag subtree, strips it from files and publishes tag::deleted.
func (s *Session) DeleteTag(ctx context.Context, id domain.EntityID) ([]domain.EntityID, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	deleted, err := s.store.DeleteTag(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(deleted) > 0 {
		s.bus.Broadcast(ctx, eventbus.TagDeleted, nodesDeleted(id, deleted))
	}
	return deleted, nil
}

// GetTag returns one tag or NotFound.
func (s *Session) GetTag(ctx context.Context, id domain.EntityID) (*domain.Tag, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.GetTag(ctx, id)
}

// GetTags lists the children of parentID, or the roots when nil.
func (s *Session) GetTags(ctx context.Context, parentID *domain.EntityID) ([]*domain.Tag, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.GetTags(ctx, parentID)
}

// FindTagByName finds a tag by title under parentID.
func (s *Session) FindTagByName(ctx context.Context, name string, parentID *domain.EntityID) (*domain.Tag, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.FindTagByName(ctx, name, parentID)
}

func nodesDeleted(id domain.EntityID, deleted []domain.EntityID) eventbus.NodesDeletedData {
	ids := make([]string, len(deleted))
	for i, d := range deleted {
		ids[i] = string(d)
	}
	return eventbus.NodesDeletedData{ID: string(id), Deleted: ids}
}
