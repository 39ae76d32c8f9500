package sqlite

import (
	"context"

	"github.com/lumenlib/lumen-server/internal/domain"
)

// CreateTag inserts a tag with its caller-supplied id.
func (s *Store) CreateTag(ctx context.Context, t *domain.Tag) (*domain.Tag, error) {
	n, err := s.createNode(ctx, tagTable, (*domain.Node)(t))
	if err != nil {
		return nil, err
	}
	return (*domain.Tag)(n), nil
}

// UpdateTag applies patch. Re-parenting that would form a cycle is rejected.
func (s *Store) UpdateTag(ctx context.Context, id domain.EntityID, patch domain.TagPatch) (bool, error) {
	return s.updateNode(ctx, tagTable, id, patch)
}

// GetTag returns one tag or a NotFound error.
func (s *Store) GetTag(ctx context.Context, id domain.EntityID) (*domain.Tag, error) {
	n, err := s.getNode(ctx, tagTable, id)
	if err != nil {
		return nil, err
	}
	return (*domain.Tag)(n), nil
}

// GetTags lists the children of parentID, or only root tags when it is nil.
func (s *Store) GetTags(ctx context.Context, parentID *domain.EntityID) ([]*domain.Tag, error) {
	nodes, err := s.listNodes(ctx, tagTable, parentID)
	if err != nil {
		return nil, err
	}
	return asTags(nodes), nil
}

// FindTagByName finds a tag by exact title under parentID.
func (s *Store) FindTagByName(ctx context.Context, name string, parentID *domain.EntityID) (*domain.Tag, error) {
	n, err := s.findNodeByName(ctx, tagTable, name, parentID)
	if err != nil {
		return nil, err
	}
	return (*domain.Tag)(n), nil
}

// ListAllTags returns every tag regardless of parent.
func (s *Store) ListAllTags(ctx context.Context) ([]*domain.Tag, error) {
	nodes, err := s.listAllNodes(ctx, tagTable)
	if err != nil {
		return nil, err
	}
	return asTags(nodes), nil
}

// DeleteTag removes the tag and its descendants and strips their ids from every file.
func (s *Store) DeleteTag(ctx context.Context, id domain.EntityID) ([]domain.EntityID, error) {
	return s.deleteNode(ctx, tagTable, id)
}

func asTags(nodes []*domain.Node) []*domain.Tag {
	out := make([]*domain.Tag, len(nodes))
	for i, n := range nodes {
		out[i] = (*domain.Tag)(n)
	}
	return out
}
