package library

import (
	"context"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/eventbus"
	"github.com/lumenlib/lumen-server/internal/plugin"
)

// CreateFile inserts a catalog record and publishes file::created.
func (s *Session) CreateFile(ctx context.Context, in *domain.FileInput) (*domain.File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	f, err := s.store.CreateFile(ctx, in)
	if err != nil {
		return nil, err
	}
	s.bus.Broadcast(ctx, eventbus.FileCreated, f)
	return f, nil
}

// ImportFile brings src into the library and publishes file::created.
func (s *Session) ImportFile(ctx context.Context, src string, overrides *domain.FileInput, opts domain.ImportOptions) (*domain.File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	f, err := s.fs.CreateFileFromPath(ctx, src, overrides, opts)
	if err != nil {
		return nil, err
	}
	s.bus.Broadcast(ctx, eventbus.FileCreated, f)
	return f, nil
}

// UpdateFile applies patch and publishes file::updated with the stored record.
// Returns false when nothing changed.
func (s *Session) UpdateFile(ctx context.Context, id int64, patch domain.FilePatch) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	ok, err := s.store.UpdateFile(ctx, id, patch)
	if err != nil || !ok {
		return ok, err
	}
	f, err := s.store.GetFile(ctx, id)
	if err != nil {
		return true, err
	}
	s.bus.Broadcast(ctx, eventbus.FileUpdated, f)
	return true, nil
}

// DeleteFile soft- or hard-deletes a file. A hard delete also removes the
// library-owned data and thumbnail; failures there are logged only.
func (s *Session) DeleteFile(ctx context.Context, id int64, opts domain.DeleteOptions) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	f, err := s.store.GetFile(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	ok, err := s.store.DeleteFile(ctx, id, opts)
	if err != nil || !ok {
		return ok, err
	}
	if !opts.MoveToRecycleBin {
		s.fs.RemoveFileData(ctx, f)
	}
	s.bus.Broadcast(ctx, eventbus.FileDeleted, eventbus.FileDeletedData{
		ID:               id,
		Path:             f.Path,
		MoveToRecycleBin: opts.MoveToRecycleBin,
	})
	return true, nil
}

// RecoverFile takes a file out of the recycle bin and publishes file::recovered.
func (s *Session) RecoverFile(ctx context.Context, id int64) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	ok, err := s.store.RecoverFile(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	f, err := s.store.GetFile(ctx, id)
	if err != nil {
		return true, err
	}
	s.bus.Broadcast(ctx, eventbus.FileRecovered, f)
	return true, nil
}

// SetFileTags replaces a file's tags and publishes file::setTag.
func (s *Session) SetFileTags(ctx context.Context, id int64, tags []domain.EntityID) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	if tags == nil {
		tags = []domain.EntityID{}
	}
	ok, err := s.store.SetFileTags(ctx, id, tags)
	if err != nil || !ok {
		return ok, err
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = string(t)
	}
	s.bus.Broadcast(ctx, eventbus.FileSetTag, eventbus.FileSetTagData{ID: id, Tags: names})
	return true, nil
}

// MoveFile puts a file into another folder, moving library-owned data with it.
func (s *Session) MoveFile(ctx context.Context, id int64, folderID *domain.EntityID) (*domain.File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	f, err := s.store.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	moved, err := s.fs.Relocate(ctx, f, folderID)
	if err != nil {
		return nil, err
	}
	s.bus.Broadcast(ctx, eventbus.FileUpdated, moved)
	return moved, nil
}

// CopyFile duplicates a file's data into a folder as a new record.
func (s *Session) CopyFile(ctx context.Context, id int64, folderID *domain.EntityID) (*domain.File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	f, err := s.store.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	dup, err := s.fs.Duplicate(ctx, f, folderID)
	if err != nil {
		return nil, err
	}
	s.bus.Broadcast(ctx, eventbus.FileCreated, dup)
	return dup, nil
}

// GetFile returns one file or NotFound.
func (s *Session) GetFile(ctx context.Context, id int64) (*domain.File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.GetFile(ctx, id)
}

// GetFiles runs a filtered query.
func (s *Session) GetFiles(ctx context.Context, filter domain.FileFilter) (*domain.FileList, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.GetFiles(ctx, filter)
}

// ItemPath is the directory a file belongs in.
func (s *Session) ItemPath(ctx context.Context, f *domain.File) (string, error) {
	return s.fs.ItemPath(ctx, f)
}

// ItemFilePath is a file's data path or public URL.
func (s *Session) ItemFilePath(ctx context.Context, f *domain.File, opts domain.PathOptions) (string, error) {
	return s.fs.ItemFilePath(ctx, f, opts)
}

// ItemThumbPath is a file's thumbnail path or public URL.
func (s *Session) ItemThumbPath(f *domain.File, opts domain.PathOptions) string {
	return s.fs.ItemThumbPath(f, opts)
}

// Search queries the search plugin's index.
func (s *Session) Search(ctx context.Context, query string, limit int) ([]plugin.SearchHit, uint64, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	p, err := s.plugins.Get("search")
	if err != nil {
		return nil, 0, errors.NotFound("search plugin is not loaded")
	}
	searcher, ok := p.(plugin.Searcher)
	if !ok {
		return nil, 0, errors.Internalf("plugin %s does not answer queries", p.Name())
	}
	return searcher.Search(ctx, query, limit)
}
