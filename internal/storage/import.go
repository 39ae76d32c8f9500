package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
)

// CreateFileFromPath imports the file at src and catalogs it.
//
// Size and creation time come from the source; the hash is computed when the library
// enables hashing. Non-zero fields of overrides replace the gathered values. The
// physical step follows opts.ImportType, with opts.Folder choosing the destination
// directory for copy and move. When the catalog insert fails the physical step is undone.
func (c *Coordinator) CreateFileFromPath(ctx context.Context, src string, overrides *domain.FileInput, opts domain.ImportOptions) (*domain.File, error) {
	importType := opts.ImportType
	if importType == "" {
		importType = domain.ImportLink
	}
	if !importType.Valid() {
		return nil, errors.Validationf("unknown import type %q", opts.ImportType)
	}

	src, err := filepath.Abs(src)
	if err != nil {
		return nil, errors.Filesystemf(err, "resolve %s", src)
	}
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Validationf("source file %s does not exist", src)
		}
		return nil, errors.Filesystemf(err, "stat %s", src)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Validationf("source %s is not a regular file", src)
	}

	in := &domain.FileInput{
		Name:       info.Name(),
		CreatedAt:  creationTime(src, info),
		ImportedAt: c.now().UnixMilli(),
		Size:       info.Size(),
	}
	if c.opts.HashEnabled {
		sum, err := hashFile(src)
		if err != nil {
			return nil, err
		}
		in.Hash = &sum
	}
	mergeInput(in, overrides)

	name := cleanComponent(filepath.Base(in.Name))
	if name == "" {
		name = info.Name()
	}

	var undo func()
	switch importType {
	case domain.ImportLink:
		in.Path = src

	case domain.ImportCopy, domain.ImportMove:
		dir, err := c.folderDir(ctx, opts.Folder)
		if err != nil {
			return nil, err
		}
		dst, err := c.place(src, dir, name, importType == domain.ImportMove)
		if err != nil {
			return nil, err
		}
		in.Path = dst
		if importType == domain.ImportCopy {
			undo = func() { c.removeQuietly(dst) }
		} else {
			undo = func() {
				if err := moveFile(dst, src); err != nil {
					c.logger.Warn("failed to restore moved file", "from", dst, "to", src, "error", err)
				}
			}
		}
	}

	f, err := c.catalog.CreateFile(ctx, in)
	if err != nil {
		if undo != nil {
			undo()
		}
		return nil, err
	}

	c.logger.Debug("file imported",
		"library_id", c.opts.LibraryID,
		"file_id", f.ID,
		"import_type", string(importType),
		"path", f.Path,
	)
	return f, nil
}

// Relocate moves a file into folderID's directory and updates its folder and path.
// Files outside the library root (linked imports) only change folder.
func (c *Coordinator) Relocate(ctx context.Context, f *domain.File, folderID *domain.EntityID) (*domain.File, error) {
	patch := domain.FilePatch{FolderID: domain.Null[domain.EntityID]()}
	if folderID != nil && !folderID.IsZero() {
		patch.FolderID = domain.Some(*folderID)
	}

	var undo func()
	if c.owns(f.Path) {
		dir, err := c.folderDir(ctx, folderID)
		if err != nil {
			return nil, err
		}
		if filepath.Dir(f.Path) != dir {
			src := f.Path
			dst, err := c.place(src, dir, filepath.Base(src), true)
			if err != nil {
				return nil, err
			}
			patch.Path = &dst
			undo = func() {
				if err := moveFile(dst, src); err != nil {
					c.logger.Warn("failed to restore relocated file", "from", dst, "to", src, "error", err)
				}
			}
		}
	}

	ok, err := c.catalog.UpdateFile(ctx, f.ID, patch)
	if err == nil && !ok {
		err = errors.NotFoundf("file %d not found", f.ID)
	}
	if err != nil {
		if undo != nil {
			undo()
		}
		return nil, err
	}

	return c.catalog.GetFile(ctx, f.ID)
}

// Duplicate copies a file's data into folderID's directory and catalogs the copy.
func (c *Coordinator) Duplicate(ctx context.Context, f *domain.File, folderID *domain.EntityID) (*domain.File, error) {
	dir, err := c.folderDir(ctx, folderID)
	if err != nil {
		return nil, err
	}
	dst, err := c.place(f.Path, dir, f.Name, false)
	if err != nil {
		return nil, err
	}

	in := &domain.FileInput{
		Name:         filepath.Base(dst),
		CreatedAt:    f.CreatedAt,
		ImportedAt:   c.now().UnixMilli(),
		Size:         f.Size,
		Hash:         f.Hash,
		CustomFields: f.CustomFields,
		Notes:        f.Notes,
		Stars:        f.Stars,
		FolderID:     domain.IDPtr(derefID(folderID)),
		Reference:    f.Reference,
		Path:         dst,
		Tags:         f.Tags,
	}

	copied, err := c.catalog.CreateFile(ctx, in)
	if err != nil {
		c.removeQuietly(dst)
		return nil, err
	}
	return copied, nil
}

// RemoveFileData deletes the library-owned data and thumbnail of a hard-deleted file.
// Failures are logged; linked files outside the root are left alone. A hash-keyed
// thumbnail is kept while another row still carries the same hash.
func (c *Coordinator) RemoveFileData(ctx context.Context, f *domain.File) {
	if c.owns(f.Path) {
		c.removeQuietly(f.Path)
	}
	if f.Hash != nil && *f.Hash != "" {
		n, err := c.catalog.CountFilesByHash(ctx, *f.Hash)
		if err != nil {
			c.logger.Warn("failed to check shared thumbnail", "library_id", c.opts.LibraryID, "file_id", f.ID, "error", err)
			return
		}
		if n > 0 {
			return
		}
	}
	c.removeQuietly(c.ItemThumbPath(f, domain.PathOptions{}))
}

// place copies or moves src into dir under a free name and returns the destination.
func (c *Coordinator) place(src, dir, name string, move bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Filesystemf(err, "create directory %s", dir)
	}
	dst, err := uniqueDest(dir, name)
	if err != nil {
		return "", err
	}

	if move {
		err = moveFile(src, dst)
	} else {
		err = copyFile(src, dst)
	}
	if err != nil {
		return "", errors.Filesystemf(err, "import %s", src)
	}
	return dst, nil
}

func (c *Coordinator) removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove file data", "library_id", c.opts.LibraryID, "path", path, "error", err)
	}
}

// mergeInput copies the non-zero fields of over onto in. Path is never taken from over.
func mergeInput(in, over *domain.FileInput) {
	if over == nil {
		return
	}
	if over.Name != "" {
		in.Name = over.Name
	}
	if over.CreatedAt != 0 {
		in.CreatedAt = over.CreatedAt
	}
	if over.ImportedAt != 0 {
		in.ImportedAt = over.ImportedAt
	}
	if over.Size != 0 {
		in.Size = over.Size
	}
	if over.Hash != nil {
		in.Hash = over.Hash
	}
	if over.CustomFields != nil {
		in.CustomFields = over.CustomFields
	}
	if over.Notes != "" {
		in.Notes = over.Notes
	}
	if over.Stars != 0 {
		in.Stars = over.Stars
	}
	if over.FolderID != nil {
		in.FolderID = over.FolderID
	}
	if over.Reference != nil {
		in.Reference = over.Reference
	}
	in.Thumb = in.Thumb || over.Thumb
	in.Recycled = in.Recycled || over.Recycled
	if over.Tags != nil {
		in.Tags = over.Tags
	}
}

func derefID(id *domain.EntityID) domain.EntityID {
	if id == nil {
		return ""
	}
	return *id
}
