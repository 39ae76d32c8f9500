package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
)

// fileColumns is the ordered list of columns selected in file queries.
// Must match the scan order in scanFile.
const fileColumns = `id, name, created_at, imported_at, size, hash, custom_fields, notes,
	stars, folder_id, reference, path, thumb, recycled, tags`

func scanFile(scanner interface{ Scan(dest ...any) error }) (*domain.File, error) {
	var (
		f            domain.File
		hash         sql.NullString
		customFields string
		folderID     sql.NullString
		reference    sql.NullString
		thumb        int
		recycled     int
		tags         string
	)

	err := scanner.Scan(
		&f.ID,
		&f.Name,
		&f.CreatedAt,
		&f.ImportedAt,
		&f.Size,
		&hash,
		&customFields,
		&f.Notes,
		&f.Stars,
		&folderID,
		&reference,
		&f.Path,
		&thumb,
		&recycled,
		&tags,
	)
	if err != nil {
		return nil, err
	}

	f.Hash = stringFromNull(hash)
	f.CustomFields = decodeObject(customFields)
	f.FolderID = idFromNull(folderID)
	f.Reference = stringFromNull(reference)
	f.Thumb = thumb != 0
	f.Recycled = recycled != 0
	f.Tags = decodeTags(tags)

	return &f, nil
}

// CreateFile inserts a file row and returns it with its assigned id.
func (s *Store) CreateFile(ctx context.Context, in *domain.FileInput) (*domain.File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if in == nil || strings.TrimSpace(in.Name) == "" {
		return nil, errors.Validation("file name is required")
	}
	if in.Stars < 0 {
		return nil, errors.Validation("stars cannot be negative")
	}

	customFields, err := encodeObject(in.CustomFields)
	if err != nil {
		return nil, err
	}

	res, err := s.exec(ctx, `
		INSERT INTO files (name, created_at, imported_at, size, hash, custom_fields, notes,
			stars, folder_id, reference, path, thumb, recycled, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name,
		in.CreatedAt,
		in.ImportedAt,
		in.Size,
		nullableString(in.Hash),
		customFields,
		in.Notes,
		in.Stars,
		nullableID(in.FolderID),
		nullableString(in.Reference),
		in.Path,
		boolInt(in.Thumb),
		boolInt(in.Recycled),
		encodeTags(in.Tags),
	)
	if err != nil {
		return nil, translate(err, "insert file")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Storage(err, "read inserted file id")
	}

	return s.GetFile(ctx, id)
}

// UpdateFile writes only the fields present in patch.
// An empty patch returns false without touching the database.
func (s *Store) UpdateFile(ctx context.Context, id int64, patch domain.FilePatch) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	if patch.IsEmpty() {
		return false, nil
	}

	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return false, errors.Validation("file name cannot be empty")
		}
		set("name", *patch.Name)
	}
	if patch.CreatedAt != nil {
		set("created_at", *patch.CreatedAt)
	}
	if patch.ImportedAt != nil {
		set("imported_at", *patch.ImportedAt)
	}
	if patch.Size != nil {
		set("size", *patch.Size)
	}
	if patch.Hash.Set {
		set("hash", nullableString(patch.Hash.Ptr()))
	}
	if patch.CustomFields != nil {
		encoded, err := encodeObject(patch.CustomFields)
		if err != nil {
			return false, err
		}
		set("custom_fields", encoded)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.Stars != nil {
		if *patch.Stars < 0 {
			return false, errors.Validation("stars cannot be negative")
		}
		set("stars", *patch.Stars)
	}
	if patch.FolderID.Set {
		set("folder_id", nullableID(patch.FolderID.Ptr()))
	}
	if patch.Reference.Set {
		set("reference", nullableString(patch.Reference.Ptr()))
	}
	if patch.Path != nil {
		set("path", *patch.Path)
	}
	if patch.Thumb != nil {
		set("thumb", boolInt(*patch.Thumb))
	}
	if patch.Recycled != nil {
		set("recycled", boolInt(*patch.Recycled))
	}
	if patch.Tags != nil {
		set("tags", encodeTags(patch.Tags))
	}

	args = append(args, id)
	res, err := s.exec(ctx, `UPDATE files SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return false, translate(err, "update file")
	}
	return affected(res)
}

// DeleteFile flags the file as recycled, or removes the row when
// MoveToRecycleBin is false.
func (s *Store) DeleteFile(ctx context.Context, id int64, opts domain.DeleteOptions) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}

	query := `DELETE FROM files WHERE id = ?`
	if opts.MoveToRecycleBin {
		query = `UPDATE files SET recycled = 1 WHERE id = ?`
	}

	res, err := s.exec(ctx, query, id)
	if err != nil {
		return false, translate(err, "delete file")
	}
	return affected(res)
}

// RecoverFile clears the recycled flag.
func (s *Store) RecoverFile(ctx context.Context, id int64) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}

	res, err := s.exec(ctx, `UPDATE files SET recycled = 0 WHERE id = ?`, id)
	if err != nil {
		return false, translate(err, "recover file")
	}
	return affected(res)
}

// SetFileTags replaces the file's tag array.
func (s *Store) SetFileTags(ctx context.Context, id int64, tags []domain.EntityID) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}

	res, err := s.exec(ctx, `UPDATE files SET tags = ? WHERE id = ?`, encodeTags(tags), id)
	if err != nil {
		return false, translate(err, "set file tags")
	}
	return affected(res)
}

// GetFile returns one file, recycled or not.
// Returns a NotFound error when the row does not exist.
func (s *Store) GetFile(ctx context.Context, id int64) (*domain.File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	f, err := scanFile(s.queryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundf("file %d not found", id)
	}
	if err != nil {
		return nil, translate(err, "get file")
	}
	return f, nil
}

// CountFilesByHash returns how many rows, recycled included, carry the content hash.
func (s *Store) CountFilesByHash(ctx context.Context, hash string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM files WHERE hash = ?`, hash).Scan(&n); err != nil {
		return 0, translate(err, "count files by hash")
	}
	return n, nil
}
