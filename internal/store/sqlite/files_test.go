package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
)

func strPtr(s string) *string { return &s }

func idPtr(s string) *domain.EntityID {
	id := domain.EntityID(s)
	return &id
}

func makeTestFile(name string) *domain.FileInput {
	return &domain.FileInput{
		Name:       name,
		CreatedAt:  1_700_000_000_000,
		ImportedAt: 1_700_000_100_000,
		Size:       2048,
		Path:       "/lib/uncategorized/" + name,
	}
}

func TestCreateAndGetFile_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateFolder(ctx, &domain.Folder{ID: "10", Title: "Photos"})
	require.NoError(t, err)

	in := &domain.FileInput{
		Name:         "a.jpg",
		CreatedAt:    1_700_000_000_000,
		ImportedAt:   1_700_000_000_500,
		Size:         12345,
		Hash:         strPtr("abc123"),
		CustomFields: map[string]any{"camera": "X100", "iso": float64(200)},
		Notes:        "sunset",
		Stars:        3,
		FolderID:     idPtr("10"),
		Reference:    strPtr("https://example.com/a"),
		Path:         "/lib/Photos/a.jpg",
		Thumb:        true,
		Tags:         []domain.EntityID{"1", "2"},
	}

	created, err := s.CreateFile(ctx, in)
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := s.GetFile(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, in.Name, got.Name)
	assert.Equal(t, in.CreatedAt, got.CreatedAt)
	assert.Equal(t, in.ImportedAt, got.ImportedAt)
	assert.Equal(t, in.Size, got.Size)
	assert.Equal(t, in.Hash, got.Hash)
	assert.Equal(t, in.CustomFields, got.CustomFields)
	assert.Equal(t, in.Notes, got.Notes)
	assert.Equal(t, in.Stars, got.Stars)
	assert.Equal(t, in.FolderID, got.FolderID)
	assert.Equal(t, in.Reference, got.Reference)
	assert.Equal(t, in.Path, got.Path)
	assert.True(t, got.Thumb)
	assert.False(t, got.Recycled)
	assert.Equal(t, in.Tags, got.Tags)
}

func TestCreateFile_Defaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f, err := s.CreateFile(ctx, &domain.FileInput{Name: "bare.png"})
	require.NoError(t, err)

	assert.Equal(t, 0, f.Stars)
	assert.False(t, f.Thumb)
	assert.False(t, f.Recycled)
	assert.Nil(t, f.Hash)
	assert.Nil(t, f.FolderID)
	assert.Equal(t, []domain.EntityID{}, f.Tags)
	assert.Equal(t, map[string]any{}, f.CustomFields)
}

func TestCreateFile_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateFile(ctx, &domain.FileInput{Name: "  "})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = s.CreateFile(ctx, &domain.FileInput{Name: "x", FolderID: idPtr("missing")})
	assert.True(t, errors.Is(err, errors.ErrValidation), "missing folder should be a validation error, got %v", err)
}

func TestUpdateFile_Partial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateFile(ctx, makeTestFile("a.jpg"))
	require.NoError(t, err)

	stars := 5
	ok, err := s.UpdateFile(ctx, created.ID, domain.FilePatch{Stars: &stars})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetFile(ctx, created.ID)
	require.NoError(t, err)

	want := *created
	want.Stars = 5
	assert.Equal(t, &want, got)
}

func TestUpdateFile_EmptyPatchIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateFile(ctx, makeTestFile("a.jpg"))
	require.NoError(t, err)

	ok, err := s.UpdateFile(ctx, created.ID, domain.FilePatch{})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetFile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestUpdateFile_NullableFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateFolder(ctx, &domain.Folder{ID: "10", Title: "Photos"})
	require.NoError(t, err)

	in := makeTestFile("a.jpg")
	in.FolderID = idPtr("10")
	in.Reference = strPtr("https://example.com")
	created, err := s.CreateFile(ctx, in)
	require.NoError(t, err)

	ok, err := s.UpdateFile(ctx, created.ID, domain.FilePatch{
		FolderID:  domain.Null[domain.EntityID](),
		Reference: domain.Null[string](),
		Tags:      []domain.EntityID{"7"},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetFile(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got.FolderID)
	assert.Nil(t, got.Reference)
	assert.Equal(t, []domain.EntityID{"7"}, got.Tags)
}

func TestUpdateFile_MissingRow(t *testing.T) {
	s := newTestStore(t)
	notes := "x"

	ok, err := s.UpdateFile(context.Background(), 999, domain.FilePatch{Notes: &notes})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteFile_SoftThenRecover(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateFile(ctx, makeTestFile("a.jpg"))
	require.NoError(t, err)

	ok, err := s.DeleteFile(ctx, created.ID, domain.DeleteOptions{MoveToRecycleBin: true})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetFile(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Recycled)

	list, err := s.GetFiles(ctx, domain.FileFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Total, "recycled files are hidden by default")

	ok, err = s.RecoverFile(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = s.GetFile(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.Recycled)
}

func TestDeleteFile_Hard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateFile(ctx, makeTestFile("a.jpg"))
	require.NoError(t, err)

	ok, err := s.DeleteFile(ctx, created.ID, domain.DeleteOptions{})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.GetFile(ctx, created.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	ok, err = s.DeleteFile(ctx, created.ID, domain.DeleteOptions{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetFileTags_Dedupes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateFile(ctx, makeTestFile("a.jpg"))
	require.NoError(t, err)

	ok, err := s.SetFileTags(ctx, created.ID, []domain.EntityID{"3", "1", "3"})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetFile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.EntityID{"3", "1"}, got.Tags)
}

func TestGetFile_MalformedTagsYieldEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateFile(ctx, makeTestFile("a.jpg"))
	require.NoError(t, err)

	_, err = s.db.Exec(`UPDATE files SET tags = '{broken', custom_fields = 'nope' WHERE id = ?`, created.ID)
	require.NoError(t, err)

	got, err := s.GetFile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.EntityID{}, got.Tags)
	assert.Equal(t, map[string]any{}, got.CustomFields)

	// Malformed rows must not break tag-filtered listing either.
	list, err := s.GetFiles(ctx, domain.FileFilter{Tags: []domain.EntityID{"1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Total)
}
