package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/logger"
	"github.com/lumenlib/lumen-server/internal/store/sqlite"
)

func setupCoordinator(t *testing.T, opts Options) (*Coordinator, *sqlite.Store) {
	t.Helper()
	root := t.TempDir()
	s, err := sqlite.Open(filepath.Join(root, sqlite.DatabaseFile), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	opts.Root = root
	if opts.LibraryID == "" {
		opts.LibraryID = "lib1"
	}
	c, err := New(s, opts, logger.Discard())
	require.NoError(t, err)
	return c, s
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func idPtr(s string) *domain.EntityID {
	id := domain.EntityID(s)
	return &id
}

func TestItemPath(t *testing.T) {
	c, s := setupCoordinator(t, Options{})
	ctx := context.Background()

	_, err := s.CreateFolder(ctx, &domain.Folder{ID: "10", Title: "Trips/2024"})
	require.NoError(t, err)
	_, err = s.CreateFolder(ctx, &domain.Folder{ID: "11", Title: "Cafe\u0301"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		folder *domain.EntityID
		want   string
	}{
		{"no folder", nil, UncategorizedDir},
		{"zero folder", idPtr("0"), UncategorizedDir},
		{"missing folder", idPtr("404"), UncategorizedDir},
		{"separator replaced", idPtr("10"), "Trips_2024"},
		{"nfc normalized", idPtr("11"), "Caf\u00e9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ItemPath(ctx, &domain.File{FolderID: tt.folder})
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(c.Root(), tt.want), got)
		})
	}
}

func TestItemFilePathAndThumbPath(t *testing.T) {
	ctx := context.Background()
	hash := "abcd"

	t.Run("filesystem paths", func(t *testing.T) {
		c, _ := setupCoordinator(t, Options{})
		f := &domain.File{ID: 7, Name: "a.jpg", Path: "/data/a.jpg"}

		got, err := c.ItemFilePath(ctx, f, domain.PathOptions{AsPublicURL: true})
		require.NoError(t, err)
		assert.Equal(t, "/data/a.jpg", got, "no public URL configured")

		assert.Equal(t, filepath.Join(c.Root(), ThumbsDir, "7.jpg"), c.ItemThumbPath(f, domain.PathOptions{}))
		f.Hash = &hash
		assert.Equal(t, filepath.Join(c.Root(), ThumbsDir, "abcd.jpg"), c.ItemThumbPath(f, domain.PathOptions{}))
	})

	t.Run("public urls", func(t *testing.T) {
		c, _ := setupCoordinator(t, Options{LibraryID: "photos", PublicURL: "http://host:8080/"})
		f := &domain.File{ID: 7, Name: "a.jpg", Path: "/data/a.jpg", Hash: &hash}

		got, err := c.ItemFilePath(ctx, f, domain.PathOptions{AsPublicURL: true})
		require.NoError(t, err)
		assert.Equal(t, "http://host:8080/api/file/photos/7", got)
		assert.Equal(t, "http://host:8080/api/thumb/photos/7", c.ItemThumbPath(f, domain.PathOptions{AsPublicURL: true}))

		got, err = c.ItemFilePath(ctx, f, domain.PathOptions{})
		require.NoError(t, err)
		assert.Equal(t, "/data/a.jpg", got)
	})
}

func TestCreateFileFromPath_Link(t *testing.T) {
	c, _ := setupCoordinator(t, Options{})
	src := writeSource(t, "photo.jpg", "hello")

	f, err := c.CreateFileFromPath(context.Background(), src, nil, domain.ImportOptions{ImportType: domain.ImportLink})
	require.NoError(t, err)

	assert.Equal(t, "photo.jpg", f.Name)
	assert.Equal(t, src, f.Path)
	assert.Equal(t, int64(5), f.Size)
	assert.NotZero(t, f.CreatedAt)
	assert.NotZero(t, f.ImportedAt)
	assert.Nil(t, f.Hash, "hashing disabled")
	assert.FileExists(t, src)
}

func TestCreateFileFromPath_CopyWithHashAndOverrides(t *testing.T) {
	c, s := setupCoordinator(t, Options{HashEnabled: true})
	ctx := context.Background()

	_, err := s.CreateFolder(ctx, &domain.Folder{ID: "10", Title: "Photos"})
	require.NoError(t, err)

	src := writeSource(t, "photo.jpg", "hello")
	overrides := &domain.FileInput{
		Name:     "renamed.jpg",
		Stars:    4,
		FolderID: idPtr("10"),
		Tags:     []domain.EntityID{"1"},
	}

	f, err := c.CreateFileFromPath(ctx, src, overrides, domain.ImportOptions{ImportType: domain.ImportCopy, Folder: idPtr("10")})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(c.Root(), "Photos", "renamed.jpg"), f.Path)
	assert.Equal(t, "renamed.jpg", f.Name)
	assert.Equal(t, 4, f.Stars)
	assert.Equal(t, domain.EntityID("10"), *f.FolderID)
	assert.Equal(t, []domain.EntityID{"1"}, f.Tags)
	require.NotNil(t, f.Hash)
	// BLAKE2b-256("hello")
	assert.Equal(t, "324dcf027dd4a30a932c441f365a25e86b173defa4b8e58948253471b81b72cf", *f.Hash)

	assert.FileExists(t, src, "copy keeps the source")
	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCreateFileFromPath_CopyWithoutFolderOption(t *testing.T) {
	c, s := setupCoordinator(t, Options{})
	ctx := context.Background()

	_, err := s.CreateFolder(ctx, &domain.Folder{ID: "10", Title: "Photos"})
	require.NoError(t, err)

	src := writeSource(t, "a.jpg", "jpeg bytes")
	f, err := c.CreateFileFromPath(ctx, src, nil, domain.ImportOptions{ImportType: domain.ImportCopy})
	require.NoError(t, err)

	// Placement follows ImportOptions.Folder only; the catalog folder stays unset.
	assert.Equal(t, filepath.Join(c.Root(), UncategorizedDir, "a.jpg"), f.Path)
	assert.Nil(t, f.FolderID)
	assert.Equal(t, int64(len("jpeg bytes")), f.Size)
	assert.NoDirExists(t, filepath.Join(c.Root(), "Photos"))
}

func TestCreateFileFromPath_MoveAndCollision(t *testing.T) {
	c, _ := setupCoordinator(t, Options{})
	ctx := context.Background()

	first, err := c.CreateFileFromPath(ctx, writeSource(t, "a.txt", "1"), nil, domain.ImportOptions{ImportType: domain.ImportMove})
	require.NoError(t, err)

	src := writeSource(t, "a.txt", "2")
	second, err := c.CreateFileFromPath(ctx, src, nil, domain.ImportOptions{ImportType: domain.ImportMove})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(c.Root(), UncategorizedDir, "a.txt"), first.Path)
	assert.Equal(t, filepath.Join(c.Root(), UncategorizedDir, "a (1).txt"), second.Path)
	assert.NoFileExists(t, src, "move removes the source")

	data, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
}

func TestCreateFileFromPath_Errors(t *testing.T) {
	c, _ := setupCoordinator(t, Options{})
	ctx := context.Background()

	_, err := c.CreateFileFromPath(ctx, writeSource(t, "a.txt", "x"), nil, domain.ImportOptions{ImportType: "teleport"})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = c.CreateFileFromPath(ctx, filepath.Join(t.TempDir(), "missing"), nil, domain.ImportOptions{})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = c.CreateFileFromPath(ctx, t.TempDir(), nil, domain.ImportOptions{})
	assert.True(t, errors.Is(err, errors.ErrValidation), "directories are rejected")
}

func TestCreateFileFromPath_FailedInsertUndoesPhysicalStep(t *testing.T) {
	c, _ := setupCoordinator(t, Options{})
	ctx := context.Background()

	// folder_id references a folder that does not exist, so the insert fails.
	bad := &domain.FileInput{FolderID: idPtr("missing")}

	src := writeSource(t, "a.txt", "x")
	_, err := c.CreateFileFromPath(ctx, src, bad, domain.ImportOptions{ImportType: domain.ImportCopy})
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(c.Root(), UncategorizedDir, "a.txt"))

	_, err = c.CreateFileFromPath(ctx, src, bad, domain.ImportOptions{ImportType: domain.ImportMove})
	require.Error(t, err)
	assert.FileExists(t, src, "move is reversed")
	assert.NoFileExists(t, filepath.Join(c.Root(), UncategorizedDir, "a.txt"))
}

func TestRelocateAndDuplicate(t *testing.T) {
	c, s := setupCoordinator(t, Options{})
	ctx := context.Background()

	_, err := s.CreateFolder(ctx, &domain.Folder{ID: "10", Title: "Photos"})
	require.NoError(t, err)

	f, err := c.CreateFileFromPath(ctx, writeSource(t, "a.jpg", "img"), nil, domain.ImportOptions{ImportType: domain.ImportCopy})
	require.NoError(t, err)

	moved, err := c.Relocate(ctx, f, idPtr("10"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Root(), "Photos", "a.jpg"), moved.Path)
	assert.Equal(t, domain.EntityID("10"), *moved.FolderID)
	assert.NoFileExists(t, f.Path)
	assert.FileExists(t, moved.Path)

	dup, err := c.Duplicate(ctx, moved, idPtr("10"))
	require.NoError(t, err)
	assert.NotEqual(t, moved.ID, dup.ID)
	assert.Equal(t, filepath.Join(c.Root(), "Photos", "a (1).jpg"), dup.Path)
	assert.Equal(t, "a (1).jpg", dup.Name)
	assert.FileExists(t, moved.Path)
	assert.FileExists(t, dup.Path)

	back, err := c.Relocate(ctx, dup, nil)
	require.NoError(t, err)
	assert.Nil(t, back.FolderID)
	assert.Equal(t, filepath.Join(c.Root(), UncategorizedDir, "a (1).jpg"), back.Path)
}

func TestRelocate_LinkedFileOnlyChangesFolder(t *testing.T) {
	c, s := setupCoordinator(t, Options{})
	ctx := context.Background()

	_, err := s.CreateFolder(ctx, &domain.Folder{ID: "10", Title: "Photos"})
	require.NoError(t, err)

	src := writeSource(t, "a.jpg", "img")
	f, err := c.CreateFileFromPath(ctx, src, nil, domain.ImportOptions{ImportType: domain.ImportLink})
	require.NoError(t, err)

	moved, err := c.Relocate(ctx, f, idPtr("10"))
	require.NoError(t, err)
	assert.Equal(t, src, moved.Path)
	assert.Equal(t, domain.EntityID("10"), *moved.FolderID)
	assert.FileExists(t, src)
}

func TestRemoveFileData(t *testing.T) {
	c, _ := setupCoordinator(t, Options{})
	ctx := context.Background()

	src := writeSource(t, "linked.jpg", "x")
	linked, err := c.CreateFileFromPath(ctx, src, nil, domain.ImportOptions{ImportType: domain.ImportLink})
	require.NoError(t, err)
	owned, err := c.CreateFileFromPath(ctx, writeSource(t, "owned.jpg", "y"), nil, domain.ImportOptions{ImportType: domain.ImportCopy})
	require.NoError(t, err)

	thumb := c.ItemThumbPath(owned, domain.PathOptions{})
	require.NoError(t, os.MkdirAll(filepath.Dir(thumb), 0o755))
	require.NoError(t, os.WriteFile(thumb, []byte("t"), 0o644))

	c.RemoveFileData(ctx, linked)
	c.RemoveFileData(ctx, owned)
	c.RemoveFileData(ctx, owned) // already gone; must not panic

	assert.FileExists(t, src, "linked data outside the root is never removed")
	assert.NoFileExists(t, owned.Path)
	assert.NoFileExists(t, thumb)
}

func TestUniqueDest(t *testing.T) {
	dir := t.TempDir()
	for i := range 3 {
		dst, err := uniqueDest(dir, "x.tar.gz")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(dst, nil, 0o644))
		if i > 0 {
			assert.Equal(t, filepath.Join(dir, fmt.Sprintf("x.tar (%d).gz", i)), dst)
		}
	}
}

func TestCleanComponent(t *testing.T) {
	assert.Equal(t, "a_b_c", cleanComponent(`a/b\c`))
	assert.Equal(t, "", cleanComponent(".."))
	assert.Equal(t, "", cleanComponent("   "))
	assert.Equal(t, "Caf\u00e9", cleanComponent("Cafe\u0301"))
}
