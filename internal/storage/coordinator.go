// Package storage maps catalog records to the library's directory tree and performs
// the physical side of imports, moves, copies and deletes.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
)

const (
	// UncategorizedDir holds files without a resolvable folder.
	UncategorizedDir = "uncategorized"
	// ThumbsDir holds generated thumbnails under the library root.
	ThumbsDir = "thumbs"
	// StateDir holds server-private state (lock file, search index).
	StateDir = ".lumen"
)

// Catalog is the part of the catalog store the coordinator writes through.
type Catalog interface {
	CreateFile(ctx context.Context, in *domain.FileInput) (*domain.File, error)
	UpdateFile(ctx context.Context, id int64, patch domain.FilePatch) (bool, error)
	GetFile(ctx context.Context, id int64) (*domain.File, error)
	CountFilesByHash(ctx context.Context, hash string) (int, error)
	GetFolder(ctx context.Context, id domain.EntityID) (*domain.Folder, error)
}

// Options configures a Coordinator for one library.
type Options struct {
	LibraryID   string
	Root        string
	PublicURL   string // base URL of the HTTP facade; empty disables URLs
	HashEnabled bool
}

// Coordinator keeps the filesystem in step with the catalog for one library.
// Safe for concurrent use.
type Coordinator struct {
	catalog Catalog
	opts    Options
	logger  *slog.Logger

	// mu serializes destination name selection with the write that claims it.
	mu  sync.Mutex
	now func() time.Time
}

// New creates a Coordinator rooted at opts.Root, creating the directory if needed.
func New(catalog Catalog, opts Options, logger *slog.Logger) (*Coordinator, error) {
	if opts.Root == "" {
		return nil, errors.Validation("library root path cannot be empty")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, errors.Filesystemf(err, "resolve library root %s", opts.Root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Filesystemf(err, "create library root %s", root)
	}
	opts.Root = root
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")

	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		catalog: catalog,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Root returns the absolute library root.
func (c *Coordinator) Root() string { return c.opts.Root }

// ItemPath returns the directory a file belongs in: the root joined with its folder's
// title, or the uncategorized directory when the folder is unset or gone.
func (c *Coordinator) ItemPath(ctx context.Context, f *domain.File) (string, error) {
	return c.folderDir(ctx, f.FolderID)
}

// ItemFilePath returns the file's on-disk path, or its download URL when asked for
// one and a public URL is configured.
func (c *Coordinator) ItemFilePath(ctx context.Context, f *domain.File, opts domain.PathOptions) (string, error) {
	if opts.AsPublicURL && c.opts.PublicURL != "" {
		return fmt.Sprintf("%s/api/file/%s/%d", c.opts.PublicURL, c.opts.LibraryID, f.ID), nil
	}
	if f.Path != "" {
		return f.Path, nil
	}
	dir, err := c.ItemPath(ctx, f)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, f.Name), nil
}

// ItemThumbPath returns where the file's thumbnail lives, keyed by content hash when
// known and by id otherwise, or its download URL.
func (c *Coordinator) ItemThumbPath(f *domain.File, opts domain.PathOptions) string {
	if opts.AsPublicURL && c.opts.PublicURL != "" {
		return fmt.Sprintf("%s/api/thumb/%s/%d", c.opts.PublicURL, c.opts.LibraryID, f.ID)
	}
	key := strconv.FormatInt(f.ID, 10)
	if f.Hash != nil && *f.Hash != "" {
		key = *f.Hash
	}
	return filepath.Join(c.opts.Root, ThumbsDir, key+".jpg")
}

func (c *Coordinator) folderDir(ctx context.Context, folderID *domain.EntityID) (string, error) {
	if folderID == nil || folderID.IsZero() {
		return filepath.Join(c.opts.Root, UncategorizedDir), nil
	}

	folder, err := c.catalog.GetFolder(ctx, *folderID)
	if errors.Is(err, errors.ErrNotFound) {
		return filepath.Join(c.opts.Root, UncategorizedDir), nil
	}
	if err != nil {
		return "", err
	}

	name := cleanComponent(folder.Title)
	if name == "" {
		name = UncategorizedDir
	}
	return filepath.Join(c.opts.Root, name), nil
}

// owns reports whether path lies inside the library root.
func (c *Coordinator) owns(path string) bool {
	if path == "" {
		return false
	}
	rel, err := filepath.Rel(c.opts.Root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// cleanComponent turns a title into a single NFC-normalized path element.
func cleanComponent(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "." || s == ".." {
		return ""
	}
	return s
}
