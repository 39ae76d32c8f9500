// Package plugin manages the extensions loaded into a library session.
package plugin

import (
	"context"
	"log/slog"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/eventbus"
)

// Plugin is a loaded extension instance.
type Plugin interface {
	Name() string
	// Close stops the plugin's goroutines and drops its subscriptions.
	Close(ctx context.Context) error
}

// Factory builds and starts a fresh plugin instance.
type Factory func(ctx context.Context, host Host) (Plugin, error)

// Library is the session surface exposed to plugins.
type Library interface {
	LibraryID() string
	Config() domain.LibraryConfig
	EventBus() *eventbus.Bus

	GetFile(ctx context.Context, id int64) (*domain.File, error)
	GetFiles(ctx context.Context, filter domain.FileFilter) (*domain.FileList, error)
	UpdateFile(ctx context.Context, id int64, patch domain.FilePatch) (bool, error)
	ImportFile(ctx context.Context, src string, overrides *domain.FileInput, opts domain.ImportOptions) (*domain.File, error)
	ItemThumbPath(f *domain.File, opts domain.PathOptions) string
	Root() string
}

// Server describes the hosting process.
type Server struct {
	DataPath  string
	PublicURL string
}

// Host is what a plugin receives when it is loaded.
type Host struct {
	Server  Server
	DB      Library
	Plugins *Manager
	Logger  *slog.Logger
}

// SearchHit is one full-text match.
type SearchHit struct {
	FileID int64   `json:"fileId"`
	Score  float64 `json:"score"`
}

// Searcher is implemented by plugins that answer full-text queries.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchHit, uint64, error)
}

// Info describes a registered plugin.
type Info struct {
	Name   string `json:"name"`
	Loaded bool   `json:"loaded"`
}
