// Package library bundles a library's catalog, filesystem coordinator, event bus
// and plugins into a session, and tracks open sessions in a registry.
package library

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/eventbus"
	"github.com/lumenlib/lumen-server/internal/logger"
	"github.com/lumenlib/lumen-server/internal/plugin"
	"github.com/lumenlib/lumen-server/internal/storage"
	"github.com/lumenlib/lumen-server/internal/store/sqlite"
)

// LockFile guards a library root against a second server process.
const LockFile = "lock"

// StatusConnected is the descriptor status returned by Connect.
const StatusConnected = "connected"

// SessionOptions carries what every session of a server shares.
type SessionOptions struct {
	Server plugin.Server
	// Factories are the plugins a session may load, by name.
	Factories map[string]plugin.Factory
	// DefaultPlugins load into every session, before the library's own list.
	DefaultPlugins []string
	Logger         *slog.Logger
}

// Session is one open library.
type Session struct {
	cfg     domain.LibraryConfig
	root    string
	store   *sqlite.Store
	fs      *storage.Coordinator
	bus     *eventbus.Bus
	plugins *plugin.Manager
	lock    *flock.Flock
	logger  *slog.Logger
	closed  atomic.Bool
}

var _ plugin.Library = (*Session)(nil)

// NewSession opens the library described by cfg: it takes the process lock,
// opens (creating if needed) the catalog and loads the configured plugins.
// A plugin that fails to load is logged and skipped.
func NewSession(ctx context.Context, cfg domain.LibraryConfig, opts SessionOptions) (_ *Session, err error) {
	if cfg.ID == "" {
		return nil, errors.Validation("library id is required")
	}
	root := cfg.RootPath()
	if root == "" {
		return nil, errors.Validationf("library %s has no path", cfg.ID)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, errors.Filesystemf(err, "resolve library path %s", root)
	}

	log := logger.ForLibrary(opts.Logger, cfg.ID)

	stateDir := filepath.Join(root, storage.StateDir)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, errors.Filesystemf(err, "create %s", stateDir)
	}

	lock := flock.New(filepath.Join(stateDir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Filesystemf(err, "lock library %s", cfg.ID)
	}
	if !locked {
		return nil, errors.Conflictf("library %s is in use by another process", cfg.ID)
	}

	s := &Session{cfg: cfg, root: root, lock: lock, logger: log}
	defer func() {
		if err != nil {
			s.release()
		}
	}()

	s.store, err = sqlite.Open(filepath.Join(root, sqlite.DatabaseFile), log)
	if err != nil {
		return nil, err
	}

	s.fs, err = storage.New(s.store, storage.Options{
		LibraryID:   cfg.ID,
		Root:        root,
		PublicURL:   opts.Server.PublicURL,
		HashEnabled: cfg.HashEnabled(),
	}, log)
	if err != nil {
		return nil, err
	}

	s.bus = eventbus.New(cfg.ID, log)

	s.plugins = plugin.NewManager(plugin.Host{Server: opts.Server, DB: s, Logger: log}, log)
	for _, name := range slices.Sorted(maps.Keys(opts.Factories)) {
		if err := s.plugins.Register(name, opts.Factories[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range pluginList(opts.DefaultPlugins, cfg.Plugins) {
		if _, err := s.plugins.Load(ctx, name); err != nil {
			log.Warn("failed to load plugin", slog.String("plugin", name), slog.String("error", err.Error()))
		}
	}

	log.Info("library opened", slog.String("root", root))
	return s, nil
}

// pluginList merges the server defaults and the library list, dropping repeats.
func pluginList(defaults, own []string) []string {
	out := make([]string, 0, len(defaults)+len(own))
	for _, name := range slices.Concat(defaults, own) {
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// LibraryID returns the immutable library id.
func (s *Session) LibraryID() string { return s.cfg.ID }

// Config returns the configuration the session was opened with.
func (s *Session) Config() domain.LibraryConfig { return s.cfg }

// Root returns the absolute library root.
func (s *Session) Root() string { return s.root }

// EventBus returns the session's bus.
func (s *Session) EventBus() *eventbus.Bus { return s.bus }

// Plugins returns the session's plugin manager.
func (s *Session) Plugins() *plugin.Manager { return s.plugins }

// Connect runs the client::before_connect hooks, any of which may refuse the
// client, then returns the library descriptor and announces client::connected.
func (s *Session) Connect(ctx context.Context, client eventbus.ClientData) (*domain.LibraryDescriptor, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.bus.Intercept(ctx, eventbus.ClientBeforeConnect, client); err != nil {
		if errors.CodeOf(err) == errors.CodeInternal {
			return nil, errors.Forbidden(err.Error())
		}
		return nil, err
	}

	tags, err := s.store.ListAllTags(ctx)
	if err != nil {
		return nil, err
	}
	folders, err := s.store.ListAllFolders(ctx)
	if err != nil {
		return nil, err
	}

	s.bus.Broadcast(ctx, eventbus.ClientConnected, client)

	return &domain.LibraryDescriptor{
		LibraryID: s.cfg.ID,
		Status:    StatusConnected,
		Tags:      tags,
		Folders:   folders,
		Config:    s.cfg,
	}, nil
}

// Close unloads plugins, closes the catalog and releases the process lock.
// Later operations fail with NotInitialized.
func (s *Session) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.bus.Broadcast(ctx, eventbus.LibraryClosing, nil)

	var errs []error
	if s.plugins != nil {
		if err := s.plugins.UnloadAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.release(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("library closed")
	return errors.Join(errs...)
}

func (s *Session) release() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Session) ready() error {
	if s.closed.Load() {
		return errors.ErrNotInitialized
	}
	return nil
}
