package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/lumenlib/lumen-server/internal/config"
	"github.com/lumenlib/lumen-server/internal/dispatch"
	"github.com/lumenlib/lumen-server/internal/library"
	"github.com/lumenlib/lumen-server/internal/librarylist"
	"github.com/lumenlib/lumen-server/internal/logger"
	"github.com/lumenlib/lumen-server/internal/plugin"
	"github.com/lumenlib/lumen-server/internal/plugins"
)

// ProvideLibraryList loads the persisted library list.
func ProvideLibraryList(i do.Injector) (*librarylist.List, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	list, err := librarylist.Load(cfg.Data.LibraryList)
	if err != nil {
		return nil, err
	}
	log.Info("Library list loaded", "path", list.Path(), "libraries", len(list.All()))
	return list, nil
}

// RegistryHandle closes every open library on shutdown.
type RegistryHandle struct {
	*library.Registry
}

// Shutdown implements do.Shutdownable.
func (h *RegistryHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.CloseAll(ctx)
}

// ProvideRegistry provides the library registry with the bundled plugins.
func ProvideRegistry(i do.Injector) (*RegistryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	list := do.MustInvoke[*librarylist.List](i)

	registry := library.NewRegistry(list, library.SessionOptions{
		Server: plugin.Server{
			DataPath:  cfg.Data.BasePath,
			PublicURL: cfg.Server.PublicURL,
		},
		Factories:      plugins.Builtin(),
		DefaultPlugins: cfg.Plugins.Default,
		Logger:         log.Logger,
	})
	return &RegistryHandle{Registry: registry}, nil
}

// ProvideDispatcher provides the message dispatcher.
func ProvideDispatcher(i do.Injector) (*dispatch.Dispatcher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	registry := do.MustInvoke[*RegistryHandle](i)
	return dispatch.New(registry.Registry, log.Logger, dispatch.WithImportRoots(cfg.Dispatch.ImportRoots...)), nil
}
