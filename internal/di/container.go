// Package di provides dependency injection configuration for the Lumen server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/lumenlib/lumen-server/internal/config"
	"github.com/lumenlib/lumen-server/internal/di/providers"
	"github.com/lumenlib/lumen-server/internal/dispatch"
	"github.com/lumenlib/lumen-server/internal/librarylist"
	"github.com/lumenlib/lumen-server/internal/logger"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.Provide(injector, providers.ProvideLogger)

	// Libraries
	do.Provide(injector, providers.ProvideLibraryList)
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideDispatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services. Providers are lazy; this triggers them
// in dependency order so startup errors surface before the server is reported ready.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*librarylist.List](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.RegistryHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*dispatch.Dispatcher](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}
	return nil
}
