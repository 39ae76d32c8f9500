// Package providers contains dependency injection providers for the Lumen server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/lumenlib/lumen-server/internal/config"
	"github.com/lumenlib/lumen-server/internal/logger"
)

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting Lumen server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"library_list", cfg.Data.LibraryList,
	)

	return log, nil
}
