package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/lumenlib/lumen-server/internal/api"
	"github.com/lumenlib/lumen-server/internal/config"
	"github.com/lumenlib/lumen-server/internal/dispatch"
	"github.com/lumenlib/lumen-server/internal/logger"
)

// Version is stamped at build time.
var Version = "dev"

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Event streams never end on their own; close them before draining connections.
	h.api.Close()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer starts the HTTP server in the background.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	registry := do.MustInvoke[*RegistryHandle](i)
	dispatcher := do.MustInvoke[*dispatch.Dispatcher](i)

	handler := api.NewServer(registry.Registry, dispatcher, api.Options{
		Version:        Version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DispatchRate:   cfg.Dispatch.Rate,
		DispatchBurst:  cfg.Dispatch.Burst,
	}, log.Logger)

	ln, err := api.Listen(":"+cfg.Server.Port, cfg.Server.MaxConnections)
	if err != nil {
		handler.Close()
		return nil, err
	}

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", ln.Addr().String(), "max_connections", cfg.Server.MaxConnections)

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}
