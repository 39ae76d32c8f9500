// Package api exposes the dispatcher over HTTP and websockets, and serves
// library files, thumbnails and metrics.
package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenlib/lumen-server/internal/dispatch"
	"github.com/lumenlib/lumen-server/internal/library"
	"github.com/lumenlib/lumen-server/internal/logger"
	"github.com/lumenlib/lumen-server/internal/metrics"
	"github.com/lumenlib/lumen-server/internal/ratelimit"
	"github.com/lumenlib/lumen-server/internal/sse"
)

// Options tune the HTTP surface.
type Options struct {
	Version string
	// AllowedOrigins feeds CORS and the websocket origin check. Empty allows any origin.
	AllowedOrigins []string
	// DispatchRate is dispatch calls per second per client; 0 disables limiting.
	DispatchRate  float64
	DispatchBurst int
	// EventHeartbeat is the idle interval between event-stream heartbeats.
	EventHeartbeat time.Duration
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	registry   *library.Registry
	dispatcher *dispatch.Dispatcher
	router     *chi.Mux
	api        huma.API
	limiter    *ratelimit.KeyedRateLimiter
	upgrader   websocket.Upgrader
	events     *sse.Manager
	streams    *sse.Handler
	opts       Options
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(registry *library.Registry, dispatcher *dispatch.Dispatcher, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		registry:   registry,
		dispatcher: dispatcher,
		router:     chi.NewRouter(),
		limiter:    ratelimit.New(opts.DispatchRate, opts.DispatchBurst),
		events:     sse.NewManager(log),
		opts:       opts,
		logger:     log,
	}
	s.streams = sse.NewHandler(s.events, opts.EventHeartbeat, log)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("Lumen API", opts.Version)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close ends open event streams and stops background work owned by the
// server. Libraries are closed by the registry owner.
func (s *Server) Close() {
	s.events.Shutdown()
	s.limiter.Stop()
}

func (s *Server) setupMiddleware() {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id", headerClientID},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	s.router.Use(metrics.Middleware)
	s.router.Use(clientContext)
}

func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerLibraryRoutes()
	s.registerDispatchRoutes()

	s.router.Get("/api/file/{libraryId}/{fileId}", s.handleFile)
	s.router.Get("/api/thumb/{libraryId}/{fileId}", s.handleThumb)
	s.router.Get("/api/v1/libraries/{libraryId}/events", s.handleEvents)
	s.router.With(s.rateLimit).Get("/ws", s.handleWebsocket)
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, "*") || slices.Contains(s.opts.AllowedOrigins, origin)
}
