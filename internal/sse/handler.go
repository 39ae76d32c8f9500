package sse

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lumenlib/lumen-server/internal/eventbus"
)

// Default stream timings.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	writeWait                = 60 * time.Second
)

// Handler writes event streams.
type Handler struct {
	manager   *Manager
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewHandler creates a new Handler. A non-positive heartbeat selects the default.
func NewHandler(manager *Manager, heartbeat time.Duration, logger *slog.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &Handler{
		manager:   manager,
		logger:    logger,
		heartbeat: heartbeat,
	}
}

// Stream writes every event published on bus until the client disconnects,
// the library closes or the manager shuts down.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request, libraryID string, bus *eventbus.Bus) {
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)

	client, err := h.manager.Connect(libraryID, bus)
	if err != nil {
		h.logger.Error("failed to register event stream", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusServiceUnavailable)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With(slog.String("client_id", client.ID), slog.String("library_id", libraryID))

	if err := h.send(w, rc, EventConnected, ConnectedData{ClientID: client.ID, LibraryID: libraryID}); err != nil {
		log.Warn("failed to send connected frame", slog.String("error", err.Error()))
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case evt := <-client.EventChan:
			if err := h.send(w, rc, evt.Name, evt); err != nil {
				log.Info("client disconnected during send")
				return
			}
			if evt.Name == eventbus.LibraryClosing {
				log.Info("library closed, ending stream")
				return
			}

		case <-heartbeat.C:
			if err := h.send(w, rc, EventHeartbeat, newHeartbeat()); err != nil {
				log.Info("client disconnected during heartbeat")
				return
			}

		case <-client.Done:
			log.Info("stream closed by manager")
			return

		case <-ctx.Done():
			log.Debug("client context canceled")
			return
		}
	}
}

func (h *Handler) send(w http.ResponseWriter, rc *http.ResponseController, name string, data any) error {
	if err := writeFrame(w, name, data); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}
	// Extend the deadline per frame so the server's WriteTimeout does not cut long streams.
	if err := rc.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
