package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumenlib/lumen-server/internal/http/response"
)

// handleEvents streams an open library's events as Server-Sent Events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	libraryID := chi.URLParam(r, "libraryId")
	sess, err := s.registry.Get(libraryID)
	if err != nil {
		response.Error(w, err, s.logger)
		return
	}
	s.streams.Stream(w, r, libraryID, sess.EventBus())
}
