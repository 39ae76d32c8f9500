package api

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/http/response"
)

// handleFile streams a file's content.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	s.serveItem(w, r, false)
}

// handleThumb streams a file's thumbnail.
func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	s.serveItem(w, r, true)
}

func (s *Server) serveItem(w http.ResponseWriter, r *http.Request, thumb bool) {
	ctx := r.Context()

	sess, err := s.registry.Get(chi.URLParam(r, "libraryId"))
	if err != nil {
		response.Error(w, err, s.logger)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "fileId"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, errors.Validationf("invalid file id %q", chi.URLParam(r, "fileId")), s.logger)
		return
	}
	f, err := sess.GetFile(ctx, id)
	if err != nil {
		response.Error(w, err, s.logger)
		return
	}

	var path string
	if thumb {
		path = sess.ItemThumbPath(f, domain.PathOptions{})
	} else if path, err = sess.ItemFilePath(ctx, f, domain.PathOptions{}); err != nil {
		response.Error(w, err, s.logger)
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		response.Error(w, errors.NotFoundf("no content for file %d", id), s.logger)
		return
	}
	if mt, err := mimetype.DetectFile(path); err == nil {
		w.Header().Set("Content-Type", mt.String())
	}
	http.ServeFile(w, r, path)
}
