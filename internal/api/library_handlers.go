package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lumenlib/lumen-server/internal/library"
)

func (s *Server) registerLibraryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listLibraries",
		Method:      http.MethodGet,
		Path:        "/api/v1/libraries",
		Summary:     "List libraries",
		Description: "Lists every known library with its runtime state",
		Tags:        []string{"Libraries"},
	}, s.handleListLibraries)
}

// LibrariesResponse is the library list envelope.
type LibrariesResponse struct {
	Success bool             `json:"success"`
	Data    []library.Status `json:"data"`
}

// LibrariesOutput wraps the library list.
type LibrariesOutput struct {
	Body LibrariesResponse
}

func (s *Server) handleListLibraries(_ context.Context, _ *struct{}) (*LibrariesOutput, error) {
	out := &LibrariesOutput{}
	out.Body.Success = true
	out.Body.Data = s.registry.List()
	if out.Body.Data == nil {
		out.Body.Data = []library.Status{}
	}
	return out, nil
}
