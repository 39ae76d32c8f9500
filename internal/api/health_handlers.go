package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lumenlib/lumen-server/internal/library"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server status and the number of open libraries",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status    string `json:"status" doc:"Overall status: healthy"`
	Version   string `json:"version" doc:"Server version"`
	Libraries int    `json:"libraries" doc:"Libraries currently open"`
	Known     int    `json:"known" doc:"Libraries in the library list"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	statuses := s.registry.List()
	active := 0
	for _, st := range statuses {
		if st.State == library.StateActive {
			active++
		}
	}
	return &HealthOutput{Body: HealthResponse{
		Status:    "healthy",
		Version:   s.opts.Version,
		Libraries: active,
		Known:     len(statuses),
	}}, nil
}
