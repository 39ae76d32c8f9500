package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lumenlib/lumen-server/internal/dispatch"
	"github.com/lumenlib/lumen-server/internal/http/response"
)

func (s *Server) registerDispatchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "dispatch",
		Method:      http.MethodPost,
		Path:        "/api/v1/dispatch",
		Summary:     "Dispatch a library operation",
		Description: "Runs one {action, libraryId, payload:{type, data}} message and returns its result",
		Tags:        []string{"Dispatch"},
		Middlewares: huma.Middlewares{s.rateLimitOp},
	}, s.handleDispatch)
}

// DispatchInput carries the raw message; payload data is validated per route
// by the dispatcher.
type DispatchInput struct {
	RawBody []byte `contentType:"application/json"`
}

// DispatchOutput wraps the operation result.
type DispatchOutput struct {
	Body response.Envelope
}

func (s *Server) handleDispatch(ctx context.Context, input *DispatchInput) (*DispatchOutput, error) {
	msg, err := dispatch.DecodeMessage(input.RawBody)
	if err != nil {
		return nil, apiError(err)
	}
	result, err := s.dispatcher.Dispatch(ctx, msg)
	if err != nil {
		return nil, apiError(err)
	}
	return &DispatchOutput{Body: response.Ok(result)}, nil
}
