// Package response writes the server's JSON envelope for handlers that do not
// go through huma: raw file routes, middleware rejections and websocket replies.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lumenlib/lumen-server/internal/errors"
)

// ErrorBody is the error half of the envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope provides a consistent JSON response structure.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// Ok wraps data in a successful envelope.
func Ok(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Fail wraps err in a failed envelope. Uncoded errors are reported as INTERNAL
// without their message.
func Fail(err error) Envelope {
	return Envelope{Error: Body(err)}
}

// Body converts err to its wire form.
func Body(err error) *ErrorBody {
	var e *errors.Error
	if errors.As(err, &e) {
		return &ErrorBody{Code: string(e.Code), Message: e.Error(), Details: e.Details}
	}
	return &ErrorBody{Code: string(errors.CodeInternal), Message: "internal server error"}
}

// Status returns the HTTP status for err.
func Status(err error) int {
	return errors.CodeOf(err).HTTPStatus()
}

// JSON writes an envelope with the given status code.
func JSON(w http.ResponseWriter, status int, env Envelope, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(env); err != nil && logger != nil {
		logger.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// Success writes data with 200 OK.
func Success(w http.ResponseWriter, data any, logger *slog.Logger) {
	JSON(w, http.StatusOK, Ok(data), logger)
}

// Error writes err with the status its code maps to. Uncoded errors are logged.
func Error(w http.ResponseWriter, err error, logger *slog.Logger) {
	status := Status(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", slog.String("error", err.Error()))
	}
	JSON(w, status, Fail(err), logger)
}

// TooManyRequests writes a 429 with a Retry-After hint in seconds.
func TooManyRequests(w http.ResponseWriter, retryAfter string, logger *slog.Logger) {
	if retryAfter != "" {
		w.Header().Set("Retry-After", retryAfter)
	}
	JSON(w, http.StatusTooManyRequests, Envelope{Error: &ErrorBody{
		Code:    "RATE_LIMITED",
		Message: "too many requests, please try again later",
	}}, logger)
}
