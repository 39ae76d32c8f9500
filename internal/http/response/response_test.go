package response

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlib/lumen-server/internal/errors"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	Success(w, map[string]any{"id": "123", "name": "test"}, logger)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	body := decodeEnvelope(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotContains(t, body, "error")
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "123", data["id"])
}

func TestError_MapsCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", errors.NotFound("file 3 not found"), http.StatusNotFound, "NOT_FOUND"},
		{"validation", errors.Validation("bad"), http.StatusBadRequest, "VALIDATION"},
		{"conflict", errors.Conflict("locked"), http.StatusConflict, "CONFLICT"},
		{"forbidden", errors.Forbidden("no"), http.StatusForbidden, "FORBIDDEN"},
		{"not initialized", errors.ErrNotInitialized, http.StatusServiceUnavailable, "NOT_INITIALIZED"},
		{"storage", errors.Storage(io.EOF, "read"), http.StatusInternalServerError, "STORAGE"},
		{"foreign", stderrors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Error(w, tt.err, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeEnvelope(t, w)
			assert.Equal(t, false, body["success"])
			errBody, ok := body["error"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, errBody["code"])
		})
	}
}

func TestBody_HidesForeignMessages(t *testing.T) {
	b := Body(stderrors.New("secret path /etc/x"))
	assert.Equal(t, "INTERNAL", b.Code)
	assert.NotContains(t, b.Message, "secret")
}

func TestBody_KeepsDetails(t *testing.T) {
	b := Body(errors.ValidationWithDetails("invalid", map[string]string{"name": "required"}))
	assert.Equal(t, map[string]string{"name": "required"}, b.Details)
}

func TestTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()
	TooManyRequests(w, "1", nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	body := decodeEnvelope(t, w)
	assert.Equal(t, "RATE_LIMITED", body["error"].(map[string]any)["code"])
}
