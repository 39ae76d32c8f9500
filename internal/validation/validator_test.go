package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/validation"
)

type importRequest struct {
	Path       string `json:"path" validate:"required"`
	ImportType string `json:"importType" validate:"required,importtype"`
	Stars      int    `json:"stars" validate:"gte=0,lte=5"`
	SortKey    string `json:"sortKey,omitempty" validate:"omitempty,fieldkey"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(importRequest{Path: "/tmp/a.jpg", ImportType: "copy", Stars: 3, SortKey: "camera.model"})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       importRequest
		wantField string
		wantMsg   string
	}{
		{
			name:      "missing path",
			req:       importRequest{ImportType: "link"},
			wantField: "path",
			wantMsg:   "is required",
		},
		{
			name:      "unknown import type",
			req:       importRequest{Path: "/a", ImportType: "symlink"},
			wantField: "importType",
			wantMsg:   "must be one of: link copy move",
		},
		{
			name:      "stars out of range",
			req:       importRequest{Path: "/a", ImportType: "move", Stars: 9},
			wantField: "stars",
			wantMsg:   "must be less than or equal to 5",
		},
		{
			name:      "bad field key",
			req:       importRequest{Path: "/a", ImportType: "move", SortKey: "a'); DROP"},
			wantField: "sortKey",
			wantMsg:   "may only contain letters, digits, '_', '.' and '-'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, details[tt.wantField])
		})
	}
}

func TestValidFieldKey(t *testing.T) {
	assert.True(t, validation.ValidFieldKey("iso_speed"))
	assert.False(t, validation.ValidFieldKey(""))
	assert.False(t, validation.ValidFieldKey("a b"))
}
