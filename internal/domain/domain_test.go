package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityID_AcceptsNumbersAndStrings(t *testing.T) {
	var got struct {
		A EntityID   `json:"a"`
		B EntityID   `json:"b"`
		C []EntityID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":10,"b":"10","c":[1,"2"]}`), &got))

	assert.Equal(t, EntityID("10"), got.A)
	assert.Equal(t, got.A, got.B)
	assert.Equal(t, []EntityID{"1", "2"}, got.C)

	out, err := json.Marshal(got.C)
	require.NoError(t, err)
	assert.JSONEq(t, `["1","2"]`, string(out))
}

func TestEntityID_IsZero(t *testing.T) {
	assert.True(t, EntityID("").IsZero())
	assert.True(t, EntityID("0").IsZero())
	assert.False(t, EntityID("10").IsZero())
	assert.Nil(t, IDPtr("0"))
	assert.Equal(t, EntityID("3"), *IDPtr("3"))
}

func TestFilePatch_NullableFields(t *testing.T) {
	var p FilePatch
	require.NoError(t, json.Unmarshal([]byte(`{"folder_id":null,"stars":5}`), &p))

	assert.True(t, p.FolderID.Set)
	assert.False(t, p.FolderID.Valid)
	assert.False(t, p.Reference.Set)
	require.NotNil(t, p.Stars)
	assert.Equal(t, 5, *p.Stars)
	assert.False(t, p.IsEmpty())

	var empty FilePatch
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.True(t, empty.IsEmpty())
}

func TestFlag_Decode(t *testing.T) {
	var f struct {
		A *Flag `json:"a"`
		B *Flag `json:"b"`
		C *Flag `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":1,"b":false,"c":"true"}`), &f))
	assert.True(t, bool(*f.A))
	assert.False(t, bool(*f.B))
	assert.True(t, bool(*f.C))

	assert.Error(t, json.Unmarshal([]byte(`{"a":"maybe"}`), &f))
}

func TestLibraryConfig_Accessors(t *testing.T) {
	cfg := LibraryConfig{
		ID: "lib1",
		CustomFields: map[string]any{
			"path":       "/srv/photos",
			"enableHash": true,
			"watchPath":  "/srv/inbox",
			"ignore":     []any{"*.tmp", ".*"},
		},
	}

	assert.Equal(t, "/srv/photos", cfg.RootPath())
	assert.True(t, cfg.HashEnabled())
	assert.Equal(t, "/srv/inbox", cfg.WatchPath())
	assert.Equal(t, []string{"*.tmp", ".*"}, cfg.IgnorePatterns())

	cfg.Path = "/override"
	assert.Equal(t, "/override", cfg.RootPath())
}

func TestFileFilter_Window(t *testing.T) {
	limit, offset := FileFilter{}.Window()
	assert.Equal(t, DefaultLimit, limit)
	assert.Equal(t, 0, offset)

	limit, offset = FileFilter{Limit: 5000, Offset: -3}.Window()
	assert.Equal(t, MaxLimit, limit)
	assert.Equal(t, 0, offset)
}

func TestNode_IsRoot(t *testing.T) {
	zero := EntityID("0")
	parent := EntityID("1")
	assert.True(t, (&Node{}).IsRoot())
	assert.True(t, (&Node{ParentID: &zero}).IsRoot())
	assert.False(t, (&Node{ParentID: &parent}).IsRoot())
}
