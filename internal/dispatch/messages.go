package dispatch

import (
	"encoding/json"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/plugin"
)

// Message is one client request.
type Message struct {
	Action    string  `json:"action" validate:"required"`
	LibraryID string  `json:"libraryId,omitempty"`
	Payload   Payload `json:"payload"`
}

// Payload selects the entity type and carries the action's data.
type Payload struct {
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Route names a (type, action) pair as "type.action".
func (m Message) Route() string { return m.Payload.Type + "." + m.Action }

// OpenLibraryData optionally registers a library before opening it.
type OpenLibraryData struct {
	Config *domain.LibraryConfig `json:"config,omitempty"`
}

// FileIDData addresses one file.
type FileIDData struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

// UpdateFileData patches one file.
type UpdateFileData struct {
	ID    int64            `json:"id" validate:"required,gt=0"`
	Patch domain.FilePatch `json:"patch"`
}

// DeleteFileData soft- or hard-deletes one file.
type DeleteFileData struct {
	ID               int64 `json:"id" validate:"required,gt=0"`
	MoveToRecycleBin bool  `json:"moveToRecycleBin"`
}

// ImportFileData brings a file from the server filesystem into the library.
type ImportFileData struct {
	Path       string            `json:"path" validate:"required"`
	ImportType string            `json:"importType,omitempty" validate:"omitempty,importtype"`
	Folder     *domain.EntityID  `json:"folder,omitempty"`
	File       *domain.FileInput `json:"file,omitempty" validate:"-"`
}

// PlaceFileData moves or copies one file into a folder; a nil folder means none.
type PlaceFileData struct {
	ID     int64            `json:"id" validate:"required,gt=0"`
	Folder *domain.EntityID `json:"folder,omitempty"`
}

// SetTagData replaces a file's tags.
type SetTagData struct {
	ID   int64             `json:"id" validate:"required,gt=0"`
	Tags []domain.EntityID `json:"tags"`
}

// Path kinds accepted by file.path.
const (
	PathKindFile  = "file"
	PathKindThumb = "thumb"
	PathKindDir   = "dir"
)

// FilePathData asks for one of a file's paths.
type FilePathData struct {
	ID          int64  `json:"id" validate:"required,gt=0"`
	Kind        string `json:"kind,omitempty" validate:"omitempty,oneof=file thumb dir"`
	AsPublicURL bool   `json:"asPublicUrl"`
}

// NodeIDData addresses one folder or tag.
type NodeIDData struct {
	ID domain.EntityID `json:"id" validate:"required"`
}

// UpdateNodeData patches one folder or tag.
type UpdateNodeData struct {
	ID    domain.EntityID  `json:"id" validate:"required"`
	Patch domain.NodePatch `json:"patch"`
}

// ListNodesData lists children of a parent, or the roots.
type ListNodesData struct {
	ParentID *domain.EntityID `json:"parentId,omitempty"`
}

// FindNodeData looks a folder or tag up by title.
type FindNodeData struct {
	Name     string           `json:"name" validate:"required"`
	ParentID *domain.EntityID `json:"parentId,omitempty"`
}

// PluginData names one plugin.
type PluginData struct {
	Name string `json:"name" validate:"required"`
}

// SearchData is a full-text query.
type SearchData struct {
	Query string `json:"query"`
	Limit int    `json:"limit" validate:"gte=0,lte=1000"`
}

// ChangedResult reports whether a mutation touched a row.
type ChangedResult struct {
	Changed bool `json:"changed"`
}

// DeletedNodesResult lists every removed folder or tag id.
type DeletedNodesResult struct {
	Deleted []domain.EntityID `json:"deleted"`
}

// PathResult carries a resolved path or URL.
type PathResult struct {
	Path string `json:"path"`
}

// SearchResult is one page of search hits.
type SearchResult struct {
	Hits  []plugin.SearchHit `json:"hits"`
	Total uint64             `json:"total"`
}

// StatusResult acknowledges a lifecycle action.
type StatusResult struct {
	LibraryID string `json:"libraryId"`
	Status    string `json:"status"`
}
