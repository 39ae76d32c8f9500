package domain

// File is a cataloged asset.
type File struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	CreatedAt    int64          `json:"created_at"`  // ms epoch
	ImportedAt   int64          `json:"imported_at"` // ms epoch
	Size         int64          `json:"size"`        // bytes
	Hash         *string        `json:"hash"`
	CustomFields map[string]any `json:"custom_fields"`
	Notes        string         `json:"notes"`
	Stars        int            `json:"stars"`
	FolderID     *EntityID      `json:"folder_id"`
	Reference    *string        `json:"reference"`
	Path         string         `json:"path"`
	Thumb        bool           `json:"thumb"`
	Recycled     bool           `json:"recycled"`
	Tags         []EntityID     `json:"tags"`
}

// FileInput is the data for a new file row. Zero values become column defaults.
type FileInput struct {
	Name         string         `json:"name" validate:"required"`
	CreatedAt    int64          `json:"created_at"`
	ImportedAt   int64          `json:"imported_at"`
	Size         int64          `json:"size" validate:"gte=0"`
	Hash         *string        `json:"hash,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	Stars        int            `json:"stars" validate:"gte=0"`
	FolderID     *EntityID      `json:"folder_id,omitempty"`
	Reference    *string        `json:"reference,omitempty"`
	Path         string         `json:"path"`
	Thumb        bool           `json:"thumb"`
	Recycled     bool           `json:"recycled"`
	Tags         []EntityID     `json:"tags,omitempty"`
}

// FilePatch updates only the fields that are present.
// Nil pointers, nil maps and nil slices are left unchanged.
type FilePatch struct {
	Name         *string            `json:"name,omitempty"`
	CreatedAt    *int64             `json:"created_at,omitempty"`
	ImportedAt   *int64             `json:"imported_at,omitempty"`
	Size         *int64             `json:"size,omitempty"`
	Hash         Nullable[string]   `json:"hash"`
	CustomFields map[string]any     `json:"custom_fields,omitempty"`
	Notes        *string            `json:"notes,omitempty"`
	Stars        *int               `json:"stars,omitempty"`
	FolderID     Nullable[EntityID] `json:"folder_id"`
	Reference    Nullable[string]   `json:"reference"`
	Path         *string            `json:"path,omitempty"`
	Thumb        *bool              `json:"thumb,omitempty"`
	Recycled     *bool              `json:"recycled,omitempty"`
	Tags         []EntityID         `json:"tags,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p FilePatch) IsEmpty() bool {
	return p.Name == nil && p.CreatedAt == nil && p.ImportedAt == nil && p.Size == nil &&
		!p.Hash.Set && p.CustomFields == nil && p.Notes == nil && p.Stars == nil &&
		!p.FolderID.Set && !p.Reference.Set && p.Path == nil && p.Thumb == nil &&
		p.Recycled == nil && p.Tags == nil
}

// DeleteOptions selects soft or hard delete.
type DeleteOptions struct {
	MoveToRecycleBin bool `json:"moveToRecycleBin"`
}

// ImportType is the physical strategy used when importing a file.
type ImportType string

// Import strategies.
const (
	ImportLink ImportType = "link"
	ImportCopy ImportType = "copy"
	ImportMove ImportType = "move"
)

// Valid reports whether t is a known strategy.
func (t ImportType) Valid() bool {
	switch t {
	case ImportLink, ImportCopy, ImportMove:
		return true
	}
	return false
}

// ImportOptions controls CreateFileFromPath.
// Folder only picks the destination directory; the catalog folder_id comes from the overrides.
type ImportOptions struct {
	ImportType ImportType `json:"importType"`
	Folder     *EntityID  `json:"folder,omitempty"`
}

// PathOptions selects a filesystem path or a public URL.
type PathOptions struct {
	AsPublicURL bool `json:"asPublicUrl"`
}
