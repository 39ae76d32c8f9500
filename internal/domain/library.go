package domain

import "strings"

// LibraryConfig describes one library as stored in the library list.
type LibraryConfig struct {
	ID           string         `json:"id" toml:"id" validate:"required"`
	Name         string         `json:"name" toml:"name"`
	Type         string         `json:"type,omitempty" toml:"type,omitempty"`
	Path         string         `json:"path,omitempty" toml:"path,omitempty"`
	CustomFields map[string]any `json:"customFields,omitempty" toml:"customFields,omitempty"`
	Plugins      []string       `json:"plugins,omitempty" toml:"plugins,omitempty"`
}

// RootPath is Path, falling back to customFields.path.
func (c LibraryConfig) RootPath() string {
	if c.Path != "" {
		return c.Path
	}
	return c.stringField("path")
}

// HashEnabled reports whether imports compute a content hash.
func (c LibraryConfig) HashEnabled() bool {
	switch v := c.CustomFields["enableHash"].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || v == "1"
	case float64:
		return v != 0
	case int64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

// WatchPath is the directory watched by the auto-import plugin, if any.
func (c LibraryConfig) WatchPath() string {
	return c.stringField("watchPath")
}

// IgnorePatterns are glob patterns the auto-import plugin skips.
func (c LibraryConfig) IgnorePatterns() []string {
	raw, ok := c.CustomFields["ignore"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

func (c LibraryConfig) stringField(key string) string {
	if s, ok := c.CustomFields[key].(string); ok {
		return s
	}
	return ""
}

// LibraryDescriptor is returned to transports when a library is opened.
type LibraryDescriptor struct {
	LibraryID string        `json:"libraryId"`
	Status    string        `json:"status"`
	Tags      []*Tag        `json:"tags"`
	Folders   []*Folder     `json:"folders"`
	Config    LibraryConfig `json:"config"`
}
