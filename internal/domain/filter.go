package domain

// Pagination defaults.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// DateRange bounds created_at, in ms epoch, inclusive.
type DateRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// FileFilter is the declarative file query understood by the catalog.
type FileFilter struct {
	// Recycled selects soft-deleted rows. Absent means only live rows.
	Recycled  *Flag      `json:"recycled,omitempty"`
	Star      *int       `json:"star,omitempty"`
	MinRating *int       `json:"minRating,omitempty"`
	Name      string     `json:"name,omitempty"`
	DateRange *DateRange `json:"dateRange,omitempty"`
	// MinSize and MaxSize are in kilobytes.
	MinSize *float64 `json:"minSize,omitempty"`
	MaxSize *float64 `json:"maxSize,omitempty"`
	// Folder is an exact folder_id match; "" and "0" mean no filter.
	Folder EntityID `json:"folder,omitempty"`
	// Tags must all be present on the file.
	Tags []EntityID `json:"tags,omitempty"`
	// CustomFields maps key to predicate: bare value, "!=v", ">v", "<v" or "null".
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	Sort         string         `json:"sort,omitempty"`
	Order        string         `json:"order,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	Offset       int            `json:"offset,omitempty"`
}

// Window returns the effective limit and offset.
func (f FileFilter) Window() (limit, offset int) {
	limit, offset = f.Limit, f.Offset
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// FileList is one page of files plus the total matching the filter.
type FileList struct {
	Result []*File `json:"result"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Total  int     `json:"total"`
}
