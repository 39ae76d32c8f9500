package search

import (
	"fmt"
	"slices"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/lumenlib/lumen-server/internal/domain"
)

// buildIndexMapping maps file documents: names and notes get English stemming,
// tag and folder ids are exact keywords, custom field values are plain text.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	doc := bleve.NewDocumentMapping()

	name := bleve.NewTextFieldMapping()
	name.Analyzer = en.AnalyzerName
	name.Store = true
	name.IncludeTermVectors = true
	doc.AddFieldMappingsAt("name", name)

	notes := bleve.NewTextFieldMapping()
	notes.Analyzer = en.AnalyzerName
	doc.AddFieldMappingsAt("notes", notes)

	fields := bleve.NewTextFieldMapping()
	fields.Analyzer = simple.Name
	doc.AddFieldMappingsAt("fields", fields)

	for _, kw := range []string{"tags", "folder"} {
		m := bleve.NewTextFieldMapping()
		m.Analyzer = keyword.Name
		m.Store = true
		doc.AddFieldMappingsAt(kw, m)
	}

	for _, num := range []string{"created_at", "size", "stars"} {
		m := bleve.NewNumericFieldMapping()
		m.Store = true
		doc.AddFieldMappingsAt(num, m)
	}

	indexMapping.AddDocumentMapping("_default", doc)
	return indexMapping
}

// document is the indexed shape of a file.
type document struct {
	Name      string
	Notes     string
	Fields    string
	Tags      []string
	Folder    string
	CreatedAt int64
	Size      int64
	Stars     int
}

func newDocument(f *domain.File) document {
	d := document{
		Name:      f.Name,
		Notes:     f.Notes,
		CreatedAt: f.CreatedAt,
		Size:      f.Size,
		Stars:     f.Stars,
		Tags:      make([]string, 0, len(f.Tags)),
	}
	for _, t := range f.Tags {
		d.Tags = append(d.Tags, string(t))
	}
	if f.FolderID != nil {
		d.Folder = string(*f.FolderID)
	}

	// Flatten scalar custom field values into one searchable text field.
	keys := make([]string, 0, len(f.CustomFields))
	for k := range f.CustomFields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var parts []string
	for _, k := range keys {
		switch v := f.CustomFields[k].(type) {
		case string:
			parts = append(parts, v)
		case float64, int, int64, bool:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	d.Fields = strings.Join(parts, " ")
	return d
}

// toMap keys the document by the lowercase names used in the mapping.
func (d document) toMap() map[string]any {
	return map[string]any{
		"name":       d.Name,
		"notes":      d.Notes,
		"fields":     d.Fields,
		"tags":       d.Tags,
		"folder":     d.Folder,
		"created_at": float64(d.CreatedAt),
		"size":       float64(d.Size),
		"stars":      float64(d.Stars),
	}
}
