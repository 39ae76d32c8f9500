package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/lumenlib/lumen-server/internal/domain"
)

// mappingVersion is bumped whenever the index mapping changes; a mismatch on open
// rebuilds the index.
const mappingVersion = "1"

// Index wraps a Bleve index of one library's files.
// All methods are safe for concurrent use.
type Index struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// OpenIndex opens or creates the index stored under dir. Returns fresh=true when
// the index was created and needs a full build.
func OpenIndex(dir string, logger *slog.Logger) (*Index, bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("create index directory: %w", err)
	}

	indexPath := filepath.Join(dir, "search.bleve")
	versionPath := filepath.Join(dir, "search.version")

	var (
		index        bleve.Index
		err          error
		needsRebuild bool
	)

	if _, statErr := os.Stat(indexPath); statErr == nil {
		existing, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil:
			logger.Info("search index has no version file, rebuilding", "version", mappingVersion)
			needsRebuild = true
		case string(existing) != mappingVersion:
			logger.Info("search index mapping changed, rebuilding",
				"old_version", string(existing),
				"new_version", mappingVersion)
			needsRebuild = true
		default:
			index, err = bleve.Open(indexPath)
			if err != nil {
				logger.Warn("failed to open search index, recreating", "path", indexPath, "error", err)
				needsRebuild = true
			}
		}
	}

	if needsRebuild {
		if err := os.RemoveAll(indexPath); err != nil {
			return nil, false, fmt.Errorf("remove old index: %w", err)
		}
	}

	fresh := index == nil
	if fresh {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, false, fmt.Errorf("create index: %w", err)
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
			logger.Warn("failed to write search version file", "error", err)
		}
		logger.Info("created search index", "path", indexPath)
	}

	return &Index{index: index, path: indexPath, logger: logger}, fresh, nil
}

// Close releases the index. Closing twice is a no-op.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.index.Close()
}

// Put indexes or replaces one file. Recycled files are removed instead.
func (ix *Index) Put(f *domain.File) error {
	if f.Recycled {
		return ix.Delete(f.ID)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.index.Index(docID(f.ID), newDocument(f).toMap())
}

// PutAll indexes files in batches.
func (ix *Index) PutAll(files []*domain.File) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	batch := ix.index.NewBatch()
	for _, f := range files {
		if f.Recycled {
			batch.Delete(docID(f.ID))
			continue
		}
		if err := batch.Index(docID(f.ID), newDocument(f).toMap()); err != nil {
			return fmt.Errorf("batch index %d: %w", f.ID, err)
		}
	}
	return ix.index.Batch(batch)
}

// Delete removes one file.
func (ix *Index) Delete(id int64) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.index.Delete(docID(id))
}

// Count returns the number of indexed files.
func (ix *Index) Count() (uint64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.index.DocCount()
}

// Hit is one match.
type Hit struct {
	FileID int64
	Score  float64
}

// Search runs a free-text query over names, notes, tags and custom field values.
func (ix *Index) Search(ctx context.Context, text string, limit int) ([]Hit, uint64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if limit <= 0 {
		limit = domain.DefaultLimit
	}

	req := bleve.NewSearchRequestOptions(buildQuery(text), limit, 0, false)
	req.SortBy([]string{"-_score", "_id"})

	res, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{FileID: id, Score: h.Score})
	}
	return hits, res.Total, nil
}

func buildQuery(text string) query.Query {
	text = strings.TrimSpace(text)
	if text == "" {
		return bleve.NewMatchAllQuery()
	}

	name := bleve.NewMatchQuery(text)
	name.SetField("name")
	name.SetBoost(3.0)

	fuzzy := bleve.NewFuzzyQuery(strings.ToLower(text))
	fuzzy.SetField("name")
	fuzzy.SetFuzziness(1)
	fuzzy.SetBoost(0.8)

	notes := bleve.NewMatchQuery(text)
	notes.SetField("notes")

	fields := bleve.NewMatchQuery(text)
	fields.SetField("fields")

	tag := bleve.NewTermQuery(text)
	tag.SetField("tags")
	tag.SetBoost(2.0)

	queries := []query.Query{name, fuzzy, notes, fields, tag}
	if len(text) >= 2 {
		prefix := bleve.NewPrefixQuery(strings.ToLower(text))
		prefix.SetField("name")
		prefix.SetBoost(0.5)
		queries = append(queries, prefix)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

func docID(id int64) string { return strconv.FormatInt(id, 10) }
