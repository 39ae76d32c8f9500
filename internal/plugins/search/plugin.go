// Package search keeps a Bleve full-text index of a library's files in sync with
// catalog events.
package search

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/eventbus"
	"github.com/lumenlib/lumen-server/internal/plugin"
	"github.com/lumenlib/lumen-server/internal/storage"
)

// Name is the plugin's registry name.
const Name = "search"

// Plugin indexes files as they change.
type Plugin struct {
	db     plugin.Library
	logger *slog.Logger
	index  *Index
	subs   []eventbus.Subscription
}

var _ plugin.Searcher = (*Plugin)(nil)

// Factory returns a plugin.Factory for the search plugin.
func Factory() plugin.Factory {
	return func(ctx context.Context, host plugin.Host) (plugin.Plugin, error) {
		p, err := Start(ctx, host)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Start opens the index, builds it when new, and subscribes to file events.
func Start(ctx context.Context, host plugin.Host) (*Plugin, error) {
	index, fresh, err := OpenIndex(filepath.Join(host.DB.Root(), storage.StateDir), host.Logger)
	if err != nil {
		return nil, err
	}

	p := &Plugin{db: host.DB, logger: host.Logger, index: index}

	if fresh {
		if err := p.Rebuild(ctx); err != nil {
			index.Close()
			return nil, err
		}
	}

	bus := host.DB.EventBus()
	p.subs = []eventbus.Subscription{
		bus.Subscribe(eventbus.FileCreated, p.onFileChanged),
		bus.Subscribe(eventbus.FileUpdated, p.onFileChanged),
		bus.Subscribe(eventbus.FileRecovered, p.onFileChanged),
		bus.Subscribe(eventbus.FileSetTag, p.onFileSetTag),
		bus.Subscribe(eventbus.FileDeleted, p.onFileDeleted),
		bus.Subscribe(eventbus.TagDeleted, p.onTagDeleted),
	}
	return p, nil
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return Name }

// Close drops the subscriptions and closes the index.
func (p *Plugin) Close(context.Context) error {
	bus := p.db.EventBus()
	for _, s := range p.subs {
		bus.Unsubscribe(s)
	}
	return p.index.Close()
}

// Search implements plugin.Searcher.
func (p *Plugin) Search(ctx context.Context, query string, limit int) ([]plugin.SearchHit, uint64, error) {
	hits, total, err := p.index.Search(ctx, query, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]plugin.SearchHit, len(hits))
	for i, h := range hits {
		out[i] = plugin.SearchHit{FileID: h.FileID, Score: h.Score}
	}
	return out, total, nil
}

// Rebuild indexes every live file from the catalog.
func (p *Plugin) Rebuild(ctx context.Context) error {
	filter := domain.FileFilter{Limit: domain.MaxLimit}
	indexed := 0
	for {
		page, err := p.db.GetFiles(ctx, filter)
		if err != nil {
			return err
		}
		if len(page.Result) == 0 {
			break
		}
		if err := p.index.PutAll(page.Result); err != nil {
			return err
		}
		indexed += len(page.Result)
		filter.Offset += len(page.Result)
		if filter.Offset >= page.Total {
			break
		}
	}
	p.logger.Info("search index built", slog.Int("files", indexed))
	return nil
}

func (p *Plugin) onFileChanged(_ context.Context, evt eventbus.Event) error {
	f, ok := evt.Data.(*domain.File)
	if !ok {
		return nil
	}
	return p.index.Put(f)
}

func (p *Plugin) onFileSetTag(ctx context.Context, evt eventbus.Event) error {
	data, ok := evt.Data.(eventbus.FileSetTagData)
	if !ok {
		return nil
	}
	f, err := p.db.GetFile(ctx, data.ID)
	if err != nil {
		return err
	}
	return p.index.Put(f)
}

func (p *Plugin) onFileDeleted(_ context.Context, evt eventbus.Event) error {
	data, ok := evt.Data.(eventbus.FileDeletedData)
	if !ok {
		return nil
	}
	return p.index.Delete(data.ID)
}

// Tag deletion strips ids from many files at once.
func (p *Plugin) onTagDeleted(ctx context.Context, _ eventbus.Event) error {
	return p.Rebuild(ctx)
}
