// Package thumbnail generates JPEG thumbnails and BlurHash placeholders for
// imported images and audio files with embedded cover art.
package thumbnail

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/eventbus"
	"github.com/lumenlib/lumen-server/internal/plugin"
)

// Name is the plugin's registry name.
const Name = "thumbnail"

// queueSize bounds pending thumbnail jobs per library.
const queueSize = 256

// Plugin renders thumbnails on its own goroutine as files are created.
type Plugin struct {
	db     plugin.Library
	logger *slog.Logger
	sub    eventbus.Subscription

	jobs    chan int64
	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
}

// Factory returns a plugin.Factory for the thumbnail plugin.
func Factory() plugin.Factory {
	return func(_ context.Context, host plugin.Host) (plugin.Plugin, error) {
		return Start(host), nil
	}
}

// Start subscribes to file::created and launches the worker.
func Start(host plugin.Host) *Plugin {
	p := &Plugin{
		db:     host.DB,
		logger: host.Logger,
		jobs:   make(chan int64, queueSize),
		done:   make(chan struct{}),
	}
	p.sub = host.DB.EventBus().Subscribe(eventbus.FileCreated, p.onFileCreated)
	go p.run()
	return p
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return Name }

// Close drops the subscription and waits for queued jobs to finish.
func (p *Plugin) Close(ctx context.Context) error {
	p.db.EventBus().Unsubscribe(p.sub)

	p.closeMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.closeMu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Plugin) onFileCreated(_ context.Context, evt eventbus.Event) error {
	f, ok := evt.Data.(*domain.File)
	if !ok {
		return nil
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return nil
	}

	select {
	case p.jobs <- f.ID:
	default:
		p.logger.Warn("thumbnail queue full, skipping file", slog.Int64("file_id", f.ID))
	}
	return nil
}

func (p *Plugin) run() {
	defer close(p.done)
	for fileID := range p.jobs {
		if err := p.Generate(context.Background(), fileID); err != nil {
			p.logger.Warn("thumbnail generation failed",
				slog.Int64("file_id", fileID),
				slog.String("error", err.Error()))
		}
	}
}

// Generate renders the thumbnail of one file, marks the file and announces it.
// Images are scaled directly and audio files use their embedded cover. Anything
// else, and audio without a cover, is skipped without error.
func (p *Plugin) Generate(ctx context.Context, fileID int64) error {
	f, err := p.db.GetFile(ctx, fileID)
	if err != nil {
		return err
	}

	source, err := Classify(f.Path)
	if err != nil {
		return err
	}

	dst := p.db.ItemThumbPath(f, domain.PathOptions{})
	var hash string
	switch source {
	case SourceImage:
		hash, err = Render(f.Path, dst)
	case SourceAudio:
		hash, err = RenderCover(ctx, f.Path, dst)
		if errors.Is(err, errNoArtwork) {
			p.logger.Debug("audio file has no cover", slog.Int64("file_id", f.ID))
			return nil
		}
	default:
		p.logger.Debug("skipping file without thumbnail source", slog.Int64("file_id", f.ID))
		return nil
	}
	if err != nil {
		return err
	}

	thumb := true
	if _, err := p.db.UpdateFile(ctx, f.ID, domain.FilePatch{Thumb: &thumb}); err != nil {
		return err
	}

	p.db.EventBus().Broadcast(ctx, eventbus.ThumbCreated, eventbus.ThumbCreatedData{
		ID:       f.ID,
		Path:     p.db.ItemThumbPath(f, domain.PathOptions{AsPublicURL: true}),
		BlurHash: hash,
	})

	p.logger.Debug("thumbnail created", slog.Int64("file_id", f.ID), slog.String("path", dst))
	return nil
}
