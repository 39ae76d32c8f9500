// Package autoimport watches a drop folder and moves settled files into the library.
package autoimport

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/plugin"
)

// Name is the plugin's registry name.
const Name = "autoimport"

// DefaultSettleDelay is how long a file must stay unchanged before it is imported.
const DefaultSettleDelay = 2 * time.Second

// Options configures the watcher.
type Options struct {
	// Dir is the watched drop folder. Empty disables the plugin.
	Dir string
	// Ignore holds glob patterns; nil selects the defaults and skips hidden files.
	Ignore      []string
	SettleDelay time.Duration
}

// OptionsFromConfig reads watchPath, ignore and settleDelay (ms) from the
// library's custom fields.
func OptionsFromConfig(cfg domain.LibraryConfig) Options {
	opts := Options{Dir: cfg.WatchPath(), Ignore: cfg.IgnorePatterns()}
	switch v := cfg.CustomFields["settleDelay"].(type) {
	case float64:
		opts.SettleDelay = time.Duration(v) * time.Millisecond
	case int64:
		opts.SettleDelay = time.Duration(v) * time.Millisecond
	case int:
		opts.SettleDelay = time.Duration(v) * time.Millisecond
	}
	return opts
}

// Plugin imports files that appear in the drop folder.
type Plugin struct {
	db      plugin.Library
	logger  *slog.Logger
	watcher *watcher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Factory returns a plugin.Factory that reads its options from the library config.
func Factory() plugin.Factory {
	return func(ctx context.Context, host plugin.Host) (plugin.Plugin, error) {
		p, err := Start(ctx, host, OptionsFromConfig(host.DB.Config()))
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Start begins watching opts.Dir. With no directory configured the plugin loads idle.
func Start(_ context.Context, host plugin.Host, opts Options) (*Plugin, error) {
	p := &Plugin{db: host.DB, logger: host.Logger}
	if opts.Dir == "" {
		p.logger.Info("no watch path configured, auto-import idle")
		return p, nil
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}

	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "resolve watch path")
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, errors.Validationf("watch path %q is not a directory", opts.Dir)
	}
	if contains(dir, host.DB.Root()) {
		return nil, errors.Validationf("watch path %q must not contain the library root", opts.Dir)
	}

	patterns := opts.Ignore
	ignoreHidden := false
	if patterns == nil {
		patterns = defaultIgnore
		ignoreHidden = true
	}
	m, err := newMatcher(patterns, ignoreHidden)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "compile ignore patterns")
	}

	w, err := newWatcher(dir, opts.SettleDelay, m, host.Logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFilesystem, "start watcher")
	}
	p.watcher = w

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Go(func() { p.run(ctx) })

	p.logger.Info("watching for new files", slog.String("path", dir), slog.Duration("settle", opts.SettleDelay))
	return p, nil
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return Name }

// Close stops the watcher and waits for an in-flight import.
func (p *Plugin) Close(ctx context.Context) error {
	if p.watcher == nil {
		return nil
	}
	err := p.watcher.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Plugin) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-p.watcher.Settled():
			p.importFile(ctx, path)
		}
	}
}

func (p *Plugin) importFile(ctx context.Context, path string) {
	f, err := p.db.ImportFile(ctx, path, nil, domain.ImportOptions{ImportType: domain.ImportMove})
	if err != nil {
		p.logger.Warn("auto-import failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	p.logger.Info("auto-imported file", slog.String("path", path), slog.Int64("file_id", f.ID))
}

// contains reports whether dir is target or one of its ancestors.
func contains(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
