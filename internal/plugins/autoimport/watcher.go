package autoimport

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher reports files under a directory tree once their size and mtime stop
// changing for one settle delay.
type watcher struct {
	root    string
	delay   time.Duration
	match   *matcher
	logger  *slog.Logger
	fs      *fsnotify.Watcher
	settled chan string

	mu      sync.Mutex
	pending map[string]*pendingFile

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// pendingFile tracks a file that may still be changing.
type pendingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

func newWatcher(root string, delay time.Duration, m *matcher, logger *slog.Logger) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &watcher{
		root:    root,
		delay:   delay,
		match:   m,
		logger:  logger,
		fs:      fw,
		settled: make(chan string, 100),
		pending: make(map[string]*pendingFile),
		done:    make(chan struct{}),
	}
	if err := w.watchTree(root, true); err != nil {
		fw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// watchTree adds a watch on every directory below dir. When scan is set, files
// already present start settling as if they had just been created.
func (w *watcher) watchTree(dir string, scan bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			w.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}
		if w.skip(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if scan {
				w.startSettling(p)
			}
			return nil
		}
		if err := w.fs.Add(p); err != nil {
			if p == dir {
				return fmt.Errorf("watch %s: %w", p, err)
			}
			w.logger.Error("failed to add watch", "path", p, "error", err)
			return nil
		}
		w.logger.Debug("added watch", "path", p)
		return nil
	})
}

func (w *watcher) skip(p string) bool {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return true
	}
	return w.match.ignored(rel)
}

func (w *watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *watcher) handle(event fsnotify.Event) {
	path := event.Name
	if w.skip(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.cancel(path)
	case event.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			// Files may land before the new watch is in place, so scan it.
			if err := w.watchTree(path, true); err != nil {
				w.logger.Warn("failed to watch new directory", "path", path, "error", err)
			}
			return
		}
		w.startSettling(path)
	case event.Has(fsnotify.Write):
		w.startSettling(path)
	}
}

func (w *watcher) startSettling(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isStopped() {
		return
	}
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		delete(w.pending, path)
		return
	}

	p := &pendingFile{size: info.Size(), modTime: info.ModTime()}
	p.timer = time.AfterFunc(w.delay, func() { w.checkSettled(path) })
	w.pending[path] = p
}

func (w *watcher) checkSettled(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok {
		w.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		w.mu.Unlock()
		return
	}
	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size = info.Size()
		p.modTime = info.ModTime()
		p.timer = time.AfterFunc(w.delay, func() { w.checkSettled(path) })
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	select {
	case w.settled <- path:
	case <-w.done:
	}
}

func (w *watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

func (w *watcher) isStopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Settled delivers paths that are ready to import.
func (w *watcher) Settled() <-chan string { return w.settled }

// Stop releases the fsnotify watcher and drops pending files. Safe to call twice.
func (w *watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		for _, p := range w.pending {
			p.timer.Stop()
		}
		clear(w.pending)
		w.mu.Unlock()

		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}
