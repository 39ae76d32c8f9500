package plugin

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/lumenlib/lumen-server/internal/errors"
)

// Manager maps plugin names to factories and loaded instances for one library.
// Safe for concurrent use.
type Manager struct {
	host   Host
	logger *slog.Logger

	mu        sync.Mutex
	factories map[string]Factory
	loaded    map[string]Plugin
	order     []string // load order, for reverse unload
}

// NewManager creates a Manager whose plugins receive host. host.Plugins is set to the manager.
func NewManager(host Host, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:    logger,
		factories: make(map[string]Factory),
		loaded:    make(map[string]Plugin),
	}
	host.Plugins = m
	if host.Logger == nil {
		host.Logger = logger
	}
	m.host = host
	return m
}

// Register makes a plugin available under name.
func (m *Manager) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return errors.Validation("plugin name and factory are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.factories[name]; ok {
		return errors.Conflictf("plugin %s already registered", name)
	}
	m.factories[name] = f
	return nil
}

// Load starts the named plugin, or returns the running instance.
func (m *Manager) Load(ctx context.Context, name string) (Plugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx, name)
}

func (m *Manager) loadLocked(ctx context.Context, name string) (Plugin, error) {
	if p, ok := m.loaded[name]; ok {
		return p, nil
	}
	f, ok := m.factories[name]
	if !ok {
		return nil, errors.NotFoundf("plugin %s not found", name)
	}

	host := m.host
	host.Logger = m.host.Logger.With(slog.String("plugin", name))

	p, err := f(ctx, host)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "load plugin %s", name)
	}
	m.loaded[name] = p
	m.order = append(m.order, name)

	m.logger.Info("plugin loaded", slog.String("plugin", name))
	return p, nil
}

// Unload stops the named plugin.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unloadLocked(ctx, name)
}

func (m *Manager) unloadLocked(ctx context.Context, name string) error {
	p, ok := m.loaded[name]
	if !ok {
		return errors.NotFoundf("plugin %s is not loaded", name)
	}
	delete(m.loaded, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })

	if err := p.Close(ctx); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "unload plugin %s", name)
	}
	m.logger.Info("plugin unloaded", slog.String("plugin", name))
	return nil
}

// Reload replaces the named plugin with a fresh instance.
func (m *Manager) Reload(ctx context.Context, name string) (Plugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.factories[name]; !ok {
		return nil, errors.NotFoundf("plugin %s not found", name)
	}
	if _, ok := m.loaded[name]; ok {
		if err := m.unloadLocked(ctx, name); err != nil {
			m.logger.Warn("plugin did not close cleanly", slog.String("plugin", name), slog.String("error", err.Error()))
		}
	}
	return m.loadLocked(ctx, name)
}

// Get returns the running instance of name.
func (m *Manager) Get(name string) (Plugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.loaded[name]
	if !ok {
		return nil, errors.NotFoundf("plugin %s is not loaded", name)
	}
	return p, nil
}

// List describes every registered plugin, sorted by name.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := slices.Sorted(maps.Keys(m.factories))
	out := make([]Info, 0, len(names))
	for _, name := range names {
		_, loaded := m.loaded[name]
		out = append(out, Info{Name: name, Loaded: loaded})
	}
	return out
}

// UnloadAll stops every plugin in reverse load order.
func (m *Manager) UnloadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, name := range slices.Backward(slices.Clone(m.order)) {
		if err := m.unloadLocked(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
