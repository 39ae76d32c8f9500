package library

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/librarylist"
	"github.com/lumenlib/lumen-server/internal/logger"
	"github.com/lumenlib/lumen-server/internal/metrics"
)

// State is a library's place in the session lifecycle.
type State string

// Library states. A closed library is only reopened by an explicit Load or Open.
const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateActive   State = "active"
	StateClosed   State = "closed"
)

// Status describes one library for listings.
type Status struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	State State  `json:"state"`
}

// Registry tracks open sessions, at most one per library id.
type Registry struct {
	opts   SessionOptions
	list   *librarylist.List
	logger *slog.Logger

	mu       sync.Mutex
	states   map[string]State
	sessions map[string]*Session

	// opening collapses concurrent Opens of one id into a single Load.
	opening singleflight.Group
}

// NewRegistry creates a registry. list resolves configs for Open and may be nil.
func NewRegistry(list *librarylist.List, opts SessionOptions) *Registry {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Registry{
		opts:     opts,
		list:     list,
		logger:   opts.Logger,
		states:   make(map[string]State),
		sessions: make(map[string]*Session),
	}
}

// Load opens a session for cfg and registers it. Loading an id that is loading
// or active fails with Conflict; a failed load leaves the id unloaded.
func (r *Registry) Load(ctx context.Context, cfg domain.LibraryConfig) (*Session, error) {
	if cfg.ID == "" {
		return nil, errors.Validation("library id is required")
	}

	r.mu.Lock()
	switch r.states[cfg.ID] {
	case StateLoading:
		r.mu.Unlock()
		return nil, errors.Conflictf("library %s is already loading", cfg.ID)
	case StateActive:
		r.mu.Unlock()
		return nil, errors.Conflictf("library %s is already open", cfg.ID)
	}
	r.states[cfg.ID] = StateLoading
	r.mu.Unlock()

	s, err := NewSession(ctx, cfg, r.opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		delete(r.states, cfg.ID)
		r.logger.Warn("failed to load library", slog.String("library_id", cfg.ID), slog.String("error", err.Error()))
		return nil, err
	}
	r.states[cfg.ID] = StateActive
	r.sessions[cfg.ID] = s
	metrics.SetActiveLibraries(len(r.sessions))
	return s, nil
}

// Open returns the active session of id, loading it from the library list first
// when needed. Concurrent Opens of the same id share one load.
func (r *Registry) Open(ctx context.Context, id string) (*Session, error) {
	if s, err := r.Get(id); err == nil {
		return s, nil
	}
	if r.list == nil {
		return nil, errors.NotFoundf("library %s not found", id)
	}

	v, err, _ := r.opening.Do(id, func() (any, error) {
		if s, err := r.Get(id); err == nil {
			return s, nil
		}
		cfg, err := r.list.Find(id)
		if err != nil {
			return nil, err
		}
		return r.Load(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Get returns the active session of id or NotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.NotFoundf("library %s is not open", id)
	}
	return s, nil
}

// Exists reports whether id has an active session.
func (r *Registry) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

// State returns the lifecycle state of id.
func (r *Registry) State(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[id]; ok {
		return st
	}
	return StateUnloaded
}

// Close closes the session of id. Fails with NotFound when it is not active.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return errors.NotFoundf("library %s is not open", id)
	}
	delete(r.sessions, id)
	r.states[id] = StateClosed
	metrics.SetActiveLibraries(len(r.sessions))
	r.mu.Unlock()

	return s.Close(ctx)
}

// CloseAll closes every active session.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	slices.Sort(ids)

	var errs []error
	for _, id := range ids {
		if err := r.Close(ctx, id); err != nil && !errors.Is(err, errors.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List returns every library in the library list plus any loaded directly,
// sorted by id.
func (r *Registry) List() []Status {
	names := make(map[string]string)
	if r.list != nil {
		for _, cfg := range r.list.All() {
			names[cfg.ID] = cfg.Name
		}
	}

	r.mu.Lock()
	for id := range r.states {
		if _, ok := names[id]; !ok {
			names[id] = ""
		}
	}
	for id, s := range r.sessions {
		names[id] = s.cfg.Name
	}
	out := make([]Status, 0, len(names))
	for id, name := range names {
		st, ok := r.states[id]
		if !ok {
			st = StateUnloaded
		}
		out = append(out, Status{ID: id, Name: name, State: st})
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Status) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Libraries returns the backing library list, or nil.
func (r *Registry) Libraries() *librarylist.List { return r.list }
