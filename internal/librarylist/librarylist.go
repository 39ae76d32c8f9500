// Package librarylist persists the set of libraries a server knows about.
//
// The document is a JSON array of library configs, or TOML [[library]] tables
// when the file name ends in .toml.
package librarylist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/validation"
)

// List is the in-memory library list bound to its file. Safe for concurrent use.
type List struct {
	path      string
	validator *validation.Validator

	mu   sync.RWMutex
	libs []domain.LibraryConfig
}

type tomlDocument struct {
	Library []domain.LibraryConfig `toml:"library"`
}

// Load reads the list at path. A missing file yields an empty list.
func Load(path string) (*List, error) {
	l := &List{path: path, validator: validation.New()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, errors.Filesystemf(err, "read library list %s", path)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return l, nil
	}

	if l.isTOML() {
		var doc tomlDocument
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, errors.Validationf("parse library list %s: %v", path, err)
		}
		l.libs = doc.Library
	} else if err := json.Unmarshal(data, &l.libs); err != nil {
		return nil, errors.Validationf("parse library list %s: %v", path, err)
	}

	for _, cfg := range l.libs {
		if cfg.ID == "" {
			return nil, errors.Validationf("library list %s has an entry without id", path)
		}
	}
	return l, nil
}

// Path returns the backing file.
func (l *List) Path() string { return l.path }

// Find returns the config of id or NotFound.
func (l *List) Find(id string) (domain.LibraryConfig, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.index(id)
	if i < 0 {
		return domain.LibraryConfig{}, errors.NotFoundf("library %s not found", id)
	}
	return l.libs[i], nil
}

// All returns a copy of every entry in file order.
func (l *List) All() []domain.LibraryConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.libs)
}

// Upsert replaces the entry with cfg.ID or appends a new one. Not persisted until Save.
func (l *List) Upsert(cfg domain.LibraryConfig) error {
	if err := l.validator.Validate(cfg); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.index(cfg.ID); i >= 0 {
		l.libs[i] = cfg
		return nil
	}
	l.libs = append(l.libs, cfg)
	return nil
}

// Remove drops id from the list and reports whether it was present.
func (l *List) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.index(id)
	if i < 0 {
		return false
	}
	l.libs = slices.Delete(l.libs, i, i+1)
	return true
}

// Save writes the list atomically.
func (l *List) Save() error {
	l.mu.RLock()
	libs := slices.Clone(l.libs)
	l.mu.RUnlock()

	if libs == nil {
		libs = []domain.LibraryConfig{}
	}

	var (
		data []byte
		err  error
	)
	if l.isTOML() {
		data, err = toml.Marshal(tomlDocument{Library: libs})
	} else {
		data, err = json.MarshalIndent(libs, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode library list")
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.Filesystemf(err, "create %s", filepath.Dir(l.path))
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Filesystemf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return errors.Filesystemf(err, "replace %s", l.path)
	}
	return nil
}

func (l *List) index(id string) int {
	return slices.IndexFunc(l.libs, func(c domain.LibraryConfig) bool { return c.ID == id })
}

func (l *List) isTOML() bool {
	return strings.EqualFold(filepath.Ext(l.path), ".toml")
}
