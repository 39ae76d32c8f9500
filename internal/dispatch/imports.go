package dispatch

import (
	"path/filepath"
	"strings"

	"github.com/lumenlib/lumen-server/internal/errors"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithImportRoots limits file.import sources to files under roots.
// Without roots, remote imports are refused.
func WithImportRoots(roots ...string) Option {
	return func(d *Dispatcher) {
		for _, root := range roots {
			if root == "" {
				continue
			}
			d.importRoots = append(d.importRoots, resolvePath(root))
		}
	}
}

// checkImportSource rejects sources outside every import root. Symlinks are
// resolved first so a link inside a root cannot reach out of it.
func (d *Dispatcher) checkImportSource(src string) error {
	if len(d.importRoots) == 0 {
		return errors.Validation("imports from clients are disabled: no import roots are configured")
	}
	resolved := resolvePath(src)
	for _, root := range d.importRoots {
		rel, err := filepath.Rel(root, resolved)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return errors.Validationf("source %s is outside the import roots", src)
}

// resolvePath returns the absolute, symlink-free form of path, falling back to
// the cleaned absolute path when it cannot be resolved.
func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
