package autoimport

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// defaultIgnore applies when the library config names no patterns.
var defaultIgnore = []string{".DS_Store", "Thumbs.db", "*.tmp", "*.temp", "*.part", "*.crdownload"}

// matcher decides which watched paths are skipped. Patterns are matched against
// both the base name and the slash-separated path relative to the watch dir,
// so "*.tmp" and "raw/**" both work.
type matcher struct {
	globs        []glob.Glob
	ignoreHidden bool
}

func newMatcher(patterns []string, ignoreHidden bool) (*matcher, error) {
	m := &matcher{ignoreHidden: ignoreHidden}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// ignored reports whether rel, a path relative to the watch dir, is skipped.
func (m *matcher) ignored(rel string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." {
		return false
	}

	if m.ignoreHidden {
		for _, part := range strings.Split(rel, "/") {
			if strings.HasPrefix(part, ".") && part != "." && part != ".." {
				return true
			}
		}
	}

	base := rel[strings.LastIndexByte(rel, '/')+1:]
	for _, g := range m.globs {
		if g.Match(base) || g.Match(rel) {
			return true
		}
	}
	return false
}
