// Package presets is the host-side directory scanner the rle parser's
// doc comment defers to: it turns a `presets PATH` directory of .rle
// files into a pattern.Set.
package presets

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/octolife/octolife/internal/pattern"
	"github.com/octolife/octolife/internal/rle"
)

// LoadDir reads every *.rle file in dir and builds a Set from them,
// sorted by filename for a stable preset index across a run. A missing
// directory is not an error: LoadDir logs a warning and returns an empty
// Set, since a host may run with no presets at all. An empty dir path or
// a directory with no .rle files also yields an empty Set, without a
// warning.
func LoadDir(dir string) (*pattern.Set, error) {
	if dir == "" {
		return pattern.NewSet(nil), nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("presets directory not found, proceeding with no presets", "dir", dir)
			return pattern.NewSet(nil), nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".rle" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	patterns := make([]pattern.Pattern, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			slog.Warn("skipping unreadable preset", "path", path, "error", err)
			continue
		}
		p, err := rle.Parse(f)
		f.Close()
		if err != nil {
			slog.Warn("skipping malformed preset", "path", path, "error", err)
			continue
		}
		if p.Name == "" {
			p.Name = name
		}
		patterns = append(patterns, p)
	}

	slog.Info("presets loaded", "dir", dir, "count", len(patterns))
	return pattern.NewSet(patterns), nil
}
