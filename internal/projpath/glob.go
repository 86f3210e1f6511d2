package projpath

import (
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Glob resolves a doublestar pattern relative to root into sorted
// Paths. A pattern with no matches yields an empty slice, not an
// error; a file named exactly like the pattern matches itself.
func Glob(root RootPath, pattern string) ([]Path, error) {
	normalized, err := New(pattern)
	if err != nil {
		return nil, err
	}
	if !doublestar.ValidatePattern(string(normalized)) {
		return nil, fmt.Errorf("invalid path pattern %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(string(root)), string(normalized))
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}

	paths := make([]Path, 0, len(matches))
	for _, match := range matches {
		p, err := New(match)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths, nil
}

// Match reports whether p matches a doublestar pattern.
func Match(pattern string, p Path) (bool, error) {
	ok, err := doublestar.Match(pattern, string(p))
	if err != nil {
		return false, fmt.Errorf("match pattern %q: %w", pattern, err)
	}
	return ok, nil
}

// WalkFiles visits every regular file under dir (resolved against
// root) in lexical order. The walk order is deterministic so callers
// can rely on reproducible traversal across runs.
func WalkFiles(root RootPath, dir Path, recursive bool, visit func(Path) error) error {
	base := dir.Abs(root)
	return walkDir(root, base, dir, recursive, visit)
}

func walkDir(root RootPath, absDir string, dir Path, recursive bool, visit func(Path) error) error {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return fmt.Errorf("read directory %q: %w", absDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var subdirs []fs.DirEntry
	for _, entry := range entries {
		// Dot entries hold project metadata, never source resources.
		if len(entry.Name()) > 0 && entry.Name()[0] == '.' {
			continue
		}
		if entry.IsDir() {
			subdirs = append(subdirs, entry)
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if err := visit(Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	if !recursive {
		return nil
	}
	for _, entry := range subdirs {
		sub := Join(dir, entry.Name())
		if err := walkDir(root, sub.Abs(root), sub, true, visit); err != nil {
			return err
		}
	}
	return nil
}
