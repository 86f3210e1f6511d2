package projpath

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"lukechampine.com/blake3"
)

// Path is a normalized project-relative path. The zero value addresses
// the project working root itself.
type Path string

// RootPath is the absolute filesystem location anchoring all Paths for
// one project instance.
type RootPath string

// Root addresses the project working directory.
const Root Path = ""

// New normalizes rel into a Path. Backslashes are treated as
// separators, redundant elements are collapsed, and paths that would
// escape the project root are rejected.
func New(rel string) (Path, error) {
	cleaned := path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "./")
	if cleaned == "." || cleaned == "" {
		return Root, nil
	}
	if path.IsAbs(cleaned) {
		return Root, fmt.Errorf("path %q is absolute, want project-relative", rel)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return Root, fmt.Errorf("path %q escapes the project root", rel)
	}
	return Path(cleaned), nil
}

// NewRoot validates abs as a project root anchor.
func NewRoot(abs string) (RootPath, error) {
	if strings.TrimSpace(abs) == "" {
		return "", errors.New("project root path required")
	}
	resolved, err := filepath.Abs(filepath.Clean(abs))
	if err != nil {
		return "", fmt.Errorf("resolve project root %q: %w", abs, err)
	}
	return RootPath(resolved), nil
}

// FromFS converts an absolute filesystem path under root into a Path.
func FromFS(root RootPath, abs string) (Path, error) {
	rel, err := filepath.Rel(string(root), abs)
	if err != nil {
		return Root, fmt.Errorf("relativize %q against %q: %w", abs, root, err)
	}
	return New(filepath.ToSlash(rel))
}

// Join appends slash-separated elements to p.
func Join(p Path, elems ...string) Path {
	parts := append([]string{string(p)}, elems...)
	return Path(path.Join(parts...))
}

func (p Path) String() string { return string(p) }

// IsRoot reports whether p addresses the project working root.
func (p Path) IsRoot() bool { return p == Root }

// Base returns the final path element.
func (p Path) Base() string { return path.Base(string(p)) }

// Ext returns the file extension including the leading dot.
func (p Path) Ext() string { return path.Ext(string(p)) }

// Dir returns the containing directory of p, or Root at the top level.
func (p Path) Dir() Path {
	dir := path.Dir(string(p))
	if dir == "." || dir == "/" {
		return Root
	}
	return Path(dir)
}

// WithExt returns p with its extension replaced. An empty ext strips
// the extension; a non-empty ext must include the leading dot.
func (p Path) WithExt(ext string) Path {
	trimmed := strings.TrimSuffix(string(p), path.Ext(string(p)))
	return Path(trimmed + ext)
}

// IsAncestorOf reports whether other lies strictly below p. The root
// path is an ancestor of every non-root path.
func (p Path) IsAncestorOf(other Path) bool {
	if p == other {
		return false
	}
	if p.IsRoot() {
		return true
	}
	return strings.HasPrefix(string(other), string(p)+"/")
}

// Contains reports whether other is p itself or lies below it.
func (p Path) Contains(other Path) bool {
	return p == other || p.IsAncestorOf(other)
}

// Abs resolves p against root to an absolute filesystem path.
func (p Path) Abs(root RootPath) string {
	if p.IsRoot() {
		return string(root)
	}
	return filepath.Join(string(root), filepath.FromSlash(string(p)))
}

// Hash64 derives a stable 64-bit identifier from the normalized path.
// Backends use it as the default cooked-object reference ID.
func (p Path) Hash64() uint64 {
	sum := blake3.Sum256([]byte(p))
	return binary.LittleEndian.Uint64(sum[:8])
}
